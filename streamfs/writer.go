// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Writer serializes a reorganized Engine's tables back to their on-disk
// fixed-record-size byte shapes, either as separate developer-directory
// files or packed contiguously into the archive's non-user section.
type Writer struct {
	engine *Engine
}

// NewWriter wraps a (reorganized) Engine for serialization.
func NewWriter(e *Engine) *Writer { return &Writer{engine: e} }

func (w *Writer) encodeFolders() []byte {
	cells := w.engine.tables.Folders
	out := make([]byte, len(cells)*folderRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*folderRecordSize:]
		key := HashKeyFor(v.Name, v.Paths.Start())
		binary.LittleEndian.PutUint64(r[0:8], key.Uint64())
		binary.LittleEndian.PutUint16(r[8:10], uint16(v.Paths.Len()))
	}
	return out
}

func (w *Writer) encodePaths() []byte {
	cells := w.engine.tables.Paths
	out := make([]byte, len(cells)*pathRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*pathRecordSize:]
		key := HashKeyFor(v.FullPath, v.Links.Start())
		binary.LittleEndian.PutUint64(r[0:8], key.Uint64())
		binary.LittleEndian.PutUint32(r[8:12], uint32(v.flag))
	}
	return out
}

func (w *Writer) encodeLinks(metaIndex map[uint64]uint32) []byte {
	cells := w.engine.tables.Links
	out := make([]byte, len(cells)*linkRecordSize)
	for i, c := range cells {
		v := c.Get()
		idx := metaIndex[v.Metadata.Cell().GUID()]
		binary.LittleEndian.PutUint32(out[i*linkRecordSize:], idx)
	}
	return out
}

func (w *Writer) encodeMetadatas() []byte {
	cells := w.engine.tables.Metadatas
	out := make([]byte, len(cells)*metadataRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*metadataRecordSize:]
		binary.LittleEndian.PutUint64(r[0:8], v.Size)
		binary.LittleEndian.PutUint64(r[8:16], v.Offset)
	}
	return out
}

// metadataIndices builds a GUID->final-index map over the metadata table,
// needed because links reference metadata by final serial index.
func (w *Writer) metadataIndices() map[uint64]uint32 {
	m := make(map[uint64]uint32, len(w.engine.tables.Metadatas))
	for i, c := range w.engine.tables.Metadatas {
		m[c.GUID()] = uint32(i)
	}
	return m
}

// Because ContiguousRef.Start()/End() reflect the *parsed* range and not
// the range reassigned during reorganize, the writer first rewrites every
// path's and folder's contiguous ref to the freshly assigned range before
// encoding. fixupRanges performs that rewrite in place.
func (w *Writer) fixupRanges() {
	linkIdx := make(map[uint64]int, len(w.engine.tables.Links))
	for i, c := range w.engine.tables.Links {
		linkIdx[c.GUID()] = i
	}
	pathIdx := make(map[uint64]int, len(w.engine.tables.Paths))
	for i, c := range w.engine.tables.Paths {
		pathIdx[c.GUID()] = i
	}

	for _, p := range w.engine.tables.Paths {
		p.BorrowMut(func(v *StreamPath) {
			cells := v.Links.Cells()
			if len(cells) == 0 {
				return
			}
			start := linkIdx[cells[0].GUID()]
			v.Links = table.UnresolvedContiguousRef[StreamLink](uint32(start), uint32(start+len(cells)))
			v.Links.Resolve(w.engine.tables.Links)
		})
	}
	for _, f := range w.engine.tables.Folders {
		f.BorrowMut(func(v *StreamFolder) {
			cells := v.Paths.Cells()
			if len(cells) == 0 {
				return
			}
			start := pathIdx[cells[0].GUID()]
			v.Paths = table.UnresolvedContiguousRef[StreamPath](uint32(start), uint32(start+len(cells)))
			v.Paths.Resolve(w.engine.tables.Paths)
		})
	}
}

// encodePathKeys packs the hash-to-path lookup as a flat, headerless run
// of HashKey(hash, final path index) words in ascending hash order, one
// per path. The stream lookup carries no count or bucket structure on the
// wire; its length is implied by the header's path count.
func (w *Writer) encodePathKeys() []byte {
	keys := make([]hashkey.HashKey, 0, len(w.engine.tables.Paths))
	for i, c := range w.engine.tables.Paths {
		keys = append(keys, HashKeyFor(c.Get().FullPath, uint32(i)))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hash() < keys[j].Hash() })

	out := make([]byte, len(keys)*8)
	for i, k := range keys {
		binary.LittleEndian.PutUint64(out[i*8:], k.Uint64())
	}
	return out
}

// WriteToMemory packs the stream sub-graph into the exact layout the
// archive orchestrator's non-user section carries: folders, the flat
// path-key lookup, then paths, links and metadatas.
func (w *Writer) WriteToMemory() []byte {
	w.fixupRanges()

	var buf []byte
	buf = append(buf, w.encodeFolders()...)
	buf = append(buf, w.encodePathKeys()...)
	buf = append(buf, w.encodePaths()...)
	metaIdx := w.metadataIndices()
	buf = append(buf, w.encodeLinks(metaIdx)...)
	buf = append(buf, w.encodeMetadatas()...)
	return buf
}

// WriteToDirectory emits one fixed-record-size file per table, plus the
// flat path-key lookup, matching the developer directory layout
// ParseDirectory reads.
func (w *Writer) WriteToDirectory(dir string) error {
	w.fixupRanges()
	files := map[string][]byte{
		"stream_folders.bin":   w.encodeFolders(),
		"stream_paths.bin":     w.encodePaths(),
		"stream_links.bin":     w.encodeLinks(w.metadataIndices()),
		"stream_metadatas.bin": w.encodeMetadatas(),
		"stream_path_keys.bin": w.encodePathKeys(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("streamfs: writing %s: %w", name, err)
		}
	}
	return nil
}
