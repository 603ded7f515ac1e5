// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/saferwall/snarc/hashkey"
)

// Writer serializes a reorganized Engine back to its on-disk record
// shapes. The parent-and-is-folder HashKey pairs parent (not full_path)
// with the is-folder bit — the one deliberate deviation from the upstream
// bit-for-bit layout, documented in DESIGN.md; pairing full_path would
// make a written archive unreadable for any non-root path. Every other
// word matches the upstream layout: a folder's
// first two words are HashKey(full_path, folder_count) and
// HashKey(parent, file_count), followed by a plain name and a true
// 4-byte first-child index; a path's first word is
// HashKey(full_path, next_index), and its extension word is a plain
// Hash40 with no packed index.
type Writer struct {
	engine *Engine
}

// NewWriter wraps a (reorganized) Engine for serialization.
func NewWriter(e *Engine) *Writer { return &Writer{engine: e} }

func (w *Writer) pathIndices() map[uint64]uint32 {
	m := make(map[uint64]uint32, len(w.engine.tables.Paths))
	for i, c := range w.engine.tables.Paths {
		m[c.GUID()] = uint32(i)
	}
	return m
}

func (w *Writer) encodeFolders(pathIdx map[uint64]uint32) []byte {
	cells := w.engine.tables.Folders
	out := make([]byte, len(cells)*folderRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*folderRecordSize:]

		pathAndFolderCount := hashkey.New(v.FullPath, v.FolderCount)
		parentAndFileCount := hashkey.New(v.Parent, v.FileCount)
		binary.LittleEndian.PutUint64(r[0:8], pathAndFolderCount.Uint64())
		binary.LittleEndian.PutUint64(r[8:16], parentAndFileCount.Uint64())
		binary.LittleEndian.PutUint64(r[16:24], v.Name)

		childStart := hashkey.InvalidIndex
		children := v.Children.Cells()
		if len(children) > 0 {
			childStart = pathIdx[children[0].GUID()]
		}
		binary.LittleEndian.PutUint32(r[24:28], childStart)
		// r[28:32] is the fixed 4-byte zero pad after first_child_index.
	}
	return out
}

func (w *Writer) encodePaths(pathIdx map[uint64]uint32) []byte {
	cells := w.engine.tables.Paths
	out := make([]byte, len(cells)*pathRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*pathRecordSize:]

		nextIdx := uint32(hashkey.InvalidIndex)
		if nr, ok := v.NextRef.Get(); ok {
			nextIdx = pathIdx[nr.Cell().GUID()]
		}
		pathAndNextIndex := hashkey.New(v.FullPath, nextIdx)
		binary.LittleEndian.PutUint64(r[0:8], pathAndNextIndex.Uint64())

		var isFolderBit uint32
		if v.IsFolder {
			isFolderBit = IsFolderBit
		}
		parentAndIsFolder := hashkey.New(v.Parent, isFolderBit)
		binary.LittleEndian.PutUint64(r[8:16], parentAndIsFolder.Uint64())

		binary.LittleEndian.PutUint64(r[16:24], v.Name)
		binary.LittleEndian.PutUint64(r[24:32], v.Extension)
	}
	return out
}

// encodeFolderKeys packs the folder lookup as a flat, headerless run of
// HashKey(hash, final folder index) words in ascending hash order. Like
// every search lookup, its length is implied by the header's folder count
// rather than carried on the wire.
func (w *Writer) encodeFolderKeys() []byte {
	keys := make([]hashkey.HashKey, 0, len(w.engine.tables.Folders))
	for i, c := range w.engine.tables.Folders {
		keys = append(keys, hashkey.New(c.Get().FullPath, uint32(i)))
	}
	return encodeSortedKeys(keys)
}

// encodePathKeys packs the path lookup the same way, one key per path.
func (w *Writer) encodePathKeys() []byte {
	keys := make([]hashkey.HashKey, 0, len(w.engine.tables.Paths))
	for i, c := range w.engine.tables.Paths {
		keys = append(keys, hashkey.New(c.Get().FullPath, uint32(i)))
	}
	return encodeSortedKeys(keys)
}

func encodeSortedKeys(keys []hashkey.HashKey) []byte {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hash() < keys[j].Hash() })
	out := make([]byte, len(keys)*8)
	for i, k := range keys {
		binary.LittleEndian.PutUint64(out[i*8:], k.Uint64())
	}
	return out
}

// encodePathLinks emits one sequential u32 index per path.
func (w *Writer) encodePathLinks() []byte {
	out := make([]byte, len(w.engine.tables.Paths)*4)
	for i := range w.engine.tables.Paths {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(i))
	}
	return out
}

// WriteToMemory packs the search sub-graph into the exact layout the
// archive orchestrator's user section carries: the flat folder lookup,
// folders, the flat path lookup, the sequential path links, then paths.
func (w *Writer) WriteToMemory() []byte {
	pathIdx := w.pathIndices()
	var buf []byte
	buf = append(buf, w.encodeFolderKeys()...)
	buf = append(buf, w.encodeFolders(pathIdx)...)
	buf = append(buf, w.encodePathKeys()...)
	buf = append(buf, w.encodePathLinks()...)
	buf = append(buf, w.encodePaths(pathIdx)...)
	return buf
}

// WriteToDirectory emits one fixed-record-size file per table, plus the
// two flat key lookups and the path-link indices.
func (w *Writer) WriteToDirectory(dir string) error {
	pathIdx := w.pathIndices()
	files := map[string][]byte{
		"search_folders.bin":     w.encodeFolders(pathIdx),
		"search_paths.bin":       w.encodePaths(pathIdx),
		"search_folder_keys.bin": w.encodeFolderKeys(),
		"search_path_keys.bin":   w.encodePathKeys(),
		"search_path_links.bin":  w.encodePathLinks(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("searchfs: writing %s: %w", name, err)
		}
	}
	return nil
}
