// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package streamfs implements the StreamEngine: the table-graph describing
// uncompressed stream files (music, movies) that are read as raw byte
// ranges directly out of the archive blob, with no packaging or
// compression layer above them.
package streamfs

import (
	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// LinkFlag selects how many StreamLink entries a StreamPath owns.
type LinkFlag uint32

const (
	// LinkFlagNormal is a stream path with exactly one link.
	LinkFlagNormal LinkFlag = 0
	// LinkFlagLocalized is a stream path with one link per of 14 locales.
	LinkFlagLocalized LinkFlag = 1
	// LinkFlagRegional is a stream path with one link per of 5 regions.
	LinkFlagRegional LinkFlag = 2
)

// LinkCount returns the number of StreamLink entries this flag implies, or
// an error if flag is outside the enumerated set {0,1,2}.
func (f LinkFlag) LinkCount() (int, error) {
	switch f {
	case LinkFlagNormal:
		return 1, nil
	case LinkFlagLocalized:
		return 14, nil
	case LinkFlagRegional:
		return 5, nil
	default:
		return 0, ErrFormat
	}
}

// StreamFolder is a named directory in the stream filesystem, owning a
// contiguous run of StreamPath entries.
type StreamFolder struct {
	Name  uint64 // Hash40 of the folder's full path
	Paths table.ContiguousRef[StreamPath]
}

// StreamPath is one uncompressed stream file, located by one or more
// StreamLink entries (1 for a plain file, 14 when localized, 5 when
// regional).
type StreamPath struct {
	FullPath    uint64 // Hash40
	Links       table.ContiguousRef[StreamLink]
	IsLocalized bool
	IsRegional  bool
	flag        LinkFlag
}

// Flag returns the raw link-count flag word this path was parsed with.
func (p StreamPath) Flag() LinkFlag { return p.flag }

// StreamLink points at the metadata describing where, in the archive blob,
// this stream file's bytes live.
type StreamLink struct {
	Metadata table.Ref[StreamMetadata]
}

// StreamMetadata describes the location and size of one uncompressed
// stream file inside the archive blob.
type StreamMetadata struct {
	Size   uint64
	Offset uint64
}

// rawFolder, rawPath, rawLink, rawMetadata are the fixed-size on-disk
// record shapes.
type rawFolder struct {
	NameAndStart hashkey.HashKey // hash(name), index = paths start
	PathCount    uint16
	_            uint16
}

type rawPath struct {
	PathAndLinkStart hashkey.HashKey // hash(full_path), index = links start
	Flag             uint32
}

type rawLink struct {
	MetadataIndex uint32
}

type rawMetadata struct {
	Size   uint64
	Offset uint64
}

const (
	folderRecordSize   = 12 // 0x0C
	pathRecordSize     = 12 // 0x0C
	linkRecordSize     = 4  // 0x04
	metadataRecordSize = 16 // 0x10
)
