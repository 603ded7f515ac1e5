// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package searchfs implements the SearchEngine: the tree-shaped namespace
// view used for directory traversal, built from folders with singly
// linked child lists and the paths that populate them.
package searchfs

import (
	"github.com/saferwall/snarc/table"
)

// IsFolderBit is the bit of SearchPath's parent-and-is-folder index field
// that marks a path as itself representing a folder.
const IsFolderBit = 0x00400000

// SearchFolder is one directory node in the namespace tree.
type SearchFolder struct {
	FullPath    uint64 // Hash40
	Parent      uint64 // Hash40
	Name        uint64 // Hash40
	FileCount   uint32
	FolderCount uint32
	Children    table.LinkedRef[SearchPath]
}

// SearchPath is one entry (file or folder marker) inside a SearchFolder's
// child list.
type SearchPath struct {
	FullPath  uint64 // Hash40
	Parent    uint64 // Hash40
	Name      uint64 // Hash40
	Extension uint64 // Hash40, zero for folder-marker paths
	IsFolder  bool
	Folder    table.OptionalRef[SearchFolder]
	NextRef   table.OptionalRef[SearchPath]
}

// Next implements table.Nexter so LinkedRef can walk SearchPath sibling
// chains.
func (p SearchPath) Next() (table.Ref[SearchPath], bool) {
	return p.NextRef.Get()
}

const (
	folderRecordSize = 32 // 0x20
	pathRecordSize   = 32 // 0x20
)
