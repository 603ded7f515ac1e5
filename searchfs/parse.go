// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"encoding/binary"
	"fmt"

	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Tables holds the two raw, not-yet-resolved search tables.
type Tables struct {
	Folders []*table.Cell[SearchFolder]
	Paths   []*table.Cell[SearchPath]
}

// ParseBytes decodes the two search tables from their concatenated,
// fixed-record-size byte slices.
func ParseBytes(folders, paths []byte) (*Tables, error) {
	nf, err := divisible(len(folders), folderRecordSize)
	if err != nil {
		return nil, err
	}
	np, err := divisible(len(paths), pathRecordSize)
	if err != nil {
		return nil, err
	}

	t := &Tables{
		Folders: make([]*table.Cell[SearchFolder], nf),
		Paths:   make([]*table.Cell[SearchPath], np),
	}

	for i := 0; i < nf; i++ {
		r := folders[i*folderRecordSize:]
		pathAndFolderCount := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		parentAndFileCount := hashkey.HashKey(binary.LittleEndian.Uint64(r[8:16]))
		name := binary.LittleEndian.Uint64(r[16:24])
		firstChildIndex := binary.LittleEndian.Uint32(r[24:28])

		var children table.LinkedRef[SearchPath]
		if firstChildIndex != hashkey.InvalidIndex {
			children = table.UnresolvedLinkedRef[SearchPath](firstChildIndex)
		} else {
			children = table.EmptyLinkedRef[SearchPath]()
		}

		t.Folders[i] = table.NewCell(SearchFolder{
			FullPath:    pathAndFolderCount.Hash(),
			Parent:      parentAndFileCount.Hash(),
			Name:        name,
			FileCount:   parentAndFileCount.Index(),
			FolderCount: pathAndFolderCount.Index(),
			Children:    children,
		})
	}

	for i := 0; i < np; i++ {
		r := paths[i*pathRecordSize:]
		pathAndNextIndex := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		parentAndIsFolder := hashkey.HashKey(binary.LittleEndian.Uint64(r[8:16]))
		name := binary.LittleEndian.Uint64(r[16:24])
		extension := binary.LittleEndian.Uint64(r[24:32])

		isFolder := parentAndIsFolder.Index()&IsFolderBit != 0

		var nextRef table.OptionalRef[SearchPath]
		if pathAndNextIndex.IsValid() {
			nextRef = table.UnresolvedOptionalRef[SearchPath](pathAndNextIndex.Index())
		}

		t.Paths[i] = table.NewCell(SearchPath{
			FullPath:  pathAndNextIndex.Hash(),
			Parent:    parentAndIsFolder.Hash(),
			Name:      name,
			Extension: extension,
			IsFolder:  isFolder,
			NextRef:   nextRef,
		})
	}

	return t, nil
}

func divisible(n, size int) (int, error) {
	if n%size != 0 {
		return 0, fmt.Errorf("searchfs: table length %d not divisible by record size %d: %w", n, size, ErrFormat)
	}
	return n / size, nil
}
