// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawfmt

import "encoding/binary"

const (
	searchFolderRecordSize = 0x20
	searchPathRecordSize   = 0x20
)

// RawSearchFolder is the unresolved view of a search folder record.
type RawSearchFolder struct {
	PathAndFolderCount RawHashKey
	ParentAndFileCount RawHashKey
	Name               uint64
	FirstChildIndex    uint32
}

// DecodeRawSearchFolder reads a RawSearchFolder from the first
// searchFolderRecordSize bytes of b.
func DecodeRawSearchFolder(b []byte) (RawSearchFolder, error) {
	if len(b) < searchFolderRecordSize {
		return RawSearchFolder{}, ErrTruncated
	}
	path, _ := DecodeRawHashKey(b[0:8])
	parent, _ := DecodeRawHashKey(b[8:16])
	return RawSearchFolder{
		PathAndFolderCount: path,
		ParentAndFileCount: parent,
		Name:               binary.LittleEndian.Uint64(b[16:24]),
		FirstChildIndex:    binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// RawSearchPath is the unresolved view of a search path record.
type RawSearchPath struct {
	PathAndNextIndex  RawHashKey
	ParentAndIsFolder RawHashKey
	Name              RawHashKey
	Extension         RawHashKey
}

// DecodeRawSearchPath reads a RawSearchPath from the first
// searchPathRecordSize bytes of b.
func DecodeRawSearchPath(b []byte) (RawSearchPath, error) {
	if len(b) < searchPathRecordSize {
		return RawSearchPath{}, ErrTruncated
	}
	path, _ := DecodeRawHashKey(b[0:8])
	parent, _ := DecodeRawHashKey(b[8:16])
	name, _ := DecodeRawHashKey(b[16:24])
	ext, _ := DecodeRawHashKey(b[24:32])
	return RawSearchPath{
		PathAndNextIndex:  path,
		ParentAndIsFolder: parent,
		Name:              name,
		Extension:         ext,
	}, nil
}
