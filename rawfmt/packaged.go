// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawfmt

import "encoding/binary"

// Package flag bits, as packed into RawPackage.Flags.
const (
	PackageFlagIsLocalized      uint32 = 1 << 24
	PackageFlagIsRegional       uint32 = 1 << 25
	PackageFlagHasSubPackage    uint32 = 1 << 26
	PackageFlagSymLinkRegional  uint32 = 1 << 27
	PackageFlagIsSymLink        uint32 = 1 << 28
)

// Info flag bits, as packed into RawInfo.Flags.
const (
	InfoFlagIsRegularFile     uint32 = 1 << 4
	InfoFlagIsGraphicsArchive uint32 = 1 << 12
	InfoFlagIsLocalized       uint32 = 1 << 15
	InfoFlagIsRegional        uint32 = 1 << 16
	InfoFlagIsShared          uint32 = 1 << 20
	InfoFlagUnknown           uint32 = 1 << 21
)

// Metadata flag bits, as packed into RawMetadata.Flags.
const (
	MetadataFlagIsRegularZstd            uint32 = 1 << 0
	MetadataFlagIsCompressed             uint32 = 1 << 1
	MetadataFlagIsVersionedRegionalData  uint32 = 1 << 2
	MetadataFlagIsVersionedLocalizedData uint32 = 1 << 3
)

const (
	packageRecordSize    = 0x34
	groupRecordSize      = 0x1C
	pathRecordSize       = 0x20
	linkRecordSize       = 0x08
	infoRecordSize       = 0x10
	descriptorRecordSize = 0x0C
	metadataRecordSize   = 0x10
)

// RawPackage is the unresolved, field-for-field view of a packaged
// package record. PathAndGroupIndex's Index() is the package's own range
// start into the group table; Lifetime is carried as a RawHashKey rather
// than a plain integer, matching the upstream layout exactly even though
// only its low bits are load-bearing.
type RawPackage struct {
	PathAndGroupIndex RawHashKey
	Name              RawHashKey
	Parent            RawHashKey
	Lifetime          RawHashKey
	InfoStart         uint32
	InfoCount         uint32
	ChildStart        uint32
	ChildCount        uint32
	Flags             uint32
}

// DecodeRawPackage reads a RawPackage from the first packageRecordSize
// bytes of b.
func DecodeRawPackage(b []byte) (RawPackage, error) {
	if len(b) < packageRecordSize {
		return RawPackage{}, ErrTruncated
	}
	path, _ := DecodeRawHashKey(b[0:8])
	name, _ := DecodeRawHashKey(b[8:16])
	parent, _ := DecodeRawHashKey(b[16:24])
	lifetime, _ := DecodeRawHashKey(b[24:32])
	return RawPackage{
		PathAndGroupIndex: path,
		Name:              name,
		Parent:            parent,
		Lifetime:          lifetime,
		InfoStart:         binary.LittleEndian.Uint32(b[32:36]),
		InfoCount:         binary.LittleEndian.Uint32(b[36:40]),
		ChildStart:        binary.LittleEndian.Uint32(b[40:44]),
		ChildCount:        binary.LittleEndian.Uint32(b[44:48]),
		Flags:             binary.LittleEndian.Uint32(b[48:52]),
	}, nil
}

// RawGroup is the unresolved view of a group record. ArchiveOffset folds
// the two u32 halves the way the upstream split them across an 8-byte
// boundary (low, then high).
type RawGroup struct {
	archiveOffsetLo  uint32
	archiveOffsetHi  uint32
	DecompressedSize uint32
	CompressedSize   uint32
	RangeStart       uint32
	RangeCount       uint32
	SubPackage       uint32
}

// ArchiveOffset reconstructs the 64-bit archive byte offset.
func (g RawGroup) ArchiveOffset() uint64 {
	return uint64(g.archiveOffsetLo) | uint64(g.archiveOffsetHi)<<32
}

// DecodeRawGroup reads a RawGroup from the first groupRecordSize bytes of b.
func DecodeRawGroup(b []byte) (RawGroup, error) {
	if len(b) < groupRecordSize {
		return RawGroup{}, ErrTruncated
	}
	return RawGroup{
		archiveOffsetLo:  binary.LittleEndian.Uint32(b[0:4]),
		archiveOffsetHi:  binary.LittleEndian.Uint32(b[4:8]),
		DecompressedSize: binary.LittleEndian.Uint32(b[8:12]),
		CompressedSize:   binary.LittleEndian.Uint32(b[12:16]),
		RangeStart:       binary.LittleEndian.Uint32(b[16:20]),
		RangeCount:       binary.LittleEndian.Uint32(b[20:24]),
		SubPackage:       binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// RawPath is the unresolved view of a path record.
type RawPath struct {
	PathAndLinkIndex               RawHashKey
	ExtensionAndVersionedFileIndex RawHashKey
	Parent                         uint64
	FileName                       uint64
}

// DecodeRawPath reads a RawPath from the first pathRecordSize bytes of b.
func DecodeRawPath(b []byte) (RawPath, error) {
	if len(b) < pathRecordSize {
		return RawPath{}, ErrTruncated
	}
	pathKey, _ := DecodeRawHashKey(b[0:8])
	extKey, _ := DecodeRawHashKey(b[8:16])
	return RawPath{
		PathAndLinkIndex:               pathKey,
		ExtensionAndVersionedFileIndex: extKey,
		Parent:                         binary.LittleEndian.Uint64(b[16:24]),
		FileName:                       binary.LittleEndian.Uint64(b[24:32]),
	}, nil
}

// RawLink is the unresolved view of a link record.
type RawLink struct {
	Owner uint32
	Info  uint32
}

// DecodeRawLink reads a RawLink from the first linkRecordSize bytes of b.
func DecodeRawLink(b []byte) (RawLink, error) {
	if len(b) < linkRecordSize {
		return RawLink{}, ErrTruncated
	}
	return RawLink{
		Owner: binary.LittleEndian.Uint32(b[0:4]),
		Info:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// RawInfo is the unresolved view of an info record.
type RawInfo struct {
	Path       uint32
	Link       uint32
	Descriptor uint32
	Flags      uint32
}

// DecodeRawInfo reads a RawInfo from the first infoRecordSize bytes of b.
func DecodeRawInfo(b []byte) (RawInfo, error) {
	if len(b) < infoRecordSize {
		return RawInfo{}, ErrTruncated
	}
	return RawInfo{
		Path:       binary.LittleEndian.Uint32(b[0:4]),
		Link:       binary.LittleEndian.Uint32(b[4:8]),
		Descriptor: binary.LittleEndian.Uint32(b[8:12]),
		Flags:      binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// RawDescriptor is the unresolved view of a descriptor record. LoadArgs
// packs a tag into its top byte and a payload into its low 24 bits, left
// unsplit here since that split is an engine-level concern, not a raw one.
type RawDescriptor struct {
	Group    uint32
	Metadata uint32
	LoadArgs uint32
}

// DecodeRawDescriptor reads a RawDescriptor from the first
// descriptorRecordSize bytes of b.
func DecodeRawDescriptor(b []byte) (RawDescriptor, error) {
	if len(b) < descriptorRecordSize {
		return RawDescriptor{}, ErrTruncated
	}
	return RawDescriptor{
		Group:    binary.LittleEndian.Uint32(b[0:4]),
		Metadata: binary.LittleEndian.Uint32(b[4:8]),
		LoadArgs: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// RawMetadata is the unresolved view of a metadata record.
type RawMetadata struct {
	GroupOffset      uint32
	CompressedSize   uint32
	DecompressedSize uint32
	Flags            uint32
}

// DecodeRawMetadata reads a RawMetadata from the first metadataRecordSize
// bytes of b.
func DecodeRawMetadata(b []byte) (RawMetadata, error) {
	if len(b) < metadataRecordSize {
		return RawMetadata{}, ErrTruncated
	}
	return RawMetadata{
		GroupOffset:      binary.LittleEndian.Uint32(b[0:4]),
		CompressedSize:   binary.LittleEndian.Uint32(b[4:8]),
		DecompressedSize: binary.LittleEndian.Uint32(b[8:12]),
		Flags:            binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}
