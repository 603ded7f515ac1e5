// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package archive implements the orchestrator that combines the packaged,
// stream and search sub-filesystems into the single compressed container a
// runtime loads: the outer header, the two independently zstd-framed
// table sections, and the region/locale lookup carried between them.
package archive

import (
	"encoding/binary"
	"fmt"
)

const (
	// ContainerMagic identifies the outer archive container.
	ContainerMagic uint64 = 0xABCDEF9876543210
	// TablesHeaderMagic identifies an ArchiveTablesHeader.
	TablesHeaderMagic uint32 = 0x10

	containerHeaderSize = 48
	tablesHeaderSize    = 16

	// nonUserZeroPadSize and userZeroPadSize are the fixed zero-pad runs the
	// writer emits ahead of the stream/search bodies inside each section,
	// matching the upstream container's reserved header space.
	nonUserZeroPadSize = 0x110
	userZeroPadSize    = 0x14

	// regionLookupCount is the fixed length of the region lookup table,
	// carried verbatim from input to output.
	regionLookupCount = 14

	// localeSlotCount and regionSlotCount are the two upstream-hardcoded
	// wire counts: the PackagedFsHeader always advertises 14 locale
	// slots and 5 region slots on the wire, regardless of what the
	// in-memory header value holds.
	localeSlotCount = 14
	regionSlotCount = 5
)

// ContainerHeader is the outermost fixed-size header of an archive file.
type ContainerHeader struct {
	Magic               uint64
	StreamDataStart     uint64
	FileDataStart       uint64
	SharedFileDataStart uint64
	NonUserTablesPtr    uint64
	UserTablesPtr       uint64
}

func parseContainerHeader(b []byte) (ContainerHeader, error) {
	if len(b) < containerHeaderSize {
		return ContainerHeader{}, fmt.Errorf("archive: container header truncated: %w", ErrFormat)
	}
	h := ContainerHeader{
		Magic:               binary.LittleEndian.Uint64(b[0:8]),
		StreamDataStart:     binary.LittleEndian.Uint64(b[8:16]),
		FileDataStart:       binary.LittleEndian.Uint64(b[16:24]),
		SharedFileDataStart: binary.LittleEndian.Uint64(b[24:32]),
		NonUserTablesPtr:    binary.LittleEndian.Uint64(b[32:40]),
		UserTablesPtr:       binary.LittleEndian.Uint64(b[40:48]),
	}
	if h.Magic != ContainerMagic {
		return ContainerHeader{}, ErrBadMagic
	}
	return h, nil
}

func (h ContainerHeader) encode() []byte {
	b := make([]byte, containerHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.Magic)
	binary.LittleEndian.PutUint64(b[8:16], h.StreamDataStart)
	binary.LittleEndian.PutUint64(b[16:24], h.FileDataStart)
	binary.LittleEndian.PutUint64(b[24:32], h.SharedFileDataStart)
	binary.LittleEndian.PutUint64(b[32:40], h.NonUserTablesPtr)
	binary.LittleEndian.PutUint64(b[40:48], h.UserTablesPtr)
	return b
}

// ArchiveTablesHeader precedes each of the two independently zstd-framed
// table sections (non-user and user).
type ArchiveTablesHeader struct {
	Magic                 uint32
	DecompressedSize      uint32
	CompressedSize        uint32
	CompressedSectionSize uint32
}

func parseTablesHeader(b []byte) (ArchiveTablesHeader, error) {
	if len(b) < tablesHeaderSize {
		return ArchiveTablesHeader{}, fmt.Errorf("archive: tables header truncated: %w", ErrFormat)
	}
	h := ArchiveTablesHeader{
		Magic:                 binary.LittleEndian.Uint32(b[0:4]),
		DecompressedSize:      binary.LittleEndian.Uint32(b[4:8]),
		CompressedSize:        binary.LittleEndian.Uint32(b[8:12]),
		CompressedSectionSize: binary.LittleEndian.Uint32(b[12:16]),
	}
	if h.Magic != TablesHeaderMagic {
		return ArchiveTablesHeader{}, ErrBadMagic
	}
	return h, nil
}

func (h ArchiveTablesHeader) encode() []byte {
	b := make([]byte, tablesHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.DecompressedSize)
	binary.LittleEndian.PutUint32(b[8:12], h.CompressedSize)
	binary.LittleEndian.PutUint32(b[12:16], h.CompressedSectionSize)
	return b
}

// roundUp8 rounds n up to the next multiple of 8, matching
// compressed_section_size = round_up(compressed_size, 8).
func roundUp8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// Locale enumerates the 14 locale slots a packaged archive carries.
type Locale uint32

// The 14 locales, in wire order.
const (
	UsEnglish Locale = iota
	UsFrench
	UsSpanish
	EuEnglish
	EuFrench
	EuSpanish
	EuGerman
	EuItalian
	EuDutch
	EuPortuguese
	EuRussian
	JpJapanese
	ZhChina
	ZhTaiwan
)

// LocaleFromString maps a "xx_yy" locale code to its Locale. The eu_en,
// eu_fr and eu_es cases collapse onto their US counterparts — this is a
// preserved upstream bug, not a typo; it is deliberately not fixed.
func LocaleFromString(s string) (Locale, error) {
	switch s {
	case "us_en":
		return UsEnglish, nil
	case "us_fr":
		return UsFrench, nil
	case "us_es":
		return UsSpanish, nil
	case "eu_en":
		return UsEnglish, nil
	case "eu_fr":
		return UsFrench, nil
	case "eu_es":
		return UsSpanish, nil
	case "eu_de":
		return EuGerman, nil
	case "eu_it":
		return EuItalian, nil
	case "eu_nl":
		return EuDutch, nil
	case "eu_pt":
		return EuPortuguese, nil
	case "eu_ru":
		return EuRussian, nil
	case "jp_ja":
		return JpJapanese, nil
	case "zh_cn":
		return ZhChina, nil
	case "zh_tw":
		return ZhTaiwan, nil
	default:
		return 0, fmt.Errorf("archive: unrecognized locale code %q: %w", s, ErrFormat)
	}
}

// Region enumerates the 5 region slots a packaged archive carries.
type Region uint32

const (
	RegionUS Region = iota
	RegionEU
	RegionJP
	RegionKR
	RegionZH
)

// RegionLookupEntry is one (locale_hash, region_hash, region_index) triple
// of the 14-entry region_lookup_table, carried verbatim from input to
// output.
type RegionLookupEntry struct {
	LocaleHash  uint64
	RegionHash  uint64
	RegionIndex uint32
}

const regionLookupEntrySize = 20 // 8 + 8 + 4

func parseRegionLookupTable(b []byte) ([regionLookupCount]RegionLookupEntry, error) {
	var out [regionLookupCount]RegionLookupEntry
	if len(b) < regionLookupCount*regionLookupEntrySize {
		return out, fmt.Errorf("archive: region lookup table truncated: %w", ErrFormat)
	}
	for i := range out {
		r := b[i*regionLookupEntrySize:]
		out[i] = RegionLookupEntry{
			LocaleHash:  binary.LittleEndian.Uint64(r[0:8]),
			RegionHash:  binary.LittleEndian.Uint64(r[8:16]),
			RegionIndex: binary.LittleEndian.Uint32(r[16:20]),
		}
	}
	return out, nil
}

func encodeRegionLookupTable(t [regionLookupCount]RegionLookupEntry) []byte {
	b := make([]byte, regionLookupCount*regionLookupEntrySize)
	for i, e := range t {
		r := b[i*regionLookupEntrySize:]
		binary.LittleEndian.PutUint64(r[0:8], e.LocaleHash)
		binary.LittleEndian.PutUint64(r[8:16], e.RegionHash)
		binary.LittleEndian.PutUint32(r[16:20], e.RegionIndex)
	}
	return b
}

// PackagedFsHeader precedes the packaged body inside the non-user section.
// LocaleCount and RegionCount are written to the in-memory header value as
// 0 by New (the first half of the preserved upstream bug); the wire
// encoding of those two fields is separately hardcoded to
// localeSlotCount/regionSlotCount regardless of what the struct holds (the
// second half).
type PackagedFsHeader struct {
	LocaleCount  uint32
	RegionCount  uint32
	RegionLookup [regionLookupCount]RegionLookupEntry

	VersionMajor uint16
	VersionMinor uint16
	VersionPatch uint16

	PackageCount      uint32
	ChildPackageCount uint32
	GroupCount        uint32
	PathCount         uint32
	LinkCount         uint32
	InfoCount         uint32
	DescriptorCount   uint32
	MetadataCount     uint32
	BucketCount       uint32
}

const packagedFsHeaderSize = 8 + regionLookupCount*regionLookupEntrySize + 6 + 4*8 + 4

func parsePackagedFsHeader(b []byte) (PackagedFsHeader, error) {
	var h PackagedFsHeader
	if len(b) < packagedFsHeaderSize {
		return h, fmt.Errorf("archive: packaged fs header truncated: %w", ErrFormat)
	}
	h.LocaleCount = binary.LittleEndian.Uint32(b[0:4])
	h.RegionCount = binary.LittleEndian.Uint32(b[4:8])
	pos := 8
	rt, err := parseRegionLookupTable(b[pos:])
	if err != nil {
		return h, err
	}
	h.RegionLookup = rt
	pos += regionLookupCount * regionLookupEntrySize

	h.VersionMajor = binary.LittleEndian.Uint16(b[pos : pos+2])
	h.VersionMinor = binary.LittleEndian.Uint16(b[pos+2 : pos+4])
	h.VersionPatch = binary.LittleEndian.Uint16(b[pos+4 : pos+6])
	pos += 6

	fields := []*uint32{
		&h.PackageCount, &h.ChildPackageCount, &h.GroupCount, &h.PathCount,
		&h.LinkCount, &h.InfoCount, &h.DescriptorCount, &h.MetadataCount,
		&h.BucketCount,
	}
	for _, f := range fields {
		*f = binary.LittleEndian.Uint32(b[pos : pos+4])
		pos += 4
	}
	return h, nil
}

func (h PackagedFsHeader) encode() []byte {
	b := make([]byte, packagedFsHeaderSize)
	// Preserved bug: the wire locale/region counts are hardcoded, never
	// taken from the struct's own LocaleCount/RegionCount fields.
	binary.LittleEndian.PutUint32(b[0:4], localeSlotCount)
	binary.LittleEndian.PutUint32(b[4:8], regionSlotCount)
	pos := 8
	copy(b[pos:], encodeRegionLookupTable(h.RegionLookup))
	pos += regionLookupCount * regionLookupEntrySize

	binary.LittleEndian.PutUint16(b[pos:pos+2], h.VersionMajor)
	binary.LittleEndian.PutUint16(b[pos+2:pos+4], h.VersionMinor)
	binary.LittleEndian.PutUint16(b[pos+4:pos+6], h.VersionPatch)
	pos += 6

	fields := []uint32{
		h.PackageCount, h.ChildPackageCount, h.GroupCount, h.PathCount,
		h.LinkCount, h.InfoCount, h.DescriptorCount, h.MetadataCount,
		h.BucketCount,
	}
	for _, v := range fields {
		binary.LittleEndian.PutUint32(b[pos:pos+4], v)
		pos += 4
	}
	return b
}

// StreamFsHeader precedes the stream body inside the non-user section. It
// carries only the four table counts; the stream path lookup that follows
// the folders table is a flat, headerless run of HashKeys sized by
// PathCount.
type StreamFsHeader struct {
	FolderCount   uint32
	PathCount     uint32
	LinkCount     uint32
	MetadataCount uint32
}

const streamFsHeaderSize = 4 * 4

func parseStreamFsHeader(b []byte) (StreamFsHeader, error) {
	var h StreamFsHeader
	if len(b) < streamFsHeaderSize {
		return h, fmt.Errorf("archive: stream fs header truncated: %w", ErrFormat)
	}
	h.FolderCount = binary.LittleEndian.Uint32(b[0:4])
	h.PathCount = binary.LittleEndian.Uint32(b[4:8])
	h.LinkCount = binary.LittleEndian.Uint32(b[8:12])
	h.MetadataCount = binary.LittleEndian.Uint32(b[12:16])
	return h, nil
}

func (h StreamFsHeader) encode() []byte {
	b := make([]byte, streamFsHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.FolderCount)
	binary.LittleEndian.PutUint32(b[4:8], h.PathCount)
	binary.LittleEndian.PutUint32(b[8:12], h.LinkCount)
	binary.LittleEndian.PutUint32(b[12:16], h.MetadataCount)
	return b
}

// SearchFsHeader precedes the search body inside the user section.
// PathLinkCount sizes the combined flat path-lookup + path-links region
// between the folders and paths tables (one 8-byte key plus one 4-byte
// link index per entry); there is no bucket structure anywhere in the
// search sub-graph's wire format.
type SearchFsHeader struct {
	FolderCount   uint32
	PathLinkCount uint32
	PathCount     uint32
}

const searchFsHeaderSize = 4 * 3

func parseSearchFsHeader(b []byte) (SearchFsHeader, error) {
	var h SearchFsHeader
	if len(b) < searchFsHeaderSize {
		return h, fmt.Errorf("archive: search fs header truncated: %w", ErrFormat)
	}
	h.FolderCount = binary.LittleEndian.Uint32(b[0:4])
	h.PathLinkCount = binary.LittleEndian.Uint32(b[4:8])
	h.PathCount = binary.LittleEndian.Uint32(b[8:12])
	return h, nil
}

func (h SearchFsHeader) encode() []byte {
	b := make([]byte, searchFsHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.FolderCount)
	binary.LittleEndian.PutUint32(b[4:8], h.PathLinkCount)
	binary.LittleEndian.PutUint32(b[8:12], h.PathCount)
	return b
}
