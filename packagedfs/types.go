// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package packagedfs implements the PackagedEngine: the densest sub-graph
// in the manifest, describing every compressed, archive-packed file
// grouped into packages, with a patch overlay adding/replacing files on
// top of a base version.
package packagedfs

import (
	"github.com/saferwall/snarc/table"
)

// Package flag bit positions, all within bits 24..28 of Package.Flags.
const (
	PackageFlagIsLocalized      uint32 = 1 << 24
	PackageFlagIsRegional       uint32 = 1 << 25
	PackageFlagHasSubPackage    uint32 = 1 << 26
	PackageFlagSymLinkRegional  uint32 = 1 << 27
	PackageFlagIsSymLink        uint32 = 1 << 28
)

// Info flag bit positions.
const (
	InfoFlagIsRegularFile     uint32 = 1 << 4
	InfoFlagIsGraphicsArchive uint32 = 1 << 12
	InfoFlagIsLocalized       uint32 = 1 << 15
	InfoFlagIsRegional        uint32 = 1 << 16
	InfoFlagIsShared          uint32 = 1 << 20
	InfoFlagUnknown           uint32 = 1 << 21
)

// Metadata flag bit positions.
const (
	MetadataFlagIsStandardZstd           uint32 = 1 << 0
	MetadataFlagIsCompressed             uint32 = 1 << 1
	MetadataFlagIsRegionalVersionedData  uint32 = 1 << 2
	MetadataFlagIsLocalizedVersionedData uint32 = 1 << 3
)

// groupCountForFlags derives a package or info's range cardinality from its
// localization flags: localized -> 15, regional -> 6, else -> 1.
func groupCountForFlags(flags uint32, localizedBit, regionalBit uint32) int {
	switch {
	case flags&localizedBit != 0:
		return 15
	case flags&regionalBit != 0:
		return 6
	default:
		return 1
	}
}

// Package is the top-level grouping of a set of archive-packed files
// sharing a lifetime and localization/regional policy.
type Package struct {
	FullPath      uint64 // Hash40
	Name          uint64
	Parent        uint64
	Lifetime      uint64 // Hash40, carried whole even though only the low bits are load-bearing
	Groups        table.ContiguousRef[Group]
	Infos         table.ContiguousRef[Info]
	ChildPackages table.ContiguousRef[ChildPackage]
	Flags         uint32
}

// IsLocalized reports the package's localization flag.
func (p Package) IsLocalized() bool { return p.Flags&PackageFlagIsLocalized != 0 }

// IsRegional reports the package's regional flag.
func (p Package) IsRegional() bool { return p.Flags&PackageFlagIsRegional != 0 }

// HasSubPackage reports whether this package is itself embedded as the
// sub_package of some Group.
func (p Package) HasSubPackage() bool { return p.Flags&PackageFlagHasSubPackage != 0 }

// IsSymLink reports the symlink flag.
func (p Package) IsSymLink() bool { return p.Flags&PackageFlagIsSymLink != 0 }

// GroupCount is the cardinality this package's Groups range must have.
func (p Package) GroupCount() int {
	return groupCountForFlags(p.Flags, PackageFlagIsLocalized, PackageFlagIsRegional)
}

// ChildPackage is a symlink-like entry pointing at another Package sharing
// this package's blob, keyed by its own full path.
type ChildPackage struct {
	FullPath uint64
	Pkg      table.Ref[Package]
}

// SubPackageKind discriminates a Group's optional sub_package variant.
type SubPackageKind int

const (
	// SubPackageNone means the group carries no sub_package at all.
	SubPackageNone SubPackageKind = iota
	// SubPackagePackage means the sub_package resolves into the packages table.
	SubPackagePackage
	// SubPackageGroup means the sub_package resolves into the groups table
	// (a group that is, itself, its own sub_package is "self-referential").
	SubPackageGroup
)

// SubPackageRef is Group's multi-variant optional reference: absent, or
// resolving into either the packages table or the groups table depending
// on where the raw index falls. A raw index of literal 0 resolves to
// absent and is the wire signal for an info/version-group; the 24-bit
// invalid sentinel is also absent but marks a metadata-group instead.
type SubPackageRef struct {
	kind     SubPackageKind
	rawIndex uint32
	pkg      *table.Cell[Package]
	grp      *table.Cell[Group]
	// resolved is true once the variant has been discriminated — at parse
	// time for the invalid-index sentinel, during Resolve otherwise.
	resolved bool
}

// Kind returns which variant (or none) this reference resolved to.
func (r SubPackageRef) Kind() SubPackageKind { return r.kind }

// Package returns the resolved package, if Kind() == SubPackagePackage.
func (r SubPackageRef) Package() *table.Cell[Package] { return r.pkg }

// Group returns the resolved group, if Kind() == SubPackageGroup.
func (r SubPackageRef) Group() *table.Cell[Group] { return r.grp }

// GroupFileKind discriminates a Group's file-range variant.
type GroupFileKind int

const (
	// GroupFilesInfos means Files resolves into the infos table (an info-group).
	GroupFilesInfos GroupFileKind = iota
	// GroupFilesMetadatas means Files resolves into the metadatas table (a metadata-group).
	GroupFilesMetadatas
)

// Group is a contiguous region of the archive blob, backing either a run
// of Info entries (info-group) or Metadata entries (metadata-group).
type Group struct {
	ArchiveOffset    uint64
	DecompressedSize uint32
	CompressedSize   uint32
	fileStart        uint32
	fileCount        uint32
	FileKind         GroupFileKind
	InfoFiles        table.ContiguousRef[Info]
	MetadataFiles    table.ContiguousRef[Metadata]
	SubPackage       SubPackageRef
}

// IsInfoGroup reports whether this group's files are Info entries.
// Classification happens once, during Resolve: a raw sub_package index of
// 0 or of the group's own position marks an info-group.
func (g Group) IsInfoGroup() bool { return g.FileKind == GroupFilesInfos }

// IsMetadataGroup reports whether this group's files are Metadata entries.
func (g Group) IsMetadataGroup() bool { return g.FileKind == GroupFilesMetadatas }

// IsVersionGroup reports whether this group is an info-group with no
// sub_package at all (i.e. it backs a patch's versioned files).
func (g Group) IsVersionGroup() bool {
	return g.FileKind == GroupFilesInfos && g.SubPackage.kind == SubPackageNone
}

// Path is one file-system entry inside the packaged namespace.
type Path struct {
	FullPath      uint64
	Extension     uint64
	Parent        uint64
	FileName      uint64
	Link          table.Ref[Link]
	VersionedFile table.OptionalRef[VersionedFile]
}

// LinkOwnerKind discriminates Link.Owner.
type LinkOwnerKind int

const (
	// LinkOwnerPackage means the link is owned directly by a Package.
	LinkOwnerPackage LinkOwnerKind = iota
	// LinkOwnerGroup means the link is owned by a Group.
	LinkOwnerGroup
)

// LinkOwnerRef is Link's multi-variant owner reference, discriminated by
// whether the raw index falls below len(packages).
type LinkOwnerRef struct {
	kind     LinkOwnerKind
	rawIndex uint32
	pkg      *table.Cell[Package]
	grp      *table.Cell[Group]
}

// Kind returns which variant this owner reference resolved to.
func (r LinkOwnerRef) Kind() LinkOwnerKind { return r.kind }

// Package returns the resolved owning package, if Kind() == LinkOwnerPackage.
func (r LinkOwnerRef) Package() *table.Cell[Package] { return r.pkg }

// Group returns the resolved owning group, if Kind() == LinkOwnerGroup.
func (r LinkOwnerRef) Group() *table.Cell[Group] { return r.grp }

// Link is the cross-wiring node between a Path/Info pair and the Package
// or Group that owns it.
type Link struct {
	Owner LinkOwnerRef
	Info  table.Ref[Info]
}

// Info is one logical file: the unit a Descriptor's load_args ultimately
// points load-time behavior at.
type Info struct {
	PathRef     table.Ref[Path]
	LinkRef     table.Ref[Link]
	Descriptors table.ContiguousRef[Descriptor]
	Flags       uint32
}

// IsRegularFile reports the regular-file flag.
func (i Info) IsRegularFile() bool { return i.Flags&InfoFlagIsRegularFile != 0 }

// IsGraphicsArchive reports the graphics-archive flag.
func (i Info) IsGraphicsArchive() bool { return i.Flags&InfoFlagIsGraphicsArchive != 0 }

// IsLocalized reports the localization flag.
func (i Info) IsLocalized() bool { return i.Flags&InfoFlagIsLocalized != 0 }

// IsRegional reports the regional flag.
func (i Info) IsRegional() bool { return i.Flags&InfoFlagIsRegional != 0 }

// IsShared reports the shared flag.
func (i Info) IsShared() bool { return i.Flags&InfoFlagIsShared != 0 }

// DescriptorCount is the cardinality this info's Descriptors range must have.
func (i Info) DescriptorCount() int {
	return groupCountForFlags(i.Flags, InfoFlagIsLocalized, InfoFlagIsRegional)
}

// LoadArgsTag discriminates Descriptor.LoadArgs's sum type, taken from the
// top byte of its on-disk u32 word.
type LoadArgsTag uint8

const (
	LoadArgsUnowned           LoadArgsTag = 0x00
	LoadArgsOwned             LoadArgsTag = 0x01
	LoadArgsPackageSkip       LoadArgsTag = 0x03
	LoadArgsUnknown           LoadArgsTag = 0x05
	LoadArgsSharedButOwned    LoadArgsTag = 0x09
	LoadArgsUnsupportedRegion LoadArgsTag = 0x10
)

// LoadArgs is Descriptor's tagged union, parsed once at resolve time and
// preserved through reorganize with no runtime transitions.
type LoadArgs struct {
	Tag     LoadArgsTag
	Payload uint32 // raw 24-bit payload, meaning depends on Tag

	// Resolved fields, populated during Descriptor.Resolve. Only the field
	// matching Tag is meaningful.
	Link       table.Ref[Link] // Unowned, SharedButOwned: link index
	PatchIndex int             // Owned: direct patch index; -1 only for non-versioned descriptors (no patch)
	InfoIndex  uint32          // PackageSkip: final (offset-biased) info index, at resolve time
	InfoRef    table.Ref[Info] // PackageSkip: the actual info cell InfoIndex named, kept for re-biasing on write
}

// Descriptor binds a file's on-disk home (a Group) and optional Metadata to
// its load-time behavior (LoadArgs).
type Descriptor struct {
	Group    table.Ref[Group]
	Metadata table.OptionalRef[Metadata]
	LoadArgs LoadArgs
}

// Metadata describes one file's placement and compression state within its
// owning Group's blob range.
type Metadata struct {
	GroupOffset      uint32
	CompressedSize   uint32
	DecompressedSize uint32
	Flags            uint32
}

// IsStandardZstd reports the standard-zstd flag.
func (m Metadata) IsStandardZstd() bool { return m.Flags&MetadataFlagIsStandardZstd != 0 }

// IsCompressed reports the compressed flag.
func (m Metadata) IsCompressed() bool { return m.Flags&MetadataFlagIsCompressed != 0 }

// Patch is a versioned overlay adding or replacing files on top of the
// base packaged filesystem.
type Patch struct {
	VersionMajor        uint16
	VersionMinor        uint16
	VersionPatch        uint16
	FileCount           uint32
	Group               table.Ref[Group]
	VersionedFiles      table.ContiguousRef[VersionedFile]
	Infos               table.ContiguousRef[Info]
	NumChangedThisPatch uint32
}

// VersionedFile is a file entry attached to a specific Patch.
type VersionedFile struct {
	PathHash          uint64
	Info              table.Ref[Info]
	LinkRef           table.Ref[Link]
	ChangedThisPatch  bool
}

const (
	packageRecordSize       = 0x34
	childPackageRecordSize  = 0x08
	groupRecordSize         = 0x1C
	pathRecordSize          = 0x20
	linkRecordSize          = 0x08
	infoRecordSize          = 0x10
	descriptorRecordSize    = 0x0C
	metadataRecordSize      = 0x10
	patchHeaderRecordSize   = 0x20
	versionedFileRecordSize = 0x10

	// versionedFileChangedBit is the bit of a versioned file's path hash
	// whose clear state (0) marks the file as changed this patch, per the
	// manifest's "bit 24 of the packed hash-key" rule — interpreted here as
	// bit 24 of the 40-bit hash itself, since the stored index half of a
	// HashKey is only 24 bits wide (0..23) and cannot itself address a
	// "bit 24".
	versionedFileChangedBit uint64 = 1 << 24

	// patchVersionedFileBuckets is the fixed bucket count every patch's
	// versioned-file hash lookup uses, regardless of file_count.
	patchVersionedFileBuckets = 1024
)
