// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"encoding/binary"
	"testing"

	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// buildSinglePackageArchive constructs one package anchored on a single
// metadata-group (sub_package carrying the absent sentinel, as real
// archives write their anchor groups), one info carrying one Unowned
// descriptor, one link, and one path — the minimal shape Resolve()'s
// eight-step protocol can walk end to end.
func buildSinglePackageArchive(h codec.Hasher) (*Engine, *table.Cell[Package]) {
	group := table.NewCell(Group{
		ArchiveOffset:    0,
		DecompressedSize: 10,
		CompressedSize:   5,
		fileStart:        0,
		fileCount:        0,
		SubPackage:       SubPackageRef{rawIndex: hashkey.InvalidIndex, kind: SubPackageNone, resolved: true},
	})

	info := table.NewCell(Info{
		PathRef:     table.UnresolvedRef[Path](0),
		LinkRef:     table.UnresolvedRef[Link](0),
		Descriptors: table.UnresolvedContiguousRef[Descriptor](0, 1),
		Flags:       InfoFlagIsRegularFile,
	})

	descriptor := table.NewCell(Descriptor{
		Group:    table.UnresolvedRef[Group](0),
		Metadata: table.NoRef[Metadata](),
		LoadArgs: LoadArgs{Tag: LoadArgsUnowned, Payload: 0},
	})

	link := table.NewCell(Link{
		Owner: LinkOwnerRef{rawIndex: 0},
		Info:  table.UnresolvedRef[Info](0),
	})

	path := table.NewCell(Path{
		FullPath:      h.Hash("a/b.bin"),
		Extension:     h.Hash("bin"),
		Parent:        h.Hash("a"),
		FileName:      h.Hash("b.bin"),
		Link:          table.UnresolvedRef[Link](0),
		VersionedFile: table.NoRef[VersionedFile](),
	})

	pkg := table.NewCell(Package{
		FullPath:      h.Hash("pkg"),
		Groups:        table.UnresolvedContiguousRef[Group](0, 1),
		Infos:         table.UnresolvedContiguousRef[Info](0, 1),
		ChildPackages: table.UnresolvedContiguousRef[ChildPackage](0, 0),
		Flags:         0,
	})

	tables := &Tables{
		Packages:    []*table.Cell[Package]{pkg},
		Groups:      []*table.Cell[Group]{group},
		Infos:       []*table.Cell[Info]{info},
		Descriptors: []*table.Cell[Descriptor]{descriptor},
		Paths:       []*table.Cell[Path]{path},
		Links:       []*table.Cell[Link]{link},
	}

	e := New(tables, 16, h)
	return e, pkg
}

func TestPackageGroupCardinality(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, pkg := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pv := pkg.Get()
	if got := pv.GroupCount(); got != 1 {
		t.Fatalf("GroupCount = %d, want 1", got)
	}
	if got := len(pv.Groups.Cells()); got != 1 {
		t.Fatalf("len(Groups) = %d, want 1", got)
	}

	info := e.Infos()[0].Get()
	if got := info.DescriptorCount(); got != 1 {
		t.Fatalf("DescriptorCount = %d, want 1", got)
	}
}

func TestResolveClassifiesMetadataGroup(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, _ := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	g := e.Groups()[0].Get()
	if !g.IsMetadataGroup() {
		t.Fatal("a group whose sub_package carries the absent sentinel must classify as a metadata-group")
	}
	if g.SubPackage.Kind() != SubPackageNone {
		t.Fatalf("SubPackage kind = %v, want SubPackageNone", g.SubPackage.Kind())
	}
}

// TestResolveClassifiesGroupsByRawIndex pins the wire convention down: a
// raw sub_package index of literal 0 marks a version-group, the group's
// own position marks a plain info-group, and anything else (including the
// parse-time sentinel) a metadata-group.
func TestResolveClassifiesGroupsByRawIndex(t *testing.T) {
	h := codec.NewPlaceholderHasher()

	sentinel := table.NewCell(Group{
		SubPackage: SubPackageRef{rawIndex: hashkey.InvalidIndex, kind: SubPackageNone, resolved: true},
	})
	selfRef := table.NewCell(Group{
		fileStart:  0,
		fileCount:  0,
		SubPackage: SubPackageRef{rawIndex: 1}, // its own index in the groups table
	})
	version := table.NewCell(Group{
		fileStart:  0,
		fileCount:  0,
		SubPackage: SubPackageRef{rawIndex: 0}, // literal 0, the version-group signal
	})

	tables := &Tables{
		Groups: []*table.Cell[Group]{sentinel, selfRef, version},
	}
	e := New(tables, 16, h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if g := sentinel.Get(); !g.IsMetadataGroup() || g.IsVersionGroup() {
		t.Fatal("sentinel sub_package must classify as a metadata-group")
	}
	if g := selfRef.Get(); !g.IsInfoGroup() || g.IsVersionGroup() {
		t.Fatal("a self-referential group is an info-group but not a version-group")
	}
	if g := version.Get(); !g.IsVersionGroup() {
		t.Fatal("a raw sub_package index of 0 must classify as a version-group")
	}
	if g := selfRef.Get(); g.SubPackage.Kind() != SubPackageGroup || g.SubPackage.Group().GUID() != selfRef.GUID() {
		t.Fatal("self-referential sub_package must resolve to the group itself, with no index offset")
	}
}

func TestAddFileSurface(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, pkg := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pkgHash := pkg.Get().FullPath
	info, err := e.AddFile("a/bar.nutexb", pkgHash)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if !e.HasFile(h.Hash("a/bar.nutexb")) {
		t.Fatal("HasFile false after AddFile")
	}
	if !info.Get().IsGraphicsArchive() {
		t.Fatal("expected IsGraphicsArchive for a .nutexb file")
	}
	if info.Get().IsRegularFile() {
		t.Fatal("graphics archive file should not also carry is_regular_file")
	}

	found, err := e.GetFile(h.Hash("a/bar.nutexb"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if found.Get().Extension != h.Hash("nutexb") {
		t.Fatal("written path extension mismatch")
	}

	if got := len(pkg.Get().Infos.Cells()); got != 2 {
		t.Fatalf("pkg.Infos() = %d, want 2 after AddFile", got)
	}
}

func TestAddFileRejectsDuplicate(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, pkg := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pkgHash := pkg.Get().FullPath
	if _, err := e.AddFile("a/b.bin", pkgHash); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists for a path already in file_lookup, got %v", err)
	}
}

// TestPackageSkipDescriptorWriteBiasesInfoIndex pins the PackageSkip wire
// encoding down: a package-owned descriptor (before the packaged-descriptor
// boundary) emits 0x03 in the top byte and its target's final info index
// minus the info-group info start in the low 24 bits, while descriptors at
// or past the boundary write their payload unbiased.
func TestPackageSkipDescriptorWriteBiasesInfoIndex(t *testing.T) {
	h := codec.NewPlaceholderHasher()

	anchorGroup := table.NewCell(Group{
		SubPackage: SubPackageRef{rawIndex: hashkey.InvalidIndex, kind: SubPackageNone, resolved: true},
	})
	infoGroup := table.NewCell(Group{
		fileStart:  1,
		fileCount:  1,
		SubPackage: SubPackageRef{rawIndex: 1}, // its own position: a plain info-group
	})

	skipInfo := table.NewCell(Info{
		PathRef:     table.UnresolvedRef[Path](0),
		LinkRef:     table.UnresolvedRef[Link](0),
		Descriptors: table.UnresolvedContiguousRef[Descriptor](0, 1),
		Flags:       InfoFlagIsRegularFile,
	})
	targetInfo := table.NewCell(Info{
		PathRef:     table.UnresolvedRef[Path](0),
		LinkRef:     table.UnresolvedRef[Link](1),
		Descriptors: table.UnresolvedContiguousRef[Descriptor](1, 2),
		Flags:       InfoFlagIsRegularFile,
	})

	skipDescriptor := table.NewCell(Descriptor{
		Group:    table.UnresolvedRef[Group](0),
		Metadata: table.NoRef[Metadata](),
		LoadArgs: LoadArgs{Tag: LoadArgsPackageSkip, Payload: 0}, // info-group-relative index 0
	})
	targetDescriptor := table.NewCell(Descriptor{
		Group:    table.UnresolvedRef[Group](1),
		Metadata: table.NoRef[Metadata](),
		LoadArgs: LoadArgs{Tag: LoadArgsUnowned, Payload: 1},
	})

	skipLink := table.NewCell(Link{
		Owner: LinkOwnerRef{rawIndex: 0},
		Info:  table.UnresolvedRef[Info](0),
	})
	groupLink := table.NewCell(Link{
		Owner: LinkOwnerRef{rawIndex: 2}, // len(packages) + 1 -> the info-group
		Info:  table.UnresolvedRef[Info](1),
	})

	path := table.NewCell(Path{
		FullPath:      h.Hash("a/b.bin"),
		Extension:     h.Hash("bin"),
		Parent:        h.Hash("a"),
		FileName:      h.Hash("b.bin"),
		Link:          table.UnresolvedRef[Link](1),
		VersionedFile: table.NoRef[VersionedFile](),
	})

	pkg := table.NewCell(Package{
		FullPath:      h.Hash("pkg"),
		Groups:        table.UnresolvedContiguousRef[Group](0, 1),
		Infos:         table.UnresolvedContiguousRef[Info](0, 1),
		ChildPackages: table.UnresolvedContiguousRef[ChildPackage](0, 0),
	})

	tables := &Tables{
		Packages:    []*table.Cell[Package]{pkg},
		Groups:      []*table.Cell[Group]{anchorGroup, infoGroup},
		Infos:       []*table.Cell[Info]{skipInfo, targetInfo},
		Descriptors: []*table.Cell[Descriptor]{skipDescriptor, targetDescriptor},
		Links:       []*table.Cell[Link]{skipLink, groupLink},
		Paths:       []*table.Cell[Path]{path},
	}
	e := New(tables, 16, h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Resolve biased the package-owned descriptor's raw payload 0 by the
	// info-group info start (1) onto the target info.
	if got := skipDescriptor.Get().LoadArgs.InfoRef.Cell().GUID(); got != targetInfo.GUID() {
		t.Fatal("PackageSkip payload did not resolve to the info-group info")
	}

	reorg := e.Reorganize()
	w := NewWriter(reorg)
	results := w.partitionResults()
	blob := w.encodeDescriptors(results.PackagedDescriptorLen, uint32(results.PackagedInfoLen))

	// The target info's final index is 1 and info_group_info_start is 1, so
	// the emitted payload is 1 - 1 = 0 under the 0x03 tag.
	word := binary.LittleEndian.Uint32(blob[8:12])
	if want := uint32(LoadArgsPackageSkip) << 24; word != want {
		t.Fatalf("packaged PackageSkip word = %#x, want %#x", word, want)
	}

	// The info-group descriptor sits past the boundary: its Unowned payload
	// is the link's final index, written unbiased.
	word2 := binary.LittleEndian.Uint32(blob[descriptorRecordSize+8 : descriptorRecordSize+12])
	if want := uint32(LoadArgsUnowned) << 24; word2 != want {
		t.Fatalf("info-group descriptor word = %#x, want %#x", word2, want)
	}
}

func TestReorganizePreservesTableSizes(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, pkg := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pkgHash := pkg.Get().FullPath
	if _, err := e.AddFile("a/bar.nutexb", pkgHash); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	reorg := e.Reorganize()
	if got := len(reorg.Packages()); got != 1 {
		t.Fatalf("Packages = %d, want 1", got)
	}
	if got := len(reorg.Infos()); got != 2 {
		t.Fatalf("Infos = %d, want 2", got)
	}
	if got := len(reorg.Links()); got != 2 {
		t.Fatalf("Links = %d, want 2", got)
	}
	if got := len(reorg.Paths()); got != 2 {
		t.Fatalf("Paths = %d, want 2", got)
	}

	w := NewWriter(reorg)
	if got := len(w.encodePackages()); got != len(reorg.Packages())*packageRecordSize {
		t.Fatalf("unexpected encoded package byte length")
	}
	if got := len(w.encodeInfos()); got != len(reorg.Infos())*infoRecordSize {
		t.Fatalf("unexpected encoded info byte length")
	}
}
