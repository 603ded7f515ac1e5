// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"testing"

	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// buildPatchedArchive constructs one package whose single file has a
// versioned overlay: a metadata-group anchoring the package, a version
// group backing the patch, a base info and its patched counterpart
// sharing one path, and a one-file patch.
func buildPatchedArchive(h codec.Hasher) *Engine {
	anchorGroup := table.NewCell(Group{
		DecompressedSize: 10,
		CompressedSize:   5,
		fileStart:        0,
		fileCount:        0,
		SubPackage:       SubPackageRef{rawIndex: hashkey.InvalidIndex, kind: SubPackageNone, resolved: true},
	})
	versionGroup := table.NewCell(Group{
		DecompressedSize: 20,
		CompressedSize:   8,
		fileStart:        1,
		fileCount:        1,
		SubPackage:       SubPackageRef{rawIndex: 0}, // literal 0: the version-group signal
	})

	baseInfo := table.NewCell(Info{
		PathRef:     table.UnresolvedRef[Path](0),
		LinkRef:     table.UnresolvedRef[Link](0),
		Descriptors: table.UnresolvedContiguousRef[Descriptor](0, 1),
		Flags:       InfoFlagIsRegularFile,
	})
	patchInfo := table.NewCell(Info{
		PathRef:     table.UnresolvedRef[Path](0),
		LinkRef:     table.UnresolvedRef[Link](1),
		Descriptors: table.UnresolvedContiguousRef[Descriptor](1, 2),
		Flags:       InfoFlagIsRegularFile,
	})

	baseDescriptor := table.NewCell(Descriptor{
		Group:    table.UnresolvedRef[Group](0),
		Metadata: table.NoRef[Metadata](),
		LoadArgs: LoadArgs{Tag: LoadArgsUnowned, Payload: 0},
	})
	patchDescriptor := table.NewCell(Descriptor{
		Group:    table.UnresolvedRef[Group](1),
		Metadata: table.UnresolvedOptionalRef[Metadata](0),
		LoadArgs: LoadArgs{Tag: LoadArgsOwned, Payload: 0}, // direct index of the first patch
	})

	metadata := table.NewCell(Metadata{
		CompressedSize:   8,
		DecompressedSize: 20,
		Flags:            MetadataFlagIsCompressed,
	})

	baseLink := table.NewCell(Link{
		Owner: LinkOwnerRef{rawIndex: 0},
		Info:  table.UnresolvedRef[Info](0),
	})
	patchLink := table.NewCell(Link{
		Owner: LinkOwnerRef{rawIndex: 2}, // len(packages) + 1 -> the version group
		Info:  table.UnresolvedRef[Info](1),
	})

	path := table.NewCell(Path{
		FullPath:      h.Hash("a/b.bin"),
		Extension:     h.Hash("bin"),
		Parent:        h.Hash("a"),
		FileName:      h.Hash("b.bin"),
		Link:          table.UnresolvedRef[Link](0),
		VersionedFile: table.UnresolvedOptionalRef[VersionedFile](0),
	})

	pkg := table.NewCell(Package{
		FullPath:      h.Hash("pkg"),
		Groups:        table.UnresolvedContiguousRef[Group](0, 1),
		Infos:         table.UnresolvedContiguousRef[Info](0, 1),
		ChildPackages: table.UnresolvedContiguousRef[ChildPackage](0, 0),
	})

	patch := table.NewCell(Patch{
		VersionMajor:        1,
		VersionMinor:        0,
		VersionPatch:        3,
		FileCount:           1,
		Group:               table.UnresolvedRef[Group](1), // true index 1, biased by ordinal 0
		VersionedFiles:      table.UnresolvedContiguousRef[VersionedFile](0, 1),
		Infos:               table.UnresolvedContiguousRef[Info](1, 2),
		NumChangedThisPatch: 1,
	})
	versionedFile := table.NewCell(VersionedFile{
		PathHash:         h.Hash("a/b.bin"),
		Info:             table.UnresolvedRef[Info](1),
		LinkRef:          table.UnresolvedRef[Link](1),
		ChangedThisPatch: true,
	})

	tables := &Tables{
		Packages:       []*table.Cell[Package]{pkg},
		Groups:         []*table.Cell[Group]{anchorGroup, versionGroup},
		Infos:          []*table.Cell[Info]{baseInfo, patchInfo},
		Descriptors:    []*table.Cell[Descriptor]{baseDescriptor, patchDescriptor},
		Metadatas:      []*table.Cell[Metadata]{metadata},
		Links:          []*table.Cell[Link]{baseLink, patchLink},
		Paths:          []*table.Cell[Path]{path},
		Patches:        []*table.Cell[Patch]{patch},
		VersionedFiles: [][]*table.Cell[VersionedFile]{{versionedFile}},
		VersionMajor:   1,
		VersionPatch:   3,
	}
	return New(tables, 16, h)
}

func TestResolveBindsPatchOverlay(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e := buildPatchedArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := e.VersionGroupInfoStart(); got != 1 {
		t.Fatalf("VersionGroupInfoStart = %d, want 1", got)
	}
	if got := e.LastPatchFilesStart(); got != 0 {
		t.Fatalf("LastPatchFilesStart = %d, want 0", got)
	}

	p := e.Patches()[0].Get()
	if p.Group.Cell().Get().DecompressedSize != 20 {
		t.Fatal("patch bound to the wrong group")
	}

	path := e.Paths()[0].Get()
	vf, ok := path.VersionedFile.Get()
	if !ok {
		t.Fatal("path lost its versioned-file reference")
	}
	if !vf.Cell().Get().ChangedThisPatch {
		t.Fatal("versioned file should be marked changed")
	}

	desc := e.Descriptors()[1].Get()
	if desc.LoadArgs.PatchIndex != 0 {
		t.Fatalf("patch descriptor PatchIndex = %d, want 0", desc.LoadArgs.PatchIndex)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e := buildPatchedArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := e.Resolve(); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	// The versioned-file binding must survive the second pass un-rebiased.
	path := e.Paths()[0].Get()
	vf, ok := path.VersionedFile.Get()
	if !ok {
		t.Fatal("second Resolve dropped the versioned-file reference")
	}
	if vf.Cell().Get().Info.Cell().GUID() != e.Infos()[1].GUID() {
		t.Fatal("second Resolve rebound the versioned file")
	}
	p := e.Patches()[0].Get()
	if p.Group.Cell().GUID() != e.Groups()[1].GUID() {
		t.Fatal("second Resolve re-biased the patch's group index")
	}
}

func TestPatchOverlayRoundTripsThroughMemory(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e := buildPatchedArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	reorg := e.Reorganize()

	if got := reorg.LastPatchFilesStart(); got != 0 {
		t.Fatalf("LastPatchFilesStart after reorganize = %d, want 0", got)
	}

	blob, results := NewWriter(reorg).WriteToMemory()
	if results.MetadataGroupLen != 1 || results.VersionGroupLen != 1 {
		t.Fatalf("partition counts = %+v, want 1 metadata-group and 1 version-group", results)
	}

	tables, err := ParseMemory(blob, MemoryTableCounts{
		Packages:    1,
		Groups:      2,
		Paths:       1,
		Links:       2,
		Infos:       2,
		Descriptors: 2,
		Metadatas:   1,
	})
	if err != nil {
		t.Fatalf("ParseMemory: %v", err)
	}
	if tables.VersionMajor != 1 || tables.VersionPatch != 3 {
		t.Fatalf("version triple = %d.%d.%d, want 1.0.3",
			tables.VersionMajor, tables.VersionMinor, tables.VersionPatch)
	}
	if len(tables.Patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(tables.Patches))
	}

	reparsed := New(tables, reorg.BucketCount(), h)
	if err := reparsed.Resolve(); err != nil {
		t.Fatalf("Resolve after reparse: %v", err)
	}

	p := reparsed.Patches()[0].Get()
	if p.FileCount != 1 || p.NumChangedThisPatch != 1 {
		t.Fatalf("patch header lost counts: %+v", p)
	}
	vfs := p.VersionedFiles.Cells()
	if len(vfs) != 1 {
		t.Fatalf("patch versioned files = %d, want 1", len(vfs))
	}
	if !vfs[0].Get().ChangedThisPatch {
		t.Fatal("changed-this-patch bit lost in round trip")
	}

	path := reparsed.Paths()[0].Get()
	if _, ok := path.VersionedFile.Get(); !ok {
		t.Fatal("path lost its versioned-file reference in round trip")
	}
}

func TestPatchVersionOrdering(t *testing.T) {
	older := Patch{VersionMajor: 1, VersionMinor: 0, VersionPatch: 3}
	newer := Patch{VersionMajor: 1, VersionMinor: 1, VersionPatch: 0}
	if !newer.IsNewerThan(older) {
		t.Fatal("1.1.0 should order after 1.0.3")
	}
	if older.IsNewerThan(newer) {
		t.Fatal("1.0.3 should not order after 1.1.0")
	}
}
