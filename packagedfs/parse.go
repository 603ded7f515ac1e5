// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"encoding/binary"
	"fmt"

	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Tables holds every raw, not-yet-resolved packaged table, plus the patch
// overlay.
type Tables struct {
	Packages       []*table.Cell[Package]
	ChildPackages  []*table.Cell[ChildPackage]
	Groups         []*table.Cell[Group]
	Paths          []*table.Cell[Path]
	Links          []*table.Cell[Link]
	Infos          []*table.Cell[Info]
	Descriptors    []*table.Cell[Descriptor]
	Metadatas      []*table.Cell[Metadata]
	Patches        []*table.Cell[Patch]
	VersionedFiles [][]*table.Cell[VersionedFile] // one slice per patch, in patch order

	// The embedded schema triple, serialized ahead of the patch count as
	// (patch u8, minor u8, major u16).
	VersionMajor uint16
	VersionMinor uint8
	VersionPatch uint8
}

// parseVersionTriple decodes the 4-byte (patch, minor, major) triple.
func (t *Tables) parseVersionTriple(b []byte) {
	t.VersionPatch = b[0]
	t.VersionMinor = b[1]
	t.VersionMajor = binary.LittleEndian.Uint16(b[2:4])
}

// encodeVersionTriple is the write-side counterpart of parseVersionTriple.
func (t *Tables) encodeVersionTriple() []byte {
	b := make([]byte, 4)
	b[0] = t.VersionPatch
	b[1] = t.VersionMinor
	binary.LittleEndian.PutUint16(b[2:4], t.VersionMajor)
	return b
}

func divisible(name string, n, size int) (int, error) {
	if n%size != 0 {
		return 0, fmt.Errorf("packagedfs: %s length %d not divisible by record size %d: %w", name, n, size, ErrFormat)
	}
	return n / size, nil
}

// ParseBytes decodes the eight primary tables from their concatenated,
// fixed-record-size byte slices. The patch overlay is parsed separately by
// ParsePatches since its layout is a two-pass header/body structure rather
// than one file per table.
func ParseBytes(packages, childPackages, groups, paths, links, infos, descriptors, metadatas []byte) (*Tables, error) {
	np, err := divisible("packages", len(packages), packageRecordSize)
	if err != nil {
		return nil, err
	}
	ncp, err := divisible("child_packages", len(childPackages), childPackageRecordSize)
	if err != nil {
		return nil, err
	}
	ng, err := divisible("groups", len(groups), groupRecordSize)
	if err != nil {
		return nil, err
	}
	npaths, err := divisible("paths", len(paths), pathRecordSize)
	if err != nil {
		return nil, err
	}
	nl, err := divisible("links", len(links), linkRecordSize)
	if err != nil {
		return nil, err
	}
	ni, err := divisible("infos", len(infos), infoRecordSize)
	if err != nil {
		return nil, err
	}
	nd, err := divisible("descriptors", len(descriptors), descriptorRecordSize)
	if err != nil {
		return nil, err
	}
	nm, err := divisible("metadatas", len(metadatas), metadataRecordSize)
	if err != nil {
		return nil, err
	}

	t := &Tables{
		Packages:      make([]*table.Cell[Package], np),
		ChildPackages: make([]*table.Cell[ChildPackage], ncp),
		Groups:        make([]*table.Cell[Group], ng),
		Paths:         make([]*table.Cell[Path], npaths),
		Links:         make([]*table.Cell[Link], nl),
		Infos:         make([]*table.Cell[Info], ni),
		Descriptors:   make([]*table.Cell[Descriptor], nd),
		Metadatas:     make([]*table.Cell[Metadata], nm),
	}

	for i := 0; i < np; i++ {
		r := packages[i*packageRecordSize:]
		key := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		name := binary.LittleEndian.Uint64(r[8:16])
		parent := binary.LittleEndian.Uint64(r[16:24])
		lifetime := binary.LittleEndian.Uint64(r[24:32])
		infoStart := binary.LittleEndian.Uint32(r[32:36])
		infoCount := binary.LittleEndian.Uint32(r[36:40])
		cpStart := binary.LittleEndian.Uint32(r[40:44])
		cpCount := binary.LittleEndian.Uint32(r[44:48])
		flags := binary.LittleEndian.Uint32(r[48:52])

		groupCount := groupCountForFlags(flags, PackageFlagIsLocalized, PackageFlagIsRegional)

		t.Packages[i] = table.NewCell(Package{
			FullPath:      key.Hash(),
			Name:          name,
			Parent:        parent,
			Lifetime:      lifetime,
			Groups:        table.UnresolvedContiguousRef[Group](key.Index(), key.Index()+uint32(groupCount)),
			Infos:         table.UnresolvedContiguousRef[Info](infoStart, infoStart+infoCount),
			ChildPackages: table.UnresolvedContiguousRef[ChildPackage](cpStart, cpStart+cpCount),
			Flags:         flags,
		})
	}

	for i := 0; i < ncp; i++ {
		r := childPackages[i*childPackageRecordSize:]
		key := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		t.ChildPackages[i] = table.NewCell(ChildPackage{
			FullPath: key.Hash(),
			Pkg:      table.UnresolvedRef[Package](key.Index()),
		})
	}

	for i := 0; i < ng; i++ {
		r := groups[i*groupRecordSize:]
		archiveOffset := binary.LittleEndian.Uint64(r[0:8])
		decompSize := binary.LittleEndian.Uint32(r[8:12])
		compSize := binary.LittleEndian.Uint32(r[12:16])
		fileStart := binary.LittleEndian.Uint32(r[16:20])
		fileCount := binary.LittleEndian.Uint32(r[20:24])
		subIdx := binary.LittleEndian.Uint32(r[24:28])

		g := Group{
			ArchiveOffset:    archiveOffset,
			DecompressedSize: decompSize,
			CompressedSize:   compSize,
			fileStart:        fileStart,
			fileCount:        fileCount,
			SubPackage:       SubPackageRef{rawIndex: subIdx},
		}
		// The invalid-index sentinel never reaches resolve-time
		// discrimination; it is already an absent reference here, which
		// classifies the group as a metadata-group.
		if subIdx == hashkey.InvalidIndex {
			g.SubPackage.kind = SubPackageNone
			g.SubPackage.resolved = true
		}
		t.Groups[i] = table.NewCell(g)
	}

	for i := 0; i < npaths; i++ {
		r := paths[i*pathRecordSize:]
		linkKey := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		extKey := hashkey.HashKey(binary.LittleEndian.Uint64(r[8:16]))
		parent := binary.LittleEndian.Uint64(r[16:24])
		fileName := binary.LittleEndian.Uint64(r[24:32])

		var vf table.OptionalRef[VersionedFile]
		if extKey.IsValid() {
			vf = table.UnresolvedOptionalRef[VersionedFile](extKey.Index())
		}

		t.Paths[i] = table.NewCell(Path{
			FullPath:      linkKey.Hash(),
			Extension:     extKey.Hash(),
			Parent:        parent,
			FileName:      fileName,
			Link:          table.UnresolvedRef[Link](linkKey.Index()),
			VersionedFile: vf,
		})
	}

	for i := 0; i < nl; i++ {
		r := links[i*linkRecordSize:]
		ownerIdx := binary.LittleEndian.Uint32(r[0:4])
		infoIdx := binary.LittleEndian.Uint32(r[4:8])
		t.Links[i] = table.NewCell(Link{
			Owner: LinkOwnerRef{rawIndex: ownerIdx},
			Info:  table.UnresolvedRef[Info](infoIdx),
		})
	}

	for i := 0; i < ni; i++ {
		r := infos[i*infoRecordSize:]
		pathIdx := binary.LittleEndian.Uint32(r[0:4])
		linkIdx := binary.LittleEndian.Uint32(r[4:8])
		descStart := binary.LittleEndian.Uint32(r[8:12])
		flags := binary.LittleEndian.Uint32(r[12:16])
		descCount := groupCountForFlags(flags, InfoFlagIsLocalized, InfoFlagIsRegional)

		t.Infos[i] = table.NewCell(Info{
			PathRef:     table.UnresolvedRef[Path](pathIdx),
			LinkRef:     table.UnresolvedRef[Link](linkIdx),
			Descriptors: table.UnresolvedContiguousRef[Descriptor](descStart, descStart+uint32(descCount)),
			Flags:       flags,
		})
	}

	for i := 0; i < nd; i++ {
		r := descriptors[i*descriptorRecordSize:]
		groupIdx := binary.LittleEndian.Uint32(r[0:4])
		metaIdx := binary.LittleEndian.Uint32(r[4:8])
		raw := binary.LittleEndian.Uint32(r[8:12])

		la := LoadArgs{
			Tag:     LoadArgsTag(raw >> 24),
			Payload: raw & 0x00FFFFFF,
		}

		var mref table.OptionalRef[Metadata]
		if metaIdx != hashkey.InvalidIndex {
			mref = table.UnresolvedOptionalRef[Metadata](metaIdx)
		}

		t.Descriptors[i] = table.NewCell(Descriptor{
			Group:    table.UnresolvedRef[Group](groupIdx),
			Metadata: mref,
			LoadArgs: la,
		})
	}

	for i := 0; i < nm; i++ {
		r := metadatas[i*metadataRecordSize:]
		t.Metadatas[i] = table.NewCell(Metadata{
			GroupOffset:      binary.LittleEndian.Uint32(r[0:4]),
			CompressedSize:   binary.LittleEndian.Uint32(r[4:8]),
			DecompressedSize: binary.LittleEndian.Uint32(r[8:12]),
			Flags:            binary.LittleEndian.Uint32(r[12:16]),
		})
	}

	return t, nil
}

// patchBodyBucketMapHeaderSize is the fixed 8-byte (count, bucket_count)
// header prefixing every patch body's 1024-bucket versioned-file lookup.
const patchBodyBucketMapHeaderSize = 8

// patchBodyBucketRecordSize is the per-bucket (cumulative_start, length)
// pair size within a patch body's lookup.
const patchBodyBucketRecordSize = 8

// patchBodyKeyRecordSize is the per-entry packed HashKey size within a
// patch body's lookup, where the index half is the 0-based position of the
// versioned file within this patch's own range.
const patchBodyKeyRecordSize = 8

// ParsePatches decodes the patch overlay's two-pass header/body structure:
// every patch's fixed-size header, then every patch's variable-size body —
// a 1024-bucket hash lookup over this patch's versioned files, followed by
// the versioned file records themselves.
func (t *Tables) ParsePatches(headers []byte, bodies [][]byte) error {
	nh, err := divisible("patch headers", len(headers), patchHeaderRecordSize)
	if err != nil {
		return err
	}
	if nh != len(bodies) {
		return fmt.Errorf("packagedfs: %d patch headers but %d patch bodies: %w", nh, len(bodies), ErrFormat)
	}

	t.Patches = make([]*table.Cell[Patch], nh)
	t.VersionedFiles = make([][]*table.Cell[VersionedFile], nh)

	for i := 0; i < nh; i++ {
		r := headers[i*patchHeaderRecordSize:]
		major := binary.LittleEndian.Uint16(r[0:2])
		minor := binary.LittleEndian.Uint16(r[2:4])
		patchNum := binary.LittleEndian.Uint16(r[4:6])
		fileCount := binary.LittleEndian.Uint32(r[8:12])
		groupIdx := binary.LittleEndian.Uint32(r[12:16])
		vfStart := binary.LittleEndian.Uint32(r[16:20])
		infoStart := binary.LittleEndian.Uint32(r[20:24])
		infoCount := binary.LittleEndian.Uint32(r[24:28])
		numChanged := binary.LittleEndian.Uint32(r[28:32])

		body := bodies[i]
		if len(body) < patchBodyBucketMapHeaderSize {
			return fmt.Errorf("packagedfs: patch %d body shorter than its bucket-map header: %w", i, ErrFormat)
		}
		lookupCount := binary.LittleEndian.Uint32(body[0:4])
		bucketCount := binary.LittleEndian.Uint32(body[4:8])
		if bucketCount != patchVersionedFileBuckets {
			return fmt.Errorf("packagedfs: patch %d bucket count %d, want %d: %w", i, bucketCount, patchVersionedFileBuckets, ErrFormat)
		}
		if lookupCount != fileCount {
			return fmt.Errorf("packagedfs: patch %d header file_count %d does not match body lookup count %d: %w", i, fileCount, lookupCount, ErrFormat)
		}

		off := patchBodyBucketMapHeaderSize + int(bucketCount)*patchBodyBucketRecordSize
		off += int(lookupCount) * patchBodyKeyRecordSize

		vfBody := body[off:]
		vfRecords, err := divisible(fmt.Sprintf("patch %d versioned files", i), len(vfBody), versionedFileRecordSize)
		if err != nil {
			return err
		}
		if uint32(vfRecords) != fileCount {
			return fmt.Errorf("packagedfs: patch %d file_count %d does not match body record count %d: %w", i, fileCount, vfRecords, ErrFormat)
		}

		vfs := make([]*table.Cell[VersionedFile], vfRecords)
		for j := 0; j < vfRecords; j++ {
			rr := vfBody[j*versionedFileRecordSize:]
			pathHash := binary.LittleEndian.Uint64(rr[0:8])
			infoIdx := binary.LittleEndian.Uint32(rr[8:12])
			linkIdx := binary.LittleEndian.Uint32(rr[12:16])
			vfs[j] = table.NewCell(VersionedFile{
				PathHash:         pathHash &^ versionedFileChangedBit,
				Info:             table.UnresolvedRef[Info](infoIdx),
				LinkRef:          table.UnresolvedRef[Link](linkIdx),
				ChangedThisPatch: pathHash&versionedFileChangedBit == 0,
			})
		}
		t.VersionedFiles[i] = vfs

		t.Patches[i] = table.NewCell(Patch{
			VersionMajor:        major,
			VersionMinor:        minor,
			VersionPatch:        patchNum,
			FileCount:           fileCount,
			Group:               table.UnresolvedRef[Group](groupIdx),
			VersionedFiles:      table.UnresolvedContiguousRef[VersionedFile](vfStart, vfStart+fileCount),
			Infos:               table.UnresolvedContiguousRef[Info](infoStart, infoStart+infoCount),
			NumChangedThisPatch: numChanged,
		})
	}
	return nil
}
