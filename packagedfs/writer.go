// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Writer serializes a reorganized Engine's eight primary tables plus the
// patch overlay back to their on-disk shapes, in either of the two emission
// modes the upstream writer supports: to-directory (one file per table) and
// to-memory (packed into the archive's non-user section).
type Writer struct {
	engine *Engine

	pkgIdx   map[uint64]uint32
	groupIdx map[uint64]uint32
	pathIdx  map[uint64]uint32
	linkIdx  map[uint64]uint32
	infoIdx  map[uint64]uint32
	descIdx  map[uint64]uint32
	metaIdx  map[uint64]uint32
	vfIdx    map[uint64]uint32
}

// ToMemoryResults carries the partition counters the group-emission walk
// computes: how many infos, descriptors and metadatas belong to the
// packaged, info-group and version-group partitions, plus the group
// partition counts themselves.
type ToMemoryResults struct {
	PackagedInfoLen int
	GroupInfoLen    int
	VersionInfoLen  int

	PackagedDescriptorLen int
	GroupDescriptorLen    int
	VersionDescriptorLen  int

	PackagedDataLen int
	GroupDataLen    int
	VersionDataLen  int

	MetadataGroupLen int
	InfoGroupLen     int
	VersionGroupLen  int
}

// NewWriter wraps a (reorganized) Engine for serialization, pre-computing
// every table's GUID -> final-index map.
func NewWriter(e *Engine) *Writer {
	return &Writer{
		engine:   e,
		pkgIdx:   indexOf(e.tables.Packages),
		groupIdx: indexOf(e.tables.Groups),
		pathIdx:  indexOf(e.tables.Paths),
		linkIdx:  indexOf(e.tables.Links),
		infoIdx:  indexOf(e.tables.Infos),
		descIdx:  indexOf(e.tables.Descriptors),
		metaIdx:  indexOf(e.tables.Metadatas),
		vfIdx:    indexOf(e.tables.AllVersionedFiles()),
	}
}

// partitionResults walks the canonically ordered groups table and records
// where the packaged / info-group / version-group partitions begin in the
// info, descriptor and metadata tables: the first info-group marks the end
// of the packaged partition, the first version-group the end of the
// info-group partition, and everything remaining is versioned.
func (w *Writer) partitionResults() ToMemoryResults {
	var out ToMemoryResults
	for count, g := range w.engine.tables.Groups {
		gv := g.Get()
		switch {
		case out.PackagedInfoLen == 0 && gv.IsInfoGroup():
			info := gv.InfoFiles.Cells()[0]
			desc := info.Get().Descriptors.Cells()[0]
			out.PackagedInfoLen = int(w.infoIdx[info.GUID()])
			out.PackagedDescriptorLen = int(w.descIdx[desc.GUID()])
			if m, ok := desc.Get().Metadata.Get(); ok {
				out.PackagedDataLen = int(w.metaIdx[m.Cell().GUID()])
			}
			out.MetadataGroupLen = count
		case out.GroupInfoLen == 0 && gv.IsVersionGroup():
			info := gv.InfoFiles.Cells()[0]
			desc := info.Get().Descriptors.Cells()[0]
			out.GroupInfoLen = int(w.infoIdx[info.GUID()]) - out.PackagedInfoLen
			out.GroupDescriptorLen = int(w.descIdx[desc.GUID()]) - out.PackagedDescriptorLen
			if m, ok := desc.Get().Metadata.Get(); ok {
				out.GroupDataLen = int(w.metaIdx[m.Cell().GUID()]) - out.PackagedDataLen
			}
			out.InfoGroupLen = count - out.MetadataGroupLen
		}
	}
	out.VersionInfoLen = len(w.engine.tables.Infos) - out.GroupInfoLen - out.PackagedInfoLen
	out.VersionDescriptorLen = len(w.engine.tables.Descriptors) - out.GroupDescriptorLen - out.PackagedDescriptorLen
	out.VersionDataLen = len(w.engine.tables.Metadatas) - out.GroupDataLen - out.PackagedDataLen
	out.VersionGroupLen = len(w.engine.tables.Groups) - out.InfoGroupLen - out.MetadataGroupLen
	return out
}

func indexOf[T any](cells []*table.Cell[T]) map[uint64]uint32 {
	m := make(map[uint64]uint32, len(cells))
	for i, c := range cells {
		m[c.GUID()] = uint32(i)
	}
	return m
}

func (w *Writer) encodePackages() []byte {
	cells := w.engine.tables.Packages
	cpIdx := w.cpIdx()
	out := make([]byte, len(cells)*packageRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*packageRecordSize:]

		groupStart := uint32(hashkey.InvalidIndex)
		if groups := v.Groups.Cells(); len(groups) > 0 {
			groupStart = w.groupIdx[groups[0].GUID()]
		}
		key := hashkey.New(v.FullPath, groupStart)
		binary.LittleEndian.PutUint64(r[0:8], key.Uint64())
		binary.LittleEndian.PutUint64(r[8:16], v.Name)
		binary.LittleEndian.PutUint64(r[16:24], v.Parent)
		binary.LittleEndian.PutUint64(r[24:32], v.Lifetime)

		infoStart, infoCount := rangeBounds(v.Infos.Cells(), w.infoIdx)
		binary.LittleEndian.PutUint32(r[32:36], infoStart)
		binary.LittleEndian.PutUint32(r[36:40], infoCount)

		cpStart, cpCount := rangeBounds(v.ChildPackages.Cells(), cpIdx)
		binary.LittleEndian.PutUint32(r[40:44], cpStart)
		binary.LittleEndian.PutUint32(r[44:48], cpCount)

		binary.LittleEndian.PutUint32(r[48:52], v.Flags)
	}
	return out
}

// cpIdx lazily builds the child-package index map (rarely needed outside
// encodePackages).
func (w *Writer) cpIdx() map[uint64]uint32 {
	return indexOf(w.engine.tables.ChildPackages)
}

func rangeBounds[T any](cells []*table.Cell[T], idx map[uint64]uint32) (start, count uint32) {
	if len(cells) == 0 {
		return 0, 0
	}
	return idx[cells[0].GUID()], uint32(len(cells))
}

func (w *Writer) encodeChildPackages() []byte {
	cells := w.engine.tables.ChildPackages
	out := make([]byte, len(cells)*childPackageRecordSize)
	for i, c := range cells {
		v := c.Get()
		key := hashkey.New(v.FullPath, w.pkgIdx[v.Pkg.Cell().GUID()])
		binary.LittleEndian.PutUint64(out[i*childPackageRecordSize:], key.Uint64())
	}
	return out
}

func (w *Writer) encodeGroups() []byte {
	cells := w.engine.tables.Groups
	out := make([]byte, len(cells)*groupRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*groupRecordSize:]

		binary.LittleEndian.PutUint64(r[0:8], v.ArchiveOffset)
		binary.LittleEndian.PutUint32(r[8:12], v.DecompressedSize)
		binary.LittleEndian.PutUint32(r[12:16], v.CompressedSize)

		var start, count uint32
		switch v.FileKind {
		case GroupFilesInfos:
			start, count = rangeBounds(v.InfoFiles.Cells(), w.infoIdx)
		case GroupFilesMetadatas:
			start, count = rangeBounds(v.MetadataFiles.Cells(), w.metaIdx)
		}
		binary.LittleEndian.PutUint32(r[16:20], start)
		binary.LittleEndian.PutUint32(r[20:24], count)

		// A version-group writes literal 0; other sub references write
		// their target's final index directly; an absent reference on a
		// metadata-group writes the sentinel.
		var subIdx uint32
		switch {
		case v.IsVersionGroup():
			subIdx = 0
		case v.SubPackage.Kind() == SubPackageGroup:
			subIdx = w.groupIdx[v.SubPackage.Group().GUID()]
		case v.SubPackage.Kind() == SubPackagePackage:
			subIdx = w.pkgIdx[v.SubPackage.Package().GUID()]
		default:
			subIdx = uint32(hashkey.InvalidIndex)
		}
		binary.LittleEndian.PutUint32(r[24:28], subIdx)
	}
	return out
}

func (w *Writer) encodePaths() []byte {
	cells := w.engine.tables.Paths
	out := make([]byte, len(cells)*pathRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*pathRecordSize:]

		linkKey := hashkey.New(v.FullPath, w.linkIdx[v.Link.Cell().GUID()])
		binary.LittleEndian.PutUint64(r[0:8], linkKey.Uint64())

		vfIdx := uint32(hashkey.InvalidIndex)
		if inner, ok := v.VersionedFile.Get(); ok {
			vfIdx = w.vfRelativeIndex(inner.Cell())
		}
		extKey := hashkey.New(v.Extension, vfIdx)
		binary.LittleEndian.PutUint64(r[8:16], extKey.Uint64())

		binary.LittleEndian.PutUint64(r[16:24], v.Parent)
		binary.LittleEndian.PutUint64(r[24:32], v.FileName)
	}
	return out
}

// vfRelativeIndex returns a versioned file's index relative to the latest
// patch's own versioned-file range, the bias the on-disk field requires.
func (w *Writer) vfRelativeIndex(vf *table.Cell[VersionedFile]) uint32 {
	abs, ok := w.vfIdx[vf.GUID()]
	if !ok {
		return uint32(hashkey.InvalidIndex)
	}
	return abs - uint32(w.engine.latestPatchFileStart)
}

func (w *Writer) encodeLinks() []byte {
	cells := w.engine.tables.Links
	out := make([]byte, len(cells)*linkRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*linkRecordSize:]

		var ownerIdx uint32
		switch v.Owner.Kind() {
		case LinkOwnerPackage:
			ownerIdx = w.pkgIdx[v.Owner.Package().GUID()]
		case LinkOwnerGroup:
			ownerIdx = uint32(len(w.engine.tables.Packages)) + w.groupIdx[v.Owner.Group().GUID()]
		}
		binary.LittleEndian.PutUint32(r[0:4], ownerIdx)
		binary.LittleEndian.PutUint32(r[4:8], w.infoIdx[v.Info.Cell().GUID()])
	}
	return out
}

func (w *Writer) encodeInfos() []byte {
	cells := w.engine.tables.Infos
	out := make([]byte, len(cells)*infoRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*infoRecordSize:]

		binary.LittleEndian.PutUint32(r[0:4], w.pathIdx[v.PathRef.Cell().GUID()])
		binary.LittleEndian.PutUint32(r[4:8], w.linkIdx[v.LinkRef.Cell().GUID()])

		descStart, _ := rangeBounds(v.Descriptors.Cells(), w.descIdx)
		binary.LittleEndian.PutUint32(r[8:12], descStart)
		binary.LittleEndian.PutUint32(r[12:16], v.Flags)
	}
	return out
}

// encodeDescriptors emits the descriptor table. Descriptors before
// boundary (the packaged partition) bias their PackageSkip info index by
// infoOffset; everything at or past the boundary writes the final index
// unbiased.
func (w *Writer) encodeDescriptors(boundary int, infoOffset uint32) []byte {
	cells := w.engine.tables.Descriptors
	out := make([]byte, len(cells)*descriptorRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*descriptorRecordSize:]

		binary.LittleEndian.PutUint32(r[0:4], w.groupIdx[v.Group.Cell().GUID()])

		metaIdx := uint32(hashkey.InvalidIndex)
		if inner, ok := v.Metadata.Get(); ok {
			metaIdx = w.metaIdx[inner.Cell().GUID()]
		}
		binary.LittleEndian.PutUint32(r[4:8], metaIdx)

		var payload uint32
		switch v.LoadArgs.Tag {
		case LoadArgsUnowned, LoadArgsSharedButOwned:
			payload = w.linkIdx[v.LoadArgs.Link.Cell().GUID()]
		case LoadArgsOwned:
			if v.LoadArgs.PatchIndex >= 0 {
				payload = uint32(v.LoadArgs.PatchIndex)
			}
		case LoadArgsPackageSkip:
			payload = w.infoIdx[v.LoadArgs.InfoRef.Cell().GUID()]
			if i < boundary {
				payload -= infoOffset
			}
		default: // Unknown, UnsupportedRegion
			payload = v.LoadArgs.Payload
		}

		raw := uint32(v.LoadArgs.Tag)<<24 | (payload & 0x00FFFFFF)
		binary.LittleEndian.PutUint32(r[8:12], raw)
	}
	return out
}

func (w *Writer) encodeMetadatas() []byte {
	cells := w.engine.tables.Metadatas
	out := make([]byte, len(cells)*metadataRecordSize)
	for i, c := range cells {
		v := c.Get()
		r := out[i*metadataRecordSize:]
		binary.LittleEndian.PutUint32(r[0:4], v.GroupOffset)
		binary.LittleEndian.PutUint32(r[4:8], v.CompressedSize)
		binary.LittleEndian.PutUint32(r[8:12], v.DecompressedSize)
		binary.LittleEndian.PutUint32(r[12:16], v.Flags)
	}
	return out
}

// encodeFileLookup packs the path's full_path -> final-index lookup as a
// bucketed header+entries block; it is the only bucketed lookup on the
// wire (the package, stream and search lookups are flat key runs).
func (w *Writer) encodeFileLookup() []byte {
	lookup := table.NewBucketMap[uint32](w.engine.bucketCount)
	for i, c := range w.engine.tables.Paths {
		lookup.Insert(c.Get().FullPath, uint32(i))
	}

	var buf []byte
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(lookup.Len()))
	binary.LittleEndian.PutUint32(header[4:8], w.engine.bucketCount)
	buf = append(buf, header...)

	cum := uint32(0)
	for bi := uint32(0); bi < w.engine.bucketCount; bi++ {
		bh := make([]byte, 8)
		binary.LittleEndian.PutUint32(bh[0:4], cum)
		binary.LittleEndian.PutUint32(bh[4:8], uint32(lookup.BucketLen(bi)))
		buf = append(buf, bh...)
		cum += uint32(lookup.BucketLen(bi))
	}

	lookup.Each(func(_ uint32, e table.Entry[uint32]) {
		kv := make([]byte, 8)
		binary.LittleEndian.PutUint64(kv, hashkey.New(e.Hash, e.Value).Uint64())
		buf = append(buf, kv...)
	})
	return buf
}

// encodePackageLookup packs the package-hash -> final-index lookup as a
// flat, headerless run of HashKeys in ascending hash order. Unlike the
// file lookup, the package lookup carries no count or bucket structure on
// the wire; its length is implied by the header's package count.
func (w *Writer) encodePackageLookup() []byte {
	keys := make([]hashkey.HashKey, 0, len(w.engine.tables.Packages))
	for i, c := range w.engine.tables.Packages {
		keys = append(keys, hashkey.New(c.Get().FullPath, uint32(i)))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hash() < keys[j].Hash() })

	out := make([]byte, len(keys)*8)
	for i, k := range keys {
		binary.LittleEndian.PutUint64(out[i*8:], k.Uint64())
	}
	return out
}

func (w *Writer) encodePatchHeaders() []byte {
	patches := w.engine.tables.Patches
	out := make([]byte, len(patches)*patchHeaderRecordSize)

	for p, c := range patches {
		v := c.Get()
		r := out[p*patchHeaderRecordSize:]

		binary.LittleEndian.PutUint16(r[0:2], v.VersionMajor)
		binary.LittleEndian.PutUint16(r[2:4], v.VersionMinor)
		binary.LittleEndian.PutUint16(r[4:6], v.VersionPatch)
		binary.LittleEndian.PutUint32(r[8:12], v.FileCount)

		groupTrue := w.groupIdx[v.Group.Cell().GUID()]
		binary.LittleEndian.PutUint32(r[12:16], groupTrue+uint32(p))

		vfStart := uint32(0)
		if cells := v.VersionedFiles.Cells(); len(cells) > 0 {
			vfStart = w.vfIdx[cells[0].GUID()]
		}
		binary.LittleEndian.PutUint32(r[16:20], vfStart)

		infoStart, infoCount := rangeBounds(v.Infos.Cells(), w.infoIdx)
		binary.LittleEndian.PutUint32(r[20:24], infoStart)
		binary.LittleEndian.PutUint32(r[24:28], infoCount)

		binary.LittleEndian.PutUint32(r[28:32], v.NumChangedThisPatch)
	}
	return out
}

// encodePatchBodies emits, per patch, the 1024-bucket versioned-file lookup
// followed by the versioned file records themselves, matching ParsePatches.
func (w *Writer) encodePatchBodies() [][]byte {
	patches := w.engine.tables.Patches
	bodies := make([][]byte, len(patches))

	for p, c := range patches {
		v := c.Get()
		cells := v.VersionedFiles.Cells()

		lookup := table.NewBucketMap[uint32](patchVersionedFileBuckets)
		for j, vf := range cells {
			lookup.Insert(vf.Get().PathHash, uint32(j))
		}

		var buf []byte
		header := make([]byte, patchBodyBucketMapHeaderSize)
		binary.LittleEndian.PutUint32(header[0:4], uint32(len(cells)))
		binary.LittleEndian.PutUint32(header[4:8], patchVersionedFileBuckets)
		buf = append(buf, header...)

		cum := uint32(0)
		for bi := uint32(0); bi < patchVersionedFileBuckets; bi++ {
			bh := make([]byte, patchBodyBucketRecordSize)
			binary.LittleEndian.PutUint32(bh[0:4], cum)
			binary.LittleEndian.PutUint32(bh[4:8], uint32(lookup.BucketLen(bi)))
			buf = append(buf, bh...)
			cum += uint32(lookup.BucketLen(bi))
		}

		lookup.Each(func(_ uint32, e table.Entry[uint32]) {
			kv := make([]byte, patchBodyKeyRecordSize)
			binary.LittleEndian.PutUint64(kv, hashkey.New(e.Hash, e.Value).Uint64())
			buf = append(buf, kv...)
		})

		vfBytes := make([]byte, len(cells)*versionedFileRecordSize)
		for j, vfc := range cells {
			vf := vfc.Get()
			r := vfBytes[j*versionedFileRecordSize:]
			hash := vf.PathHash
			if !vf.ChangedThisPatch {
				hash |= versionedFileChangedBit
			}
			binary.LittleEndian.PutUint64(r[0:8], hash)
			binary.LittleEndian.PutUint32(r[8:12], w.infoIdx[vf.Info.Cell().GUID()])
			binary.LittleEndian.PutUint32(r[12:16], w.linkIdx[vf.LinkRef.Cell().GUID()])
		}
		buf = append(buf, vfBytes...)

		bodies[p] = buf
	}
	return bodies
}

// encodePatchOverlay concatenates the full patch overlay blob: the 4-byte
// schema version triple, the patch count, every patch's fixed-size header,
// then every patch's variable-size body — the upstream two-pass structure
// preserved exactly.
func (w *Writer) encodePatchOverlay() []byte {
	var buf []byte
	buf = append(buf, w.engine.tables.encodeVersionTriple()...)

	patchCount := make([]byte, 4)
	binary.LittleEndian.PutUint32(patchCount, uint32(len(w.engine.tables.Patches)))
	buf = append(buf, patchCount...)

	buf = append(buf, w.encodePatchHeaders()...)
	for _, b := range w.encodePatchBodies() {
		buf = append(buf, b...)
	}
	return buf
}

// WriteToMemory packs every table into the exact order the archive
// orchestrator's non-user section expects for the packaged sub-graph,
// plus the patch overlay appended at the end, and returns the partition
// counters computed during the group walk.
func (w *Writer) WriteToMemory() ([]byte, ToMemoryResults) {
	results := w.partitionResults()

	var buf []byte
	buf = append(buf, w.encodeFileLookup()...)
	buf = append(buf, w.encodePaths()...)
	buf = append(buf, w.encodeLinks()...)
	buf = append(buf, w.encodePackageLookup()...)
	buf = append(buf, w.encodePackages()...)
	buf = append(buf, w.encodeGroups()...)
	buf = append(buf, w.encodeChildPackages()...)
	buf = append(buf, w.encodeInfos()...)
	buf = append(buf, w.encodeDescriptors(results.PackagedDescriptorLen, uint32(results.PackagedInfoLen))...)
	buf = append(buf, w.encodeMetadatas()...)
	buf = append(buf, w.encodePatchOverlay()...)
	return buf, results
}

// WriteToDirectory emits one fixed-record-size file per table, plus the
// patch overlay as version_info.bin and the two lookup files, matching the
// developer directory layout ParseDirectory reads.
func (w *Writer) WriteToDirectory(dir string) error {
	results := w.partitionResults()

	files := map[string][]byte{
		"packages.bin":       w.encodePackages(),
		"child_packages.bin": w.encodeChildPackages(),
		"groups.bin":         w.encodeGroups(),
		"paths.bin":          w.encodePaths(),
		"links.bin":          w.encodeLinks(),
		"infos.bin":          w.encodeInfos(),
		"descriptors.bin":    w.encodeDescriptors(results.PackagedDescriptorLen, uint32(results.PackagedInfoLen)),
		"metadatas.bin":      w.encodeMetadatas(),
		"version_info.bin":   w.encodePatchOverlay(),
		"package_keys.bin":   w.encodePackageKeys(),
	}
	pathBuckets, pathKeys := w.encodePathLookupFiles()
	files["path_buckets.bin"] = pathBuckets
	files["path_keys.bin"] = pathKeys

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("packagedfs: writing %s: %w", name, err)
		}
	}
	return nil
}

// encodePackageKeys emits the package hash -> final-index HashKeys, the
// directory-mode counterpart of the in-memory package lookup.
func (w *Writer) encodePackageKeys() []byte {
	out := make([]byte, 0, len(w.engine.tables.Packages)*8)
	for i, c := range w.engine.tables.Packages {
		kv := make([]byte, 8)
		binary.LittleEndian.PutUint64(kv, hashkey.New(c.Get().FullPath, uint32(i)).Uint64())
		out = append(out, kv...)
	}
	return out
}

// encodePathLookupFiles splits the file lookup into its two directory-mode
// files: per-bucket (cumulative-start, length) pairs and the bucketed
// hash -> final-path-index HashKeys.
func (w *Writer) encodePathLookupFiles() (buckets, keys []byte) {
	lookup := table.NewBucketMap[uint32](w.engine.bucketCount)
	for i, c := range w.engine.tables.Paths {
		lookup.Insert(c.Get().FullPath, uint32(i))
	}

	cum := uint32(0)
	for bi := uint32(0); bi < w.engine.bucketCount; bi++ {
		bh := make([]byte, 8)
		binary.LittleEndian.PutUint32(bh[0:4], cum)
		binary.LittleEndian.PutUint32(bh[4:8], uint32(lookup.BucketLen(bi)))
		buckets = append(buckets, bh...)
		cum += uint32(lookup.BucketLen(bi))
	}

	lookup.Each(func(_ uint32, e table.Entry[uint32]) {
		kv := make([]byte, 8)
		binary.LittleEndian.PutUint64(kv, hashkey.New(e.Hash, e.Value).Uint64())
		keys = append(keys, kv...)
	})
	return buckets, keys
}
