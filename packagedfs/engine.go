// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"fmt"

	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/table"
)

// Engine is the resolved view over the packaged sub-graph: the eight
// primary tables plus the patch overlay, and the file_lookup BucketMap
// used for by-hash access.
type Engine struct {
	tables      *Tables
	fileLookup  *table.BucketMap[*table.Cell[Path]]
	bucketCount uint32
	hasher      codec.Hasher

	infoGroupInfoStart    int
	versionGroupInfoStart int
	latestPatchFileStart  int
}

// New constructs an Engine from raw tables and a preserved lookup bucket
// count.
func New(tables *Tables, bucketCount uint32, hasher codec.Hasher) *Engine {
	if hasher == nil {
		hasher = codec.NewPlaceholderHasher()
	}
	return &Engine{
		tables:                tables,
		bucketCount:           bucketCount,
		hasher:                hasher,
		infoGroupInfoStart:    -1,
		versionGroupInfoStart: -1,
	}
}

// Packages returns the packages table.
func (e *Engine) Packages() []*table.Cell[Package] { return e.tables.Packages }

// ChildPackages returns the child-packages table.
func (e *Engine) ChildPackages() []*table.Cell[ChildPackage] { return e.tables.ChildPackages }

// Groups returns the groups table.
func (e *Engine) Groups() []*table.Cell[Group] { return e.tables.Groups }

// Paths returns the paths table.
func (e *Engine) Paths() []*table.Cell[Path] { return e.tables.Paths }

// Links returns the links table.
func (e *Engine) Links() []*table.Cell[Link] { return e.tables.Links }

// Infos returns the infos table.
func (e *Engine) Infos() []*table.Cell[Info] { return e.tables.Infos }

// Descriptors returns the descriptors table.
func (e *Engine) Descriptors() []*table.Cell[Descriptor] { return e.tables.Descriptors }

// Metadatas returns the metadatas table.
func (e *Engine) Metadatas() []*table.Cell[Metadata] { return e.tables.Metadatas }

// Patches returns the patch overlay table.
func (e *Engine) Patches() []*table.Cell[Patch] { return e.tables.Patches }

// AllVersionedFiles flattens the per-patch versioned-file slices into one
// contiguous table, in patch order — the numbering space Patch.VersionedFiles
// and Path.VersionedFile ranges are expressed in.
func (t *Tables) AllVersionedFiles() []*table.Cell[VersionedFile] {
	var out []*table.Cell[VersionedFile]
	for _, vfs := range t.VersionedFiles {
		out = append(out, vfs...)
	}
	return out
}

// Resolve runs the fixed eight-step resolve protocol described in the
// PackagedEngine design: packages, then child-packages, then a
// classification walk over groups recording the info-group/version-group
// partition boundaries, then paths (biased by the latest patch's file
// start), links, infos (and their descriptors), patches, and finally
// versioned files.
func (e *Engine) Resolve() error {
	t := e.tables
	packages, groups, infos, childPackages := t.Packages, t.Groups, t.Infos, t.ChildPackages
	paths, links, descriptors, metadatas := t.Paths, t.Links, t.Descriptors, t.Metadatas
	patches := t.Patches
	allVF := t.AllVersionedFiles()

	// Step 1: packages.
	for _, p := range packages {
		p.BorrowMut(func(v *Package) {
			v.Groups.Resolve(groups)
			v.Infos.Resolve(infos)
			v.ChildPackages.Resolve(childPackages)
		})
	}

	// Step 2: child packages.
	for _, cp := range childPackages {
		cp.BorrowMut(func(v *ChildPackage) {
			v.Pkg.Resolve(packages)
		})
	}

	// Step 3: classify groups, resolving sub_package and the file range.
	// A raw sub_package index of literal 0, or of the group's own
	// position, marks an info-group; a pre-resolved absent reference (the
	// invalid-index sentinel at parse time) marks a metadata-group.
	e.infoGroupInfoStart = -1
	e.versionGroupInfoStart = -1
	for gi, g := range groups {
		gv := g.Get()
		sub := gv.SubPackage
		isInfoGroup := false
		if !sub.resolved {
			idx := int(sub.rawIndex)
			isInfoGroup = idx == 0 || idx == gi
			switch {
			case idx == 0:
				sub.kind = SubPackageNone
			case idx < len(packages):
				sub.kind = SubPackagePackage
				sub.pkg = packages[idx]
			default:
				if idx >= len(groups) {
					return fmt.Errorf("packagedfs: group %d sub_package index %d out of range: %w", gi, sub.rawIndex, ErrFormat)
				}
				sub.kind = SubPackageGroup
				sub.grp = groups[idx]
			}
			sub.resolved = true
		}

		g.BorrowMut(func(v *Group) {
			v.SubPackage = sub
			// Both ranges are bound (possibly empty) regardless of which one
			// the group's classification actually uses, so a mutation path
			// like AddFile can append to either one uniformly. An
			// already-classified group is left alone: a second Resolve must
			// not discard cells a mutation appended since the first.
			if !v.InfoFiles.IsResolved() && !v.MetadataFiles.IsResolved() {
				if isInfoGroup {
					v.FileKind = GroupFilesInfos
					v.InfoFiles = table.UnresolvedContiguousRef[Info](v.fileStart, v.fileStart+v.fileCount)
					v.InfoFiles.Resolve(infos)
					v.MetadataFiles = table.UnresolvedContiguousRef[Metadata](0, 0)
					v.MetadataFiles.Resolve(metadatas)
				} else {
					v.FileKind = GroupFilesMetadatas
					v.MetadataFiles = table.UnresolvedContiguousRef[Metadata](v.fileStart, v.fileStart+v.fileCount)
					v.MetadataFiles.Resolve(metadatas)
					v.InfoFiles = table.UnresolvedContiguousRef[Info](0, 0)
					v.InfoFiles.Resolve(infos)
				}
			}
			if v.IsInfoGroup() {
				if e.infoGroupInfoStart == -1 {
					e.infoGroupInfoStart = int(v.fileStart)
				}
				if v.IsVersionGroup() && e.versionGroupInfoStart == -1 {
					e.versionGroupInfoStart = int(v.fileStart)
				}
			}
		})
	}
	if e.infoGroupInfoStart == -1 {
		e.infoGroupInfoStart = len(infos)
	}
	if e.versionGroupInfoStart == -1 {
		e.versionGroupInfoStart = len(infos)
	}

	// Step 4: latest-patch bias, then paths.
	latestPatchFileInfoStart := len(infos)
	if len(groups) > 0 {
		latestPatchFileInfoStart = int(groups[len(groups)-1].Get().fileStart)
	}
	e.latestPatchFileStart = latestPatchFileInfoStart - e.versionGroupInfoStart

	for _, p := range paths {
		p.BorrowMut(func(v *Path) {
			v.Link.Resolve(links)
			if inner, ok := v.VersionedFile.Get(); ok && !inner.IsResolved() {
				biased := inner.Index() + uint32(e.latestPatchFileStart)
				inner = table.UnresolvedRef[VersionedFile](biased)
				inner.Resolve(allVF)
				v.VersionedFile = wrapResolvedVF(inner.Cell())
			}
		})
	}

	// Step 5: links.
	for _, l := range links {
		l.BorrowMut(func(v *Link) {
			owner := v.Owner
			if owner.pkg == nil && owner.grp == nil {
				if int(owner.rawIndex) < len(packages) {
					owner.kind = LinkOwnerPackage
					owner.pkg = packages[owner.rawIndex]
				} else {
					idx := int(owner.rawIndex) - len(packages)
					if idx < 0 || idx >= len(groups) {
						panic("packagedfs: link owner index out of range")
					}
					owner.kind = LinkOwnerGroup
					owner.grp = groups[idx]
				}
				v.Owner = owner
			}
			v.Info.Resolve(infos)
		})
	}

	// Step 6: infos and their descriptors.
	for i, info := range infos {
		infoOffset := 0
		if i < e.infoGroupInfoStart {
			infoOffset = e.infoGroupInfoStart
		}
		isVersioned := i >= e.versionGroupInfoStart

		info.BorrowMut(func(v *Info) {
			v.PathRef.Resolve(paths)
			v.LinkRef.Resolve(links)
			v.Descriptors.Resolve(descriptors)
		})
		iv := info.Get()
		for _, d := range iv.Descriptors.Cells() {
			if err := resolveDescriptor(d, groups, links, infos, metadatas, patches, infoOffset, isVersioned); err != nil {
				return err
			}
		}
	}

	// Step 7: patches.
	for p, patch := range patches {
		patch.BorrowMut(func(v *Patch) {
			if !v.Group.IsResolved() {
				trueIdx := v.Group.Index() - uint32(p)
				v.Group = table.UnresolvedRef[Group](trueIdx)
				v.Group.Resolve(groups)
			}
			v.VersionedFiles.Resolve(allVF)
			v.Infos.Resolve(infos)
		})
	}

	// Step 8: versioned files.
	for _, vfs := range t.VersionedFiles {
		for _, vf := range vfs {
			vf.BorrowMut(func(v *VersionedFile) {
				v.Info.Resolve(infos)
				v.LinkRef.Resolve(links)
			})
		}
	}

	// file_lookup, keyed by each path's full-path hash.
	lookup := table.NewBucketMap[*table.Cell[Path]](e.bucketCount)
	for _, p := range paths {
		v := p.Get()
		lookup.Insert(v.FullPath, p)
	}
	e.fileLookup = lookup
	return nil
}

// reorganizeResult carries the fresh tables plus the partition boundaries a
// Reorganize pass computes along the way, needed by the writer to bias
// PackageSkip descriptors and patch group indices.
type reorganizeResult struct {
	tables                *Tables
	infoGroupInfoStart    int
	versionGroupInfoStart int
	lastPatchFilesStart   int
}

// Reorganize performs the fixed topological push described by the
// PackagedEngine design: packages (with their groups, child-packages, and
// own infos), then every not-yet-pushed non-version info-group (recording
// info_group_info_start), then every patch (its versioned files, its
// version-group, and any of the patch's infos the group push didn't already
// contribute), recording version_group_info_start and last_patch_files_start
// along the way.
func (e *Engine) Reorganize() *Engine {
	r := e.reorganize()
	return &Engine{
		tables:                r.tables,
		bucketCount:           e.bucketCount,
		hasher:                e.hasher,
		fileLookup:            e.fileLookup,
		infoGroupInfoStart:    r.infoGroupInfoStart,
		versionGroupInfoStart: r.versionGroupInfoStart,
		latestPatchFileStart:  r.lastPatchFilesStart,
	}
}

func (e *Engine) reorganize() *reorganizeResult {
	pkgMaker := table.NewMaker[Package]()
	groupMaker := table.NewMaker[Group]()
	cpMaker := table.NewMaker[ChildPackage]()
	infoMaker := table.NewMaker[Info]()
	descMaker := table.NewMaker[Descriptor]()
	metaMaker := table.NewMaker[Metadata]()
	linkMaker := table.NewMaker[Link]()
	pathMaker := table.NewMaker[Path]()
	patchMaker := table.NewMaker[Patch]()
	vfMaker := table.NewMaker[VersionedFile]()

	infoGroupInfoStart := -1
	versionGroupInfoStart := -1

	var pushGroup func(g *table.Cell[Group])

	pushDescriptor := func(d *table.Cell[Descriptor], isInfoGroupInfo, isVersionGroupInfo bool) {
		descMaker.Push(d)
		dv := d.Get()
		switch {
		case isVersionGroupInfo:
			if dv.LoadArgs.Tag == LoadArgsOwned && dv.LoadArgs.PatchIndex >= 0 {
				if m, ok := dv.Metadata.Get(); ok {
					metaMaker.PushIfAbsent(m.Cell())
				}
			}
		case isInfoGroupInfo:
			if m, ok := dv.Metadata.Get(); ok {
				metaMaker.PushIfAbsent(m.Cell())
			}
		}
	}

	pushInfo := func(info *table.Cell[Info], isInfoGroupInfo, isVersionGroupInfo bool) {
		if infoMaker.Contains(info) {
			return
		}
		infoMaker.Push(info)
		iv := info.Get()
		descs := iv.Descriptors.Cells()
		for _, d := range descs {
			pushDescriptor(d, isInfoGroupInfo, isVersionGroupInfo)
		}
		// Package-owned infos whose first descriptor is a PackageSkip borrow
		// another info's link, so theirs is never emitted.
		firstIsPackageSkip := len(descs) > 0 && descs[0].Get().LoadArgs.Tag == LoadArgsPackageSkip
		linkCell := iv.LinkRef.Cell()
		if !iv.IsShared() && !linkMaker.Contains(linkCell) && (isInfoGroupInfo || !firstIsPackageSkip) {
			linkMaker.PushIfAbsent(linkCell)
		}
		if !isInfoGroupInfo {
			pathMaker.PushIfAbsent(iv.PathRef.Cell())
		}
	}

	pushGroup = func(g *table.Cell[Group]) {
		if groupMaker.Contains(g) {
			return
		}
		groupMaker.Push(g)
		gv := g.Get()
		if gv.FileKind == GroupFilesMetadatas {
			for _, m := range gv.MetadataFiles.Cells() {
				metaMaker.PushIfAbsent(m)
			}
			return
		}
		isVersionGroup := gv.IsVersionGroup()
		if isVersionGroup && versionGroupInfoStart == -1 {
			versionGroupInfoStart = infoMaker.Len()
		}
		for _, info := range gv.InfoFiles.Cells() {
			pushInfo(info, true, isVersionGroup)
		}
	}

	pushPackage := func(pkg *table.Cell[Package]) {
		pkgMaker.Push(pkg)
		pv := pkg.Get()
		for _, g := range pv.Groups.Cells() {
			pushGroup(g)
		}
		for _, cp := range pv.ChildPackages.Cells() {
			cpMaker.Push(cp)
		}
		for _, info := range pv.Infos.Cells() {
			pushInfo(info, false, false)
		}
	}

	for _, pkg := range e.tables.Packages {
		pushPackage(pkg)
	}

	for _, g := range e.tables.Groups {
		gv := g.Get()
		if groupMaker.Contains(g) || !gv.IsInfoGroup() || gv.IsVersionGroup() {
			continue
		}
		if infoGroupInfoStart == -1 {
			infoGroupInfoStart = infoMaker.Len()
		}
		pushGroup(g)
	}
	if infoGroupInfoStart == -1 {
		infoGroupInfoStart = infoMaker.Len()
	}

	lastPatchFilesStart := vfMaker.Len()
	patchVFStarts := make([]int, 0, len(e.tables.Patches))
	for _, patch := range e.tables.Patches {
		patchMaker.Push(patch)
		pv := patch.Get()
		lastPatchFilesStart = vfMaker.Len()
		patchVFStarts = append(patchVFStarts, lastPatchFilesStart)
		for _, vf := range pv.VersionedFiles.Cells() {
			vfMaker.Push(vf)
		}
		pushGroup(pv.Group.Cell())
		for _, info := range pv.Infos.Cells() {
			pushInfo(info, true, true)
		}
	}
	if versionGroupInfoStart == -1 {
		versionGroupInfoStart = infoMaker.Len()
	}

	vfTable := vfMaker.Cells()
	var vfByPatch [][]*table.Cell[VersionedFile]
	if len(patchMaker.Cells()) > 0 {
		vfByPatch = make([][]*table.Cell[VersionedFile], len(patchMaker.Cells()))
		for i, patch := range patchMaker.Cells() {
			n := int(patch.Get().FileCount)
			start := patchVFStarts[i]
			if start+n <= len(vfTable) {
				vfByPatch[i] = vfTable[start : start+n]
			}
		}
	}

	return &reorganizeResult{
		tables: &Tables{
			Packages:       pkgMaker.Cells(),
			ChildPackages:  cpMaker.Cells(),
			Groups:         groupMaker.Cells(),
			Paths:          pathMaker.Cells(),
			Links:          linkMaker.Cells(),
			Infos:          infoMaker.Cells(),
			Descriptors:    descMaker.Cells(),
			Metadatas:      metaMaker.Cells(),
			Patches:        patchMaker.Cells(),
			VersionedFiles: vfByPatch,
			VersionMajor:   e.tables.VersionMajor,
			VersionMinor:   e.tables.VersionMinor,
			VersionPatch:   e.tables.VersionPatch,
		},
		infoGroupInfoStart:    infoGroupInfoStart,
		versionGroupInfoStart: versionGroupInfoStart,
		lastPatchFilesStart:   lastPatchFilesStart,
	}
}

func wrapResolvedVF(vf *table.Cell[VersionedFile]) table.OptionalRef[VersionedFile] {
	r := table.UnresolvedOptionalRef[VersionedFile](0)
	r.Resolve([]*table.Cell[VersionedFile]{vf})
	return r
}

// resolveDescriptor binds a Descriptor's Group/Metadata refs and interprets
// LoadArgs' tagged payload according to the resolve-time context
// (info_offset, is_versioned) its owning Info supplies.
func resolveDescriptor(
	d *table.Cell[Descriptor],
	groups []*table.Cell[Group],
	links []*table.Cell[Link],
	infos []*table.Cell[Info],
	metadatas []*table.Cell[Metadata],
	patches []*table.Cell[Patch],
	infoOffset int,
	isVersioned bool,
) error {
	d.BorrowMut(func(v *Descriptor) {
		v.Group.Resolve(groups)
		v.Metadata.Resolve(metadatas)

		switch v.LoadArgs.Tag {
		case LoadArgsUnowned, LoadArgsSharedButOwned:
			if !v.LoadArgs.Link.IsResolved() {
				v.LoadArgs.Link = table.UnresolvedRef[Link](v.LoadArgs.Payload)
				v.LoadArgs.Link.Resolve(links)
			}
		case LoadArgsOwned:
			// The payload is the direct patch index (0 is a legitimate
			// first-patch index); "no patch" comes only from the
			// descriptor not being versioned.
			if isVersioned {
				v.LoadArgs.PatchIndex = int(v.LoadArgs.Payload)
			} else {
				v.LoadArgs.PatchIndex = -1
			}
		case LoadArgsPackageSkip:
			if !v.LoadArgs.InfoRef.IsResolved() {
				v.LoadArgs.InfoIndex = v.LoadArgs.Payload + uint32(infoOffset)
				v.LoadArgs.InfoRef = table.UnresolvedRef[Info](v.LoadArgs.InfoIndex)
				v.LoadArgs.InfoRef.Resolve(infos)
			}
		case LoadArgsUnknown, LoadArgsUnsupportedRegion:
			// No further resolution: Unknown carries no payload, and
			// UnsupportedRegion's payload is an opaque region/locale code.
		}
	})
	return nil
}
