// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"fmt"
	"strings"

	"github.com/saferwall/snarc/table"
)

// graphicsArchiveExtensions are the file extensions AddFile classifies as
// IsGraphicsArchive rather than IsRegularFile.
var graphicsArchiveExtensions = map[string]bool{
	"nutexb": true,
	"arc":    true,
	"bntx":   true,
	"eff":    true,
}

// pathFromString parses a '/'-delimited packaged path string into its
// full_path/parent/file_name/extension Hash40 components.
func (e *Engine) pathFromString(s string) (full, parent, fileName, extension uint64, extStr string, err error) {
	if s == "" {
		return 0, 0, 0, 0, "", fmt.Errorf("packagedfs: empty path: %w", ErrFormat)
	}
	parts := strings.Split(s, "/")
	name := parts[len(parts)-1]
	if name == "" {
		return 0, 0, 0, 0, "", fmt.Errorf("packagedfs: missing file component in %q: %w", s, ErrFormat)
	}
	parentStr := strings.Join(parts[:len(parts)-1], "/")

	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		extStr = name[idx+1:]
	}

	return e.hasher.Hash(s), e.hasher.Hash(parentStr), e.hasher.Hash(name), e.hasher.Hash(extStr), extStr, nil
}

// AddFile creates a new file entry inside the package identified by
// packageHash: a fresh Descriptor/Metadata pair bound to the package's
// first group, a fresh Info owning that one descriptor, a fresh Link
// owned by the package, and a fresh Path — all cross-wired per the
// PackagedEngine mutation contract, then registered in file_lookup and
// appended to the package's info list.
func (e *Engine) AddFile(filePath string, packageHash uint64) (*table.Cell[Info], error) {
	full, parent, fileName, extHash, extStr, err := e.pathFromString(filePath)
	if err != nil {
		return nil, err
	}
	if e.HasFile(full) {
		return nil, ErrAlreadyExists
	}

	pkg, err := e.GetPackage(packageHash)
	if err != nil {
		return nil, err
	}
	pv := pkg.Get()
	groups := pv.Groups.Cells()
	if len(groups) == 0 {
		return nil, fmt.Errorf("packagedfs: package has no groups to anchor a new file: %w", ErrFormat)
	}
	anchorGroup := groups[0]

	metadata := table.NewCell(Metadata{})
	anchorGroup.BorrowMut(func(gv *Group) {
		gv.MetadataFiles.Append(metadata)
	})

	link := table.NewCell(Link{
		Owner: LinkOwnerRef{kind: LinkOwnerPackage, pkg: pkg},
	})

	descriptor := table.NewCell(Descriptor{
		Group: resolvedGroupRef(anchorGroup),
		Metadata: func() table.OptionalRef[Metadata] {
			r := table.UnresolvedOptionalRef[Metadata](0)
			r.Resolve([]*table.Cell[Metadata]{metadata})
			return r
		}(),
		LoadArgs: LoadArgs{Tag: LoadArgsUnowned, Link: resolvedLinkRef(link)},
	})

	flags := uint32(InfoFlagIsRegularFile)
	if graphicsArchiveExtensions[extStr] {
		flags = InfoFlagIsGraphicsArchive
	}

	info := table.NewCell(Info{Flags: flags})
	info.BorrowMut(func(iv *Info) {
		iv.Descriptors = table.UnresolvedContiguousRef[Descriptor](0, 0)
		iv.Descriptors.Resolve(nil)
		iv.Descriptors.Append(descriptor)
	})

	path := table.NewCell(Path{
		FullPath:  full,
		Parent:    parent,
		FileName:  fileName,
		Extension: extHash,
	})

	// Cross-wire link <-> info <-> path.
	link.BorrowMut(func(lv *Link) {
		lv.Info = resolvedInfoRef(info)
	})
	info.BorrowMut(func(iv *Info) {
		iv.LinkRef = resolvedLinkRef(link)
	})
	path.BorrowMut(func(pv *Path) {
		pv.Link = resolvedLinkRef(link)
	})

	e.tables.Paths = append(e.tables.Paths, path)
	e.tables.Links = append(e.tables.Links, link)
	e.tables.Infos = append(e.tables.Infos, info)
	e.tables.Descriptors = append(e.tables.Descriptors, descriptor)
	e.tables.Metadatas = append(e.tables.Metadatas, metadata)

	info.BorrowMut(func(iv *Info) {
		iv.PathRef = resolvedPathRef(path)
	})

	e.fileLookup.Insert(full, path)
	pkg.BorrowMut(func(v *Package) {
		v.Infos.Append(info)
	})

	return info, nil
}

func resolvedGroupRef(g *table.Cell[Group]) table.Ref[Group] {
	r := table.UnresolvedRef[Group](0)
	r.Resolve([]*table.Cell[Group]{g})
	return r
}

func resolvedInfoRef(i *table.Cell[Info]) table.Ref[Info] {
	r := table.UnresolvedRef[Info](0)
	r.Resolve([]*table.Cell[Info]{i})
	return r
}

func resolvedLinkRef(l *table.Cell[Link]) table.Ref[Link] {
	r := table.UnresolvedRef[Link](0)
	r.Resolve([]*table.Cell[Link]{l})
	return r
}

func resolvedPathRef(p *table.Cell[Path]) table.Ref[Path] {
	r := table.UnresolvedRef[Path](0)
	r.Resolve([]*table.Cell[Path]{p})
	return r
}
