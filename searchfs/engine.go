// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"fmt"
	"strings"

	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/table"
)

// Engine is the resolved view over the two search tables, plus the hash
// lookups used both at resolve time (folder-by-hash) and for public
// queries.
type Engine struct {
	tables       *Tables
	folderLookup *table.BucketMap[*table.Cell[SearchFolder]]
	pathLookup   *table.BucketMap[*table.Cell[SearchPath]]
	bucketCount  uint32
	hasher       codec.Hasher
}

// New constructs an Engine from raw tables, a preserved lookup bucket
// count, and the Hasher used by AddFile to hash new path components.
func New(tables *Tables, bucketCount uint32, hasher codec.Hasher) *Engine {
	if hasher == nil {
		hasher = codec.NewPlaceholderHasher()
	}
	return &Engine{tables: tables, bucketCount: bucketCount, hasher: hasher}
}

// Folders returns the folder table.
func (e *Engine) Folders() []*table.Cell[SearchFolder] { return e.tables.Folders }

// Paths returns the path table.
func (e *Engine) Paths() []*table.Cell[SearchPath] { return e.tables.Paths }

// Resolve binds every path's folder reference (by matching full_path hash
// against the folder lookup, only for paths whose folder bit is set), every
// path's next sibling reference, and finally materializes each folder's
// child list by walking Next() from its first child.
func (e *Engine) Resolve() error {
	folderLookup := table.NewBucketMap[*table.Cell[SearchFolder]](e.bucketCount)
	for _, f := range e.tables.Folders {
		v := f.Get()
		folderLookup.Insert(v.FullPath, f)
	}
	e.folderLookup = folderLookup

	for _, p := range e.tables.Paths {
		p.BorrowMut(func(v *SearchPath) {
			if v.IsFolder {
				fc, ok := folderLookup.Get(v.FullPath)
				if !ok {
					panic(fmt.Sprintf("searchfs: resolve: folder hash %x missing from folder lookup", v.FullPath))
				}
				v.Folder = table.OptionalRef[SearchFolder]{}
				v.Folder = wrapResolvedFolder(fc)
			}
		})
	}
	for _, p := range e.tables.Paths {
		p.BorrowMut(func(v *SearchPath) {
			v.NextRef.Resolve(e.tables.Paths)
		})
	}
	for _, f := range e.tables.Folders {
		f.BorrowMut(func(v *SearchFolder) {
			v.Children.Resolve(e.tables.Paths)
		})
	}

	pathLookup := table.NewBucketMap[*table.Cell[SearchPath]](e.bucketCount)
	for _, p := range e.tables.Paths {
		v := p.Get()
		pathLookup.Insert(v.FullPath, p)
	}
	e.pathLookup = pathLookup
	return nil
}

// wrapResolvedFolder builds an already-Resolved OptionalRef[SearchFolder]
// pointing directly at fc, bypassing index-based resolution since the
// folder reference is bound by matching hash rather than stored index.
func wrapResolvedFolder(fc *table.Cell[SearchFolder]) table.OptionalRef[SearchFolder] {
	r := table.UnresolvedOptionalRef[SearchFolder](0)
	r.Resolve([]*table.Cell[SearchFolder]{fc})
	return r
}

// GetFolder looks up a folder by its full-path Hash40.
func (e *Engine) GetFolder(hash uint64) (*table.Cell[SearchFolder], error) {
	if e.folderLookup == nil {
		return nil, ErrNotFound
	}
	c, ok := e.folderLookup.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetPath looks up a path by its full-path Hash40.
func (e *Engine) GetPath(hash uint64) (*table.Cell[SearchPath], error) {
	if e.pathLookup == nil {
		return nil, ErrNotFound
	}
	c, ok := e.pathLookup.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetChildByName walks folder's resolved children and returns the first
// entry whose Name hash matches and which is itself a folder.
func GetChildByName(folder *table.Cell[SearchFolder], name uint64) (*table.Cell[SearchPath], bool) {
	fv := folder.Get()
	for _, c := range fv.Children.Cells() {
		pv := c.Get()
		if pv.Name == name && pv.IsFolder {
			return c, true
		}
	}
	return nil, false
}

// PushChild appends path to folder's in-memory children slice, rewiring
// the previous last child's next pointer so the real backing singly
// linked list (what gets serialized) stays consistent with the children
// slice (a read projection of that list, not the list itself).
func PushChild(folder *table.Cell[SearchFolder], path *table.Cell[SearchPath]) {
	folder.BorrowMut(func(fv *SearchFolder) {
		cells := fv.Children.Cells()
		if len(cells) > 0 {
			last := cells[len(cells)-1]
			last.BorrowMut(func(lv *SearchPath) {
				lv.NextRef = wrapResolvedPath(path)
			})
		}
		fv.Children.SetCells(append(cells, path))
	})
}

func wrapResolvedPath(pc *table.Cell[SearchPath]) table.OptionalRef[SearchPath] {
	r := table.UnresolvedOptionalRef[SearchPath](0)
	r.Resolve([]*table.Cell[SearchPath]{pc})
	return r
}

// splitPath decomposes a '/'-delimited path into its directory components
// and final file component (name + extension), the same decomposition
// pathFromString in the packaged engine performs.
func splitPath(s string) (dirs []string, fileName, extension string) {
	parts := strings.Split(s, "/")
	fileName = parts[len(parts)-1]
	dirs = parts[:len(parts)-1]
	if idx := strings.LastIndexByte(fileName, '.'); idx >= 0 {
		extension = fileName[idx+1:]
	}
	return
}

// NewPathFromString parses a full search path string into a SearchPath,
// hashing each component with the engine's Hasher. It never sets an
// extension for a path destined to become a folder marker (folders carry
// a blank extension hash).
func (e *Engine) NewPathFromString(s string, isFolder bool) (*table.Cell[SearchPath], error) {
	if s == "" {
		return nil, fmt.Errorf("searchfs: empty path: %w", ErrFormat)
	}
	dirs, fileName, extension := splitPath(s)
	if fileName == "" {
		return nil, fmt.Errorf("searchfs: missing file component in %q: %w", s, ErrFormat)
	}
	parent := strings.Join(dirs, "/")

	extHash := uint64(0)
	if !isFolder && extension != "" {
		extHash = e.hasher.Hash(extension)
	}

	return table.NewCell(SearchPath{
		FullPath:  e.hasher.Hash(s),
		Parent:    e.hasher.Hash(parent),
		Name:      e.hasher.Hash(fileName),
		Extension: extHash,
		IsFolder:  isFolder,
	}), nil
}

// HasFile reports whether hash exists in the path lookup.
func (e *Engine) HasFile(hash uint64) bool {
	_, err := e.GetPath(hash)
	return err == nil
}

// AddFile splits path by '/', walking or creating intermediate folders, and
// appends a new leaf SearchPath to the deepest folder's child list.
// Rejects a path whose hash would collide with a pre-existing entry.
func (e *Engine) AddFile(path string) (*table.Cell[SearchPath], error) {
	fullHash := e.hasher.Hash(path)
	if e.HasFile(fullHash) {
		return nil, ErrAlreadyExists
	}
	if _, ok := e.folderLookup.Get(fullHash); ok {
		return nil, fmt.Errorf("searchfs: add %q: %w", path, ErrWouldBeFolder)
	}

	dirs, _, _ := splitPath(path)

	var parentFolder *table.Cell[SearchFolder]
	var built string
	for _, d := range dirs {
		if built == "" {
			built = d
		} else {
			built = built + "/" + d
		}
		dirHash := e.hasher.Hash(built)

		folder, ok := e.folderLookup.Get(dirHash)
		if ok {
			parentFolder = folder
			continue
		}
		// The component exists as a plain file; it cannot double as a folder.
		if e.HasFile(dirHash) {
			return nil, fmt.Errorf("searchfs: add %q: component %q %w", path, built, ErrWouldBeFolder)
		}

		folderPathCell, err := e.NewPathFromString(built, true)
		if err != nil {
			return nil, err
		}
		newFolder := table.NewCell(SearchFolder{
			FullPath: dirHash,
			Parent:   folderPathCell.Get().Parent,
			Name:     folderPathCell.Get().Name,
			Children: table.EmptyLinkedRef[SearchPath](),
		})
		folderPathCell.BorrowMut(func(v *SearchPath) {
			v.Folder = wrapResolvedFolder(newFolder)
		})

		e.tables.Folders = append(e.tables.Folders, newFolder)
		e.tables.Paths = append(e.tables.Paths, folderPathCell)
		e.folderLookup.Insert(dirHash, newFolder)
		e.pathLookup.Insert(dirHash, folderPathCell)

		if parentFolder != nil {
			PushChild(parentFolder, folderPathCell)
			parentFolder.BorrowMut(func(v *SearchFolder) { v.FolderCount++ })
		}
		parentFolder = newFolder
	}

	leaf, err := e.NewPathFromString(path, false)
	if err != nil {
		return nil, err
	}
	e.tables.Paths = append(e.tables.Paths, leaf)
	e.pathLookup.Insert(fullHash, leaf)

	if parentFolder != nil {
		PushChild(parentFolder, leaf)
		parentFolder.BorrowMut(func(v *SearchFolder) { v.FileCount++ })
	}

	return leaf, nil
}

// Reorganize re-emits folders and paths in canonical order: each folder is
// pushed in input order, immediately followed by its resolved children.
// Unreferenced root-level paths (with no owning folder reachable from any
// folder's child list) are appended last, in input order.
func (e *Engine) Reorganize() *Engine {
	folderMaker := table.NewMaker[SearchFolder]()
	pathMaker := table.NewMaker[SearchPath]()

	for _, f := range e.tables.Folders {
		folderMaker.Push(f)
		fv := f.Get()
		for _, c := range fv.Children.Cells() {
			pathMaker.PushIfAbsent(c)
		}
	}
	for _, p := range e.tables.Paths {
		pathMaker.PushIfAbsent(p)
	}

	return &Engine{
		tables: &Tables{
			Folders: folderMaker.Cells(),
			Paths:   pathMaker.Cells(),
		},
		bucketCount: e.bucketCount,
		hasher:      e.hasher,
	}
}

// BucketCount returns the preserved lookup bucket count.
func (e *Engine) BucketCount() uint32 { return e.bucketCount }
