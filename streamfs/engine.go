// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Engine is the resolved view over the four stream tables plus the
// hash-to-path lookup preserved from (or rebuilt for) the on-disk format.
type Engine struct {
	tables      *Tables
	pathLookup  *table.BucketMap[*table.Cell[StreamPath]]
	bucketCount uint32
}

// New constructs an Engine from already-parsed raw tables and a bucket
// count for the path lookup (preserved from the source archive for
// round-trip fidelity).
func New(tables *Tables, bucketCount uint32) *Engine {
	return &Engine{tables: tables, bucketCount: bucketCount}
}

// Folders returns the folder table.
func (e *Engine) Folders() []*table.Cell[StreamFolder] { return e.tables.Folders }

// Paths returns the path table.
func (e *Engine) Paths() []*table.Cell[StreamPath] { return e.tables.Paths }

// Links returns the link table.
func (e *Engine) Links() []*table.Cell[StreamLink] { return e.tables.Links }

// Metadatas returns the metadata table.
func (e *Engine) Metadatas() []*table.Cell[StreamMetadata] { return e.tables.Metadatas }

// Resolve walks folders, then paths, then links, binding every contiguous
// reference to its target table. Calling Resolve twice is a no-op on
// already-resolved references.
func (e *Engine) Resolve() error {
	for _, f := range e.tables.Folders {
		f.BorrowMut(func(v *StreamFolder) {
			v.Paths.Resolve(e.tables.Paths)
		})
	}
	for _, p := range e.tables.Paths {
		p.BorrowMut(func(v *StreamPath) {
			v.Links.Resolve(e.tables.Links)
		})
	}
	for _, l := range e.tables.Links {
		l.BorrowMut(func(v *StreamLink) {
			v.Metadata.Resolve(e.tables.Metadatas)
		})
	}

	lookup := table.NewBucketMap[*table.Cell[StreamPath]](e.bucketCount)
	for _, p := range e.tables.Paths {
		v := p.Get()
		lookup.Insert(v.FullPath, p)
	}
	e.pathLookup = lookup
	return nil
}

// GetPath looks up a stream path by its full-path Hash40.
func (e *Engine) GetPath(hash uint64) (*table.Cell[StreamPath], error) {
	if e.pathLookup == nil {
		return nil, ErrNotFound
	}
	c, ok := e.pathLookup.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Reorganize rebuilds the four tables in canonical emission order: folders
// in input order, each folder's paths, each path's links, and each link's
// metadata (shared metadata is pushed only once).
func (e *Engine) Reorganize() *Engine {
	folderMaker := table.NewMaker[StreamFolder]()
	pathMaker := table.NewMaker[StreamPath]()
	linkMaker := table.NewMaker[StreamLink]()
	metadataMaker := table.NewMaker[StreamMetadata]()

	for _, f := range e.tables.Folders {
		folderMaker.Push(f)
		fv := f.Get()
		for _, p := range fv.Paths.Cells() {
			pathMaker.Push(p)
			pv := p.Get()
			for _, l := range pv.Links.Cells() {
				linkMaker.Push(l)
				lv := l.Get()
				metadataMaker.PushIfAbsent(lv.Metadata.Cell())
			}
		}
	}

	return &Engine{
		tables: &Tables{
			Folders:   folderMaker.Cells(),
			Paths:     pathMaker.Cells(),
			Links:     linkMaker.Cells(),
			Metadatas: metadataMaker.Cells(),
		},
		bucketCount: e.bucketCount,
		pathLookup:  e.pathLookup,
	}
}

// BucketCount returns the path lookup's preserved bucket count.
func (e *Engine) BucketCount() uint32 { return e.bucketCount }

// HashKeyFor is a small helper exposed for the writer: packs a StreamFolder
// or StreamPath's start index the way the on-disk record requires.
func HashKeyFor(hash uint64, index uint32) hashkey.HashKey {
	return hashkey.New(hash, index)
}
