// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import "github.com/saferwall/snarc/table"

// GetFile looks up a path by its full-path Hash40.
func (e *Engine) GetFile(hash uint64) (*table.Cell[Path], error) {
	if e.fileLookup == nil {
		return nil, ErrNotFound
	}
	c, ok := e.fileLookup.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// HasFile reports whether hash exists in the file lookup.
func (e *Engine) HasFile(hash uint64) bool {
	_, err := e.GetFile(hash)
	return err == nil
}

// GetPackage looks up a package by its full-path Hash40, scanning the
// packages table (there are typically only a few hundred packages, so no
// dedicated lookup table is maintained for this).
func (e *Engine) GetPackage(hash uint64) (*table.Cell[Package], error) {
	for _, p := range e.tables.Packages {
		if p.Get().FullPath == hash {
			return p, nil
		}
	}
	return nil, ErrPackageNotFound
}

// BucketCount returns the file lookup's preserved bucket count.
func (e *Engine) BucketCount() uint32 { return e.bucketCount }

// InfoGroupInfoStart returns the infos-table index at which the first
// non-versioned info-group's infos begin, as computed by the last Resolve.
func (e *Engine) InfoGroupInfoStart() int { return e.infoGroupInfoStart }

// VersionGroupInfoStart returns the infos-table index at which the first
// version-group's infos begin, as computed by the last Resolve.
func (e *Engine) VersionGroupInfoStart() int { return e.versionGroupInfoStart }

// LastPatchFilesStart returns the versioned-files index of the latest
// patch's first entry, the base every Path.versioned_file index is
// serialized relative to.
func (e *Engine) LastPatchFilesStart() int { return e.latestPatchFileStart }
