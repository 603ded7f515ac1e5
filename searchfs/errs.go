// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import "errors"

// Errors
var (
	// ErrFormat is returned when a table's byte length is not a multiple
	// of its record size, or a path string is malformed.
	ErrFormat = errors.New("searchfs: malformed table data")

	// ErrNotFound is returned when a hash lookup misses.
	ErrNotFound = errors.New("searchfs: entry not found")

	// ErrAlreadyExists is returned by AddFile when the path is already
	// present in the namespace.
	ErrAlreadyExists = errors.New("searchfs: file already exists")

	// ErrWouldBeFolder is returned by AddFile when the hash of the path
	// being added collides with the folder-marker convention, which
	// AddFile refuses rather than silently mis-tag.
	ErrWouldBeFolder = errors.New("searchfs: path would be classified as a folder")
)
