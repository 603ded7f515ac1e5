// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import "errors"

// Errors
var (
	// ErrFormat is returned when a table's byte length is not a multiple of
	// its record size, a flag combination is invalid, or a range's
	// cardinality doesn't match the {1,6,15} rule.
	ErrFormat = errors.New("packagedfs: malformed table data")

	// ErrNotFound is returned when a hash lookup misses.
	ErrNotFound = errors.New("packagedfs: entry not found")

	// ErrPackageNotFound is returned by AddFile when the target package
	// hash does not exist.
	ErrPackageNotFound = errors.New("packagedfs: package not found")

	// ErrAlreadyExists is returned by AddFile when the path already exists.
	ErrAlreadyExists = errors.New("packagedfs: file already exists")
)
