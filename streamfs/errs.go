// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import "errors"

// Errors
var (
	// ErrFormat is returned when a flag value falls outside its enumerated
	// set, or a table's byte length is not a multiple of its record size.
	ErrFormat = errors.New("streamfs: malformed table data")

	// ErrNotFound is returned when a hash lookup misses.
	ErrNotFound = errors.New("streamfs: path not found")
)
