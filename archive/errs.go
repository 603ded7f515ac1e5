// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package archive

import "errors"

// Errors
var (
	// ErrBadMagic is returned when the outer container header or a table
	// section header doesn't start with its expected magic value.
	ErrBadMagic = errors.New("archive: bad magic")

	// ErrFormat is returned when a header is truncated, a size is
	// inconsistent, or a region/locale value falls outside the
	// enumerated set.
	ErrFormat = errors.New("archive: malformed container data")
)
