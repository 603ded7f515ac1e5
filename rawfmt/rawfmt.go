// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package rawfmt offers a zero-copy "peek" view over packaged and search
// records: fixed-layout structs decoded directly from a byte slice via
// encoding/binary, with none of the resolve pass that packagedfs and
// searchfs perform (refs stay raw indices, flags stay raw bits). It is the
// right tool for a caller that wants to inspect one record out of a mapped
// file without paying for a whole engine's Resolve.
package rawfmt

import "errors"

// ErrTruncated is returned when a byte slice is too short to hold the
// record being decoded.
var ErrTruncated = errors.New("rawfmt: truncated record")
