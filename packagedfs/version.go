// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// semverString renders a patch's (major, minor, patch) triple as the
// "vX.Y.Z" form golang.org/x/mod/semver requires.
func (p Patch) semverString() string {
	return fmt.Sprintf("v%d.%d.%d", p.VersionMajor, p.VersionMinor, p.VersionPatch)
}

// IsNewerThan reports whether p's version triple is strictly greater than
// other's, per semantic-version ordering. The upstream format stores the
// triple as raw bytes with no comparison logic of its own; this gives it
// one, so patches can be applied in order rather than by file position.
func (p Patch) IsNewerThan(other Patch) bool {
	return semver.Compare(p.semverString(), other.semverString()) > 0
}
