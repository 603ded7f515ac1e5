// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"testing"

	"github.com/saferwall/snarc/codec"
)

// TestWriteToDirectoryThenParseDirectoryRoundTrips exercises the full
// parse -> resolve -> reorganize -> write -> reparse -> resolve cycle
// against a developer table directory, the on-disk shape a real build
// pipeline hands between tools.
func TestWriteToDirectoryThenParseDirectoryRoundTrips(t *testing.T) {
	h := codec.NewPlaceholderHasher()
	e, pkg := buildSinglePackageArchive(h)
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pkgHash := pkg.Get().FullPath
	if _, err := e.AddFile("a/bar.nutexb", pkgHash); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	reorg := e.Reorganize()

	dir := t.TempDir()
	if err := NewWriter(reorg).WriteToDirectory(dir); err != nil {
		t.Fatalf("WriteToDirectory: %v", err)
	}

	tables, err := ParseDirectory(dir)
	if err != nil {
		t.Fatalf("ParseDirectory: %v", err)
	}

	reparsed := New(tables, reorg.BucketCount(), h)
	if err := reparsed.Resolve(); err != nil {
		t.Fatalf("Resolve after reparse: %v", err)
	}

	if got, want := len(reparsed.Packages()), len(reorg.Packages()); got != want {
		t.Fatalf("Packages = %d, want %d", got, want)
	}
	if got, want := len(reparsed.Infos()), len(reorg.Infos()); got != want {
		t.Fatalf("Infos = %d, want %d", got, want)
	}
	if got, want := len(reparsed.Links()), len(reorg.Links()); got != want {
		t.Fatalf("Links = %d, want %d", got, want)
	}
	if got, want := len(reparsed.Paths()), len(reorg.Paths()); got != want {
		t.Fatalf("Paths = %d, want %d", got, want)
	}

	if !reparsed.HasFile(h.Hash("a/bar.nutexb")) {
		t.Fatal("round-tripped archive lost the file added before reorganize")
	}
	found, err := reparsed.GetFile(h.Hash("a/b.bin"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if found.Get().Extension != h.Hash("bin") {
		t.Fatal("round-tripped path extension mismatch")
	}
}
