// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"testing"

	"github.com/saferwall/snarc/codec"
)

func emptyEngine(bucketCount uint32) *Engine {
	t := &Tables{}
	e := New(t, bucketCount, codec.NewPlaceholderHasher())
	e.folderLookup = nil
	_ = e.Resolve()
	return e
}

func TestAddFileCreatesIntermediateFolders(t *testing.T) {
	e := emptyEngine(64)

	leaf, err := e.AddFile("a/b/c.bin")
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if leaf.Get().IsFolder {
		t.Fatalf("leaf incorrectly marked as folder")
	}

	if len(e.tables.Folders) != 2 {
		t.Fatalf("expected 2 folders (a, a/b), got %d", len(e.tables.Folders))
	}

	h := codec.NewPlaceholderHasher()
	if !e.HasFile(h.Hash("a")) {
		t.Fatal("folder a missing from lookup")
	}
	if !e.HasFile(h.Hash("a/b")) {
		t.Fatal("folder a/b missing from lookup")
	}
	if !e.HasFile(h.Hash("a/b/c.bin")) {
		t.Fatal("leaf missing from lookup")
	}
}

func TestAddFileRejectsDuplicate(t *testing.T) {
	e := emptyEngine(64)
	if _, err := e.AddFile("a/b.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddFile("a/b.bin"); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFolderChildListOrder(t *testing.T) {
	e := emptyEngine(64)
	if _, err := e.AddFile("a/one.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddFile("a/two.bin"); err != nil {
		t.Fatal(err)
	}

	h := codec.NewPlaceholderHasher()
	folder, err := e.GetFolder(h.Hash("a"))
	if err != nil {
		t.Fatal(err)
	}
	children := folder.Get().Children.Cells()
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if children[0].Get().Name != h.Hash("one.bin") {
		t.Fatal("children out of order")
	}
	if children[1].Get().Name != h.Hash("two.bin") {
		t.Fatal("children out of order")
	}
}

func TestReorganizeRoundTrip(t *testing.T) {
	e := emptyEngine(64)
	if _, err := e.AddFile("a/b/c.bin"); err != nil {
		t.Fatal(err)
	}
	reorg := e.Reorganize()
	if len(reorg.Folders()) != len(e.tables.Folders) {
		t.Fatalf("folder count changed across reorganize")
	}
	if len(reorg.Paths()) != len(e.tables.Paths) {
		t.Fatalf("path count changed across reorganize")
	}

	w := NewWriter(reorg)
	folderBytes := w.encodeFolders(w.pathIndices())
	if len(folderBytes) != len(reorg.Folders())*folderRecordSize {
		t.Fatalf("unexpected encoded folder byte length")
	}
}
