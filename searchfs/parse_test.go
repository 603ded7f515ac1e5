// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/saferwall/snarc/hashkey"
)

// buildRawFolderRecord lays out one 32-byte SearchFolder record exactly as
// the real format stores it: HashKey(full_path, folder_count),
// HashKey(parent, file_count), a plain name, a true 4-byte first-child
// index, then 4 bytes of padding.
func buildRawFolderRecord(fullPath uint64, folderCount uint32, parent uint64, fileCount uint32, name uint64, firstChild uint32) []byte {
	r := make([]byte, folderRecordSize)
	binary.LittleEndian.PutUint64(r[0:8], hashkey.New(fullPath, folderCount).Uint64())
	binary.LittleEndian.PutUint64(r[8:16], hashkey.New(parent, fileCount).Uint64())
	binary.LittleEndian.PutUint64(r[16:24], name)
	binary.LittleEndian.PutUint32(r[24:28], firstChild)
	return r
}

// buildRawPathRecord lays out one 32-byte SearchPath record exactly as the
// real format stores it: HashKey(full_path, next_index),
// HashKey(parent, is_folder_bit), a plain name, and a plain extension with
// no packed index.
func buildRawPathRecord(fullPath uint64, nextIndex uint32, parent uint64, isFolderBit uint32, name, extension uint64) []byte {
	r := make([]byte, pathRecordSize)
	binary.LittleEndian.PutUint64(r[0:8], hashkey.New(fullPath, nextIndex).Uint64())
	binary.LittleEndian.PutUint64(r[8:16], hashkey.New(parent, isFolderBit).Uint64())
	binary.LittleEndian.PutUint64(r[16:24], name)
	binary.LittleEndian.PutUint64(r[24:32], extension)
	return r
}

func TestParseBytesDecodesRealFolderLayout(t *testing.T) {
	raw := buildRawFolderRecord(0x1111, 3, 0x2222, 5, 0x3333, 7)

	tbl, err := ParseBytes(raw, nil)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(tbl.Folders) != 1 {
		t.Fatalf("expected 1 folder, got %d", len(tbl.Folders))
	}
	f := tbl.Folders[0].Get()
	if f.FullPath != 0x1111 || f.FolderCount != 3 {
		t.Fatalf("word0 decoded wrong: full_path=%#x folder_count=%d", f.FullPath, f.FolderCount)
	}
	if f.Parent != 0x2222 || f.FileCount != 5 {
		t.Fatalf("word1 decoded wrong: parent=%#x file_count=%d", f.Parent, f.FileCount)
	}
	if f.Name != 0x3333 {
		t.Fatalf("name decoded wrong: %#x", f.Name)
	}
}

func TestParseBytesDecodesRealPathLayout(t *testing.T) {
	raw := buildRawPathRecord(0x1111, 9, 0x2222, IsFolderBit, 0x3333, 0x4444)

	tbl, err := ParseBytes(nil, raw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(tbl.Paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(tbl.Paths))
	}
	p := tbl.Paths[0].Get()
	if p.FullPath != 0x1111 {
		t.Fatalf("word0 hash decoded wrong: %#x", p.FullPath)
	}
	if p.Parent != 0x2222 {
		t.Fatalf("word1 hash decoded wrong: %#x", p.Parent)
	}
	if !p.IsFolder {
		t.Fatalf("is-folder bit not decoded")
	}
	if p.Name != 0x3333 {
		t.Fatalf("name decoded wrong: %#x", p.Name)
	}
	if p.Extension != 0x4444 {
		t.Fatalf("extension decoded wrong (no packed index expected): %#x", p.Extension)
	}
}

func TestEncodeFoldersMatchesRealLayoutBitForBit(t *testing.T) {
	e := emptyEngine(16)
	if _, err := e.AddFile("a/b.bin"); err != nil {
		t.Fatal(err)
	}
	reorg := e.Reorganize()

	w := NewWriter(reorg)
	pathIdx := w.pathIndices()
	encoded := w.encodeFolders(pathIdx)

	decoded, err := ParseBytes(encoded, nil)
	if err != nil {
		t.Fatalf("ParseBytes of re-encoded folders: %v", err)
	}
	for i, c := range decoded.Folders {
		want := reorg.Folders()[i].Get()
		got := c.Get()
		if got.FullPath != want.FullPath || got.Parent != want.Parent ||
			got.Name != want.Name || got.FileCount != want.FileCount ||
			got.FolderCount != want.FolderCount {
			t.Fatalf("folder %d round-trip mismatch: got %+v want %+v", i, got, want)
		}
	}

	reEncoded := w.encodeFolders(pathIdx)
	if !bytes.Equal(encoded, reEncoded) {
		t.Fatalf("re-encoding is not stable")
	}
}

func TestEncodePathsMatchesRealLayoutBitForBit(t *testing.T) {
	e := emptyEngine(16)
	if _, err := e.AddFile("a/one.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddFile("a/two.bin"); err != nil {
		t.Fatal(err)
	}
	reorg := e.Reorganize()

	w := NewWriter(reorg)
	pathIdx := w.pathIndices()
	encoded := w.encodePaths(pathIdx)

	decoded, err := ParseBytes(nil, encoded)
	if err != nil {
		t.Fatalf("ParseBytes of re-encoded paths: %v", err)
	}
	for i, c := range decoded.Paths {
		want := reorg.Paths()[i].Get()
		got := c.Get()
		if got.FullPath != want.FullPath || got.Name != want.Name ||
			got.Extension != want.Extension || got.IsFolder != want.IsFolder {
			t.Fatalf("path %d round-trip mismatch: got %+v want %+v", i, got, want)
		}
	}
}
