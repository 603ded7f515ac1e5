// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/saferwall/snarc/hashkey"
)

func buildSingleFolderArchive(flag LinkFlag, linkCount int) (folders, paths, links, metadatas []byte) {
	pathKey := hashkey.New(0xABCDEF0123, 0)
	folderKey := hashkey.New(0x1122334455, 0)

	folders = make([]byte, folderRecordSize)
	binary.LittleEndian.PutUint64(folders[0:8], folderKey.Uint64())
	binary.LittleEndian.PutUint16(folders[8:10], 1)

	paths = make([]byte, pathRecordSize)
	binary.LittleEndian.PutUint64(paths[0:8], pathKey.Uint64())
	binary.LittleEndian.PutUint32(paths[8:12], uint32(flag))

	links = make([]byte, linkCount*linkRecordSize)
	for i := 0; i < linkCount; i++ {
		binary.LittleEndian.PutUint32(links[i*linkRecordSize:], uint32(i))
	}

	metadatas = make([]byte, linkCount*metadataRecordSize)
	for i := 0; i < linkCount; i++ {
		r := metadatas[i*metadataRecordSize:]
		binary.LittleEndian.PutUint64(r[0:8], uint64(100+i))
		binary.LittleEndian.PutUint64(r[8:16], uint64(1000+i))
	}
	return
}

func TestLinkCardinality(t *testing.T) {
	cases := []struct {
		flag  LinkFlag
		count int
	}{
		{LinkFlagNormal, 1},
		{LinkFlagLocalized, 14},
		{LinkFlagRegional, 5},
	}
	for _, c := range cases {
		folders, paths, links, metadatas := buildSingleFolderArchive(c.flag, c.count)
		tables, err := ParseBytes(folders, paths, links, metadatas)
		if err != nil {
			t.Fatalf("flag %d: parse: %v", c.flag, err)
		}
		eng := New(tables, 64)
		if err := eng.Resolve(); err != nil {
			t.Fatalf("flag %d: resolve: %v", c.flag, err)
		}
		pv := tables.Paths[0].Get()
		if int(pv.Links.Len()) != c.count {
			t.Fatalf("flag %d: got %d links, want %d", c.flag, pv.Links.Len(), c.count)
		}
	}
}

func TestInvalidLinkFlag(t *testing.T) {
	folders, paths, links, metadatas := buildSingleFolderArchive(3, 1)
	if _, err := ParseBytes(folders, paths, links, metadatas); err == nil {
		t.Fatal("expected ErrFormat for flag value 3")
	}
}

// TestRegionalPathRoundTripsByteForByte drives a flag-2 (regional, 5-link)
// stream path through the full parse -> resolve -> reorganize -> write ->
// reparse cycle and demands the second emission be byte-identical to the
// first.
func TestRegionalPathRoundTripsByteForByte(t *testing.T) {
	folders, paths, links, metadatas := buildSingleFolderArchive(LinkFlagRegional, 5)
	tables, err := ParseBytes(folders, paths, links, metadatas)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	eng := New(tables, 64)
	if err := eng.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	blob := NewWriter(eng.Reorganize()).WriteToMemory()

	reparsed, err := ParseMemory(blob, 1, 1, 5, 5)
	if err != nil {
		t.Fatalf("ParseMemory: %v", err)
	}
	eng2 := New(reparsed, 64)
	if err := eng2.Resolve(); err != nil {
		t.Fatalf("Resolve after reparse: %v", err)
	}

	pv := eng2.Paths()[0].Get()
	if pv.Flag() != LinkFlagRegional || pv.Links.Len() != 5 {
		t.Fatalf("flag/link count lost: flag=%d links=%d", pv.Flag(), pv.Links.Len())
	}
	if !pv.IsRegional || pv.IsLocalized {
		t.Fatal("regional/localized flags must stay mutually exclusive across a round trip")
	}

	blob2 := NewWriter(eng2.Reorganize()).WriteToMemory()
	if !bytes.Equal(blob, blob2) {
		t.Fatal("regional stream path did not round-trip byte-for-byte")
	}
}

func TestPathLookupRoundTrip(t *testing.T) {
	folders, paths, links, metadatas := buildSingleFolderArchive(LinkFlagNormal, 1)
	tables, err := ParseBytes(folders, paths, links, metadatas)
	if err != nil {
		t.Fatal(err)
	}
	eng := New(tables, 64)
	if err := eng.Resolve(); err != nil {
		t.Fatal(err)
	}
	got, err := eng.GetPath(0xABCDEF0123)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Get().FullPath != 0xABCDEF0123 {
		t.Fatalf("wrong path returned")
	}

	reorg := eng.Reorganize()
	if len(reorg.Folders()) != 1 || len(reorg.Paths()) != 1 {
		t.Fatalf("reorganize changed table sizes unexpectedly")
	}
}
