// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package archive

import (
	"bytes"
	"testing"

	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/packagedfs"
	"github.com/saferwall/snarc/searchfs"
	"github.com/saferwall/snarc/streamfs"
)

// buildEmptyArchive constructs the smallest possible Archive: three
// engines with no records, resolved and ready to write. It exercises the
// container/header wiring independent of any one sub-graph's own fixture
// complexity (each engine already has its own dedicated fixtures and
// tests in its package).
func buildEmptyArchive(t *testing.T) *Archive {
	t.Helper()
	h := codec.NewPlaceholderHasher()

	streamEngine := streamfs.New(&streamfs.Tables{}, 16)
	if err := streamEngine.Resolve(); err != nil {
		t.Fatalf("stream Resolve: %v", err)
	}

	packagedEngine := packagedfs.New(&packagedfs.Tables{}, 16, h)
	if err := packagedEngine.Resolve(); err != nil {
		t.Fatalf("packaged Resolve: %v", err)
	}

	searchEngine := searchfs.New(&searchfs.Tables{}, 16, h)
	if err := searchEngine.Resolve(); err != nil {
		t.Fatalf("search Resolve: %v", err)
	}

	var regionLookup [regionLookupCount]RegionLookupEntry
	for i := range regionLookup {
		regionLookup[i] = RegionLookupEntry{
			LocaleHash:  h.Hash("us_en"),
			RegionHash:  h.Hash("us"),
			RegionIndex: uint32(i % regionSlotCount),
		}
	}

	return New(packagedEngine, streamEngine, searchEngine, regionLookup, 1, 2, 3)
}

func TestWriteTablesThenOpenBytesRoundTrips(t *testing.T) {
	a := buildEmptyArchive(t)

	var buf bytes.Buffer
	if err := a.WriteTables(&buf); err != nil {
		t.Fatalf("WriteTables: %v", err)
	}

	reopened, err := OpenBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer reopened.Close()

	if got := reopened.VersionString(); got != "v1.2.3" {
		t.Fatalf("VersionString = %q, want v1.2.3", got)
	}
	if got := len(reopened.Packaged.Packages()); got != 0 {
		t.Fatalf("Packages = %d, want 0", got)
	}
	if got := reopened.packagedHeader.RegionLookup[0].RegionIndex; got != 0 {
		t.Fatalf("region lookup entry 0 RegionIndex = %d, want 0", got)
	}
}

func TestWriteTablesDisabledCompressionRoundTrips(t *testing.T) {
	a := buildEmptyArchive(t)
	a.opts.CompressionEnabled = false

	var buf bytes.Buffer
	if err := a.WriteTables(&buf); err != nil {
		t.Fatalf("WriteTables: %v", err)
	}

	reopened, err := OpenBytes(buf.Bytes(), WithCompressionDisabled())
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer reopened.Close()
}

// TestCompressedSectionSizeRoundsUpToEightBytes pins the container layout
// rule down: compressed_section_size = round_up(compressed_size, 8), and
// the user section's header starts exactly at that rounded boundary.
// Compression is disabled so the section's byte length is deterministic
// and lands off the 8-byte boundary.
func TestCompressedSectionSizeRoundsUpToEightBytes(t *testing.T) {
	a := buildEmptyArchive(t)
	a.opts.CompressionEnabled = false

	var buf bytes.Buffer
	if err := a.WriteTables(&buf); err != nil {
		t.Fatalf("WriteTables: %v", err)
	}
	data := buf.Bytes()

	container, err := parseContainerHeader(data)
	if err != nil {
		t.Fatalf("parseContainerHeader: %v", err)
	}
	th, err := parseTablesHeader(data[container.NonUserTablesPtr:])
	if err != nil {
		t.Fatalf("parseTablesHeader: %v", err)
	}
	if th.CompressedSize%8 == 0 {
		t.Fatalf("fixture compressed size %d is already 8-aligned; the rounding path is not exercised", th.CompressedSize)
	}
	if th.CompressedSectionSize != roundUp8(th.CompressedSize) {
		t.Fatalf("CompressedSectionSize = %d, want round_up(%d, 8) = %d",
			th.CompressedSectionSize, th.CompressedSize, roundUp8(th.CompressedSize))
	}

	wantUserPtr := container.NonUserTablesPtr + tablesHeaderSize + uint64(th.CompressedSectionSize)
	if container.UserTablesPtr != wantUserPtr {
		t.Fatalf("UserTablesPtr = %d, want next 8-byte boundary at %d", container.UserTablesPtr, wantUserPtr)
	}
	if _, err := parseTablesHeader(data[container.UserTablesPtr:]); err != nil {
		t.Fatalf("user tables header does not start at the rounded boundary: %v", err)
	}
}

func TestLocaleFromStringPreservesEuToUsBug(t *testing.T) {
	got, err := LocaleFromString("eu_en")
	if err != nil {
		t.Fatalf("LocaleFromString: %v", err)
	}
	if got != UsEnglish {
		t.Fatalf("LocaleFromString(eu_en) = %v, want UsEnglish (preserved upstream bug)", got)
	}
}
