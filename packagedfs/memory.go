// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"encoding/binary"
	"fmt"
)

// lookupByteLen returns the byte length of a BucketMap-shaped lookup
// (8-byte header + 8 bytes per bucket + one packed HashKey per entry),
// reading its self-describing header at the front of b.
func lookupByteLen(name string, b []byte) (int, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("packagedfs: %s lookup header truncated: %w", name, ErrFormat)
	}
	count := int(binary.LittleEndian.Uint32(b[0:4]))
	bucketCount := int(binary.LittleEndian.Uint32(b[4:8]))
	n := 8 + bucketCount*8 + count*8
	if n > len(b) {
		return 0, fmt.Errorf("packagedfs: %s lookup runs past end of blob: %w", name, ErrFormat)
	}
	return n, nil
}

// MemoryTableCounts carries the per-table record counts the archive
// orchestrator already knows from its own header bookkeeping; unlike the
// file lookup (which carries its own count + bucket count), the flat
// package lookup and the eight primary tables have no self-describing
// length inside the
// packed blob WriteToMemory produces, so ParseMemory needs them supplied.
type MemoryTableCounts struct {
	Packages      int
	ChildPackages int
	Groups        int
	Paths         int
	Links         int
	Infos         int
	Descriptors   int
	Metadatas     int
}

// ParseMemory decodes a packaged sub-graph from the single packed byte
// slice produced by Writer.WriteToMemory: file lookup, paths, links,
// package lookup, packages, groups, child-packages, infos, descriptors,
// metadatas, then the patch overlay (version triple, patch count,
// headers, bodies).
func ParseMemory(data []byte, counts MemoryTableCounts) (*Tables, error) {
	pos := 0

	n, err := lookupByteLen("file", data[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	take := func(name string, recordCount, recordSize int) ([]byte, error) {
		n := recordCount * recordSize
		if pos+n > len(data) {
			return nil, fmt.Errorf("packagedfs: %s table runs past end of blob: %w", name, ErrFormat)
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	paths, err := take("paths", counts.Paths, pathRecordSize)
	if err != nil {
		return nil, err
	}
	links, err := take("links", counts.Links, linkRecordSize)
	if err != nil {
		return nil, err
	}

	// The package lookup is a flat, headerless run of one HashKey per
	// package; skipped here, rebuilt by queries as needed.
	if _, err := take("package lookup", counts.Packages, 8); err != nil {
		return nil, err
	}

	packages, err := take("packages", counts.Packages, packageRecordSize)
	if err != nil {
		return nil, err
	}
	groups, err := take("groups", counts.Groups, groupRecordSize)
	if err != nil {
		return nil, err
	}
	childPackages, err := take("child_packages", counts.ChildPackages, childPackageRecordSize)
	if err != nil {
		return nil, err
	}
	infos, err := take("infos", counts.Infos, infoRecordSize)
	if err != nil {
		return nil, err
	}
	descriptors, err := take("descriptors", counts.Descriptors, descriptorRecordSize)
	if err != nil {
		return nil, err
	}
	metadatas, err := take("metadatas", counts.Metadatas, metadataRecordSize)
	if err != nil {
		return nil, err
	}

	t, err := ParseBytes(packages, childPackages, groups, paths, links, infos, descriptors, metadatas)
	if err != nil {
		return nil, err
	}

	if pos+8 > len(data) {
		return nil, fmt.Errorf("packagedfs: missing version triple and patch count: %w", ErrFormat)
	}
	t.parseVersionTriple(data[pos : pos+4])
	pos += 4
	patchCount := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if patchCount == 0 {
		return t, nil
	}

	headers, err := take("patch headers", patchCount, patchHeaderRecordSize)
	if err != nil {
		return nil, err
	}

	bodies := make([][]byte, patchCount)
	for p := 0; p < patchCount; p++ {
		fileCount := int(binary.LittleEndian.Uint32(headers[p*patchHeaderRecordSize+8 : p*patchHeaderRecordSize+12]))
		bodyLen := patchBodyBucketMapHeaderSize +
			patchVersionedFileBuckets*patchBodyBucketRecordSize +
			fileCount*patchBodyKeyRecordSize +
			fileCount*versionedFileRecordSize
		body, err := take(fmt.Sprintf("patch %d body", p), 1, bodyLen)
		if err != nil {
			return nil, err
		}
		bodies[p] = body
	}

	if err := t.ParsePatches(headers, bodies); err != nil {
		return nil, err
	}
	return t, nil
}
