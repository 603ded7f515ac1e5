// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package packagedfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// ParseDirectory reads the eight primary packaged tables, plus the patch
// overlay, from a developer table directory (one file per table).
func ParseDirectory(dir string) (*Tables, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("packagedfs: reading %s: %w", name, err)
		}
		return b, nil
	}

	names := []string{
		"packages.bin", "child_packages.bin", "groups.bin", "paths.bin",
		"links.bin", "infos.bin", "descriptors.bin", "metadatas.bin",
	}
	data := make([][]byte, len(names))
	for i, n := range names {
		b, err := read(n)
		if err != nil {
			return nil, err
		}
		data[i] = b
	}

	t, err := ParseBytes(data[0], data[1], data[2], data[3], data[4], data[5], data[6], data[7])
	if err != nil {
		return nil, err
	}

	overlay, err := os.ReadFile(filepath.Join(dir, "version_info.bin"))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("packagedfs: reading version_info.bin: %w", err)
	}
	if err := t.parsePatchOverlay(overlay); err != nil {
		return nil, err
	}
	return t, nil
}

// parsePatchOverlay decodes a version_info.bin blob: the 4-byte schema
// version triple, the patch count, every patch's fixed-size header, then
// every patch's variable-size body, each body's length derived from its
// header's file_count.
func (t *Tables) parsePatchOverlay(blob []byte) error {
	if len(blob) < 8 {
		return fmt.Errorf("packagedfs: version_info.bin shorter than its version triple and patch count: %w", ErrFormat)
	}
	t.parseVersionTriple(blob[0:4])
	n := int(binary.LittleEndian.Uint32(blob[4:8]))

	off := 8
	if off+n*patchHeaderRecordSize > len(blob) {
		return fmt.Errorf("packagedfs: patch headers run past end of version_info.bin: %w", ErrFormat)
	}
	headers := blob[off : off+n*patchHeaderRecordSize]
	off += n * patchHeaderRecordSize

	bodies := make([][]byte, n)
	for i := 0; i < n; i++ {
		r := headers[i*patchHeaderRecordSize:]
		fileCount := int(binary.LittleEndian.Uint32(r[8:12]))

		bodyLen := patchBodyBucketMapHeaderSize +
			patchVersionedFileBuckets*patchBodyBucketRecordSize +
			fileCount*patchBodyKeyRecordSize +
			fileCount*versionedFileRecordSize
		if off+bodyLen > len(blob) {
			return fmt.Errorf("packagedfs: patch %d body runs past end of version_info.bin: %w", i, ErrFormat)
		}
		bodies[i] = blob[off : off+bodyLen]
		off += bodyLen
	}
	return t.ParsePatches(headers, bodies)
}
