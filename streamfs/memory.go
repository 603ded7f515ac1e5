// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"fmt"
)

// ParseMemory decodes a stream sub-graph from the single packed byte slice
// produced by Writer.WriteToMemory: folders, the flat path-key lookup
// (skipped here — the lookup is rebuilt from the paths table at resolve
// time), then paths, links and metadatas. None of the tables is
// self-describing inside the blob; every count comes from the archive
// orchestrator's stream header.
func ParseMemory(data []byte, folderCount, pathCount, linkCount, metadataCount int) (*Tables, error) {
	pos := 0
	take := func(name string, n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, fmt.Errorf("streamfs: %s runs past end of blob: %w", name, ErrFormat)
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	folders, err := take("folders", folderCount*folderRecordSize)
	if err != nil {
		return nil, err
	}
	if _, err := take("path lookup", pathCount*8); err != nil {
		return nil, err
	}
	paths, err := take("paths", pathCount*pathRecordSize)
	if err != nil {
		return nil, err
	}
	links, err := take("links", linkCount*linkRecordSize)
	if err != nil {
		return nil, err
	}
	metadatas, err := take("metadatas", metadataCount*metadataRecordSize)
	if err != nil {
		return nil, err
	}

	return ParseBytes(folders, paths, links, metadatas)
}
