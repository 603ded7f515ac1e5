// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import "fmt"

// ParseMemory decodes a search sub-graph from the single packed byte slice
// produced by Writer.WriteToMemory: the flat folder lookup (skipped — both
// lookups are rebuilt from the tables at resolve time), folders, then the
// combined flat path lookup + sequential path links (one 8-byte key and
// one 4-byte index per entry, sized together by pathLinkCount), then
// paths. Every count comes from the archive orchestrator's search header.
func ParseMemory(data []byte, folderCount, pathLinkCount, pathCount int) (*Tables, error) {
	pos := 0
	take := func(name string, n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, fmt.Errorf("searchfs: %s runs past end of blob: %w", name, ErrFormat)
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	if _, err := take("folder lookup", folderCount*8); err != nil {
		return nil, err
	}
	folders, err := take("folders", folderCount*folderRecordSize)
	if err != nil {
		return nil, err
	}
	if _, err := take("path lookup and links", pathLinkCount*12); err != nil {
		return nil, err
	}
	paths, err := take("paths", pathCount*pathRecordSize)
	if err != nil {
		return nil, err
	}
	return ParseBytes(folders, paths)
}
