// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// ParseDirectory reads the four stream tables from a developer table
// directory (one file per table).
func ParseDirectory(dir string) (*Tables, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("streamfs: reading %s: %w", name, err)
		}
		return b, nil
	}

	folders, err := read("stream_folders.bin")
	if err != nil {
		return nil, err
	}
	paths, err := read("stream_paths.bin")
	if err != nil {
		return nil, err
	}
	links, err := read("stream_links.bin")
	if err != nil {
		return nil, err
	}
	metadatas, err := read("stream_metadatas.bin")
	if err != nil {
		return nil, err
	}

	return ParseBytes(folders, paths, links, metadatas)
}
