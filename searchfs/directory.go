// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// ParseDirectory reads the two search tables from a developer table
// directory.
func ParseDirectory(dir string) (*Tables, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("searchfs: reading %s: %w", name, err)
		}
		return b, nil
	}
	folders, err := read("search_folders.bin")
	if err != nil {
		return nil, err
	}
	paths, err := read("search_paths.bin")
	if err != nil {
		return nil, err
	}
	return ParseBytes(folders, paths)
}
