// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/saferwall/snarc/archive"
	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/packagedfs"
	"github.com/saferwall/snarc/searchfs"
	"github.com/saferwall/snarc/streamfs"
	"github.com/saferwall/snarc/table"
)

const defaultDevDirBuckets = 1024

func snapshot[T any](cells []*table.Cell[T]) []T {
	out := make([]T, len(cells))
	for i, c := range cells {
		out[i] = c.Get()
	}
	return out
}

func prettyPrint(v interface{}) string {
	buff, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("marshal error: %v", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buff, "", "\t"); err != nil {
		return string(buff)
	}
	return pretty.String()
}

// openDevDir builds an Archive from a developer table directory laid out
// as packaged/, stream/, and search/ subdirectories, mirroring the layout
// snarcdump's own --dev-dir mode expects.
func openDevDir(dir string) (*archive.Archive, error) {
	h := codec.NewPlaceholderHasher()

	streamTables, err := streamfs.ParseDirectory(filepath.Join(dir, "stream"))
	if err != nil {
		return nil, err
	}
	streamEngine := streamfs.New(streamTables, defaultDevDirBuckets)
	if err := streamEngine.Resolve(); err != nil {
		return nil, err
	}

	packagedTables, err := packagedfs.ParseDirectory(filepath.Join(dir, "packaged"))
	if err != nil {
		return nil, err
	}
	packagedEngine := packagedfs.New(packagedTables, defaultDevDirBuckets, h)
	if err := packagedEngine.Resolve(); err != nil {
		return nil, err
	}

	searchTables, err := searchfs.ParseDirectory(filepath.Join(dir, "search"))
	if err != nil {
		return nil, err
	}
	searchEngine := searchfs.New(searchTables, defaultDevDirBuckets, h)
	if err := searchEngine.Resolve(); err != nil {
		return nil, err
	}

	var regionLookup [14]archive.RegionLookupEntry
	return archive.New(packagedEngine, streamEngine, searchEngine, regionLookup, 0, 0, 0), nil
}
