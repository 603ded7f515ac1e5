// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"

	"github.com/saferwall/snarc/archive"
	"github.com/saferwall/snarc/codec"
	"github.com/saferwall/snarc/packagedfs"
	"github.com/saferwall/snarc/searchfs"
	"github.com/saferwall/snarc/streamfs"
	"github.com/saferwall/snarc/table"
)

// snapshot copies every cell's current value out into a plain slice
// suitable for JSON marshaling, since Cell itself carries no exported
// fields (borrow state must never be serialized).
func snapshot[T any](cells []*table.Cell[T]) []T {
	out := make([]T, len(cells))
	for i, c := range cells {
		out[i] = c.Get()
	}
	return out
}

// defaultDevDirBuckets is the bucket count used when building engines out
// of a developer table directory, which carries no header to read a real
// bucket count from.
const defaultDevDirBuckets = 1024

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

func newOpenCmd() *cobra.Command {
	var (
		wantSearch   bool
		wantStream   bool
		wantPackaged bool
		wantAll      bool
		devDir       bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open an archive or developer table directory and dump tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var opts []archive.Option
			if quiet {
				opts = append(opts, archive.WithQuietLogger(log.NewStdLogger(os.Stderr)))
			}

			var a *archive.Archive
			var err error
			if devDir {
				a, err = openDevDir(path, opts...)
			} else {
				a, err = archive.Open(path, opts...)
			}
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer a.Close()

			if wantAll || wantPackaged {
				fmt.Println(prettyPrint(snapshot(a.Packaged.Packages())))
				fmt.Println(prettyPrint(snapshot(a.Packaged.Groups())))
			}
			if wantAll || wantStream {
				fmt.Println(prettyPrint(snapshot(a.Stream.Folders())))
				fmt.Println(prettyPrint(snapshot(a.Stream.Paths())))
			}
			if wantAll || wantSearch {
				fmt.Println(prettyPrint(snapshot(a.Search.Folders())))
				fmt.Println(prettyPrint(snapshot(a.Search.Paths())))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wantSearch, "search", false, "dump the search sub-graph")
	cmd.Flags().BoolVar(&wantStream, "stream", false, "dump the stream sub-graph")
	cmd.Flags().BoolVar(&wantPackaged, "packaged", false, "dump the packaged sub-graph")
	cmd.Flags().BoolVar(&wantAll, "all", false, "dump every sub-graph")
	cmd.Flags().BoolVar(&devDir, "dev-dir", false, "path is a developer table directory rather than a packed archive")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress non-error log output")
	return cmd
}

// openDevDir builds an Archive from a developer table directory laid out
// as packaged/, stream/, and search/ subdirectories, one per engine,
// each holding that engine's fixed-record-size table files.
func openDevDir(dir string, opts ...archive.Option) (*archive.Archive, error) {
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
	return archive.New(packagedEngine, streamEngine, searchEngine, regionLookup, 0, 0, 0, opts...), nil
}
