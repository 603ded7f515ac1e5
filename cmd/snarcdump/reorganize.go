// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saferwall/snarc/archive"
)

func newReorganizeCmd() *cobra.Command {
	var devDir bool

	cmd := &cobra.Command{
		Use:   "reorganize <path> <out>",
		Short: "Round-trip an archive through resolve, reorganize, and write",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]

			var a *archive.Archive
			var err error
			if devDir {
				a, err = openDevDir(in)
			} else {
				a, err = archive.Open(in)
			}
			if err != nil {
				return fmt.Errorf("opening %s: %w", in, err)
			}
			defer a.Close()

			reorganized := a.Reorganize()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()

			if err := reorganized.WriteTables(f); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&devDir, "dev-dir", false, "path is a developer table directory rather than a packed archive")
	return cmd
}
