// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// moduleVersion is the schema-independent version of this tool itself, as
// distinct from an individual archive's embedded (major, minor, patch)
// triple reported by Archive.VersionString.
const moduleVersion = "0.1.0"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "snarcdump",
		Short: "A game archive manifest dumper",
		Long:  "Opens a packaged/stream/search archive or developer table directory and dumps its tables",
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Long:  "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snarcdump %s\n", moduleVersion)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newOpenCmd())
	rootCmd.AddCommand(newReorganizeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
