// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/saferwall/snarc/archive"
)

type config struct {
	wantPackaged bool
	wantStream   bool
	wantSearch   bool
	devDir       bool
}

func main() {
	openCmd := flag.NewFlagSet("open", flag.ExitOnError)
	openPackaged := openCmd.Bool("packaged", false, "Dump the packaged sub-graph")
	openStream := openCmd.Bool("stream", false, "Dump the stream sub-graph")
	openSearch := openCmd.Bool("search", false, "Dump the search sub-graph")
	openDevDirFlag := openCmd.Bool("dev-dir", false, "Path is a developer table directory")

	verCmd := flag.NewFlagSet("version", flag.ExitOnError)

	if len(os.Args) < 2 {
		showHelp()
	}

	switch os.Args[1] {

	case "open":
		if len(os.Args) < 3 {
			showHelp()
		}
		openCmd.Parse(os.Args[3:])

		cfg := config{
			wantPackaged: *openPackaged,
			wantStream:   *openStream,
			wantSearch:   *openSearch,
			devDir:       *openDevDirFlag,
		}
		dump(os.Args[2], cfg)

	case "version":
		verCmd.Parse(os.Args[2:])
		fmt.Println("You are using version 0.1.0")
	default:
		showHelp()
	}
}

func dump(path string, cfg config) {
	var a *archive.Archive
	var err error
	if cfg.devDir {
		a, err = openDevDir(path)
	} else {
		a, err = archive.Open(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer a.Close()

	all := !cfg.wantPackaged && !cfg.wantStream && !cfg.wantSearch
	if all || cfg.wantPackaged {
		fmt.Println(prettyPrint(snapshot(a.Packaged.Packages())))
		fmt.Println(prettyPrint(snapshot(a.Packaged.Groups())))
	}
	if all || cfg.wantStream {
		fmt.Println(prettyPrint(snapshot(a.Stream.Folders())))
		fmt.Println(prettyPrint(snapshot(a.Stream.Paths())))
	}
	if all || cfg.wantSearch {
		fmt.Println(prettyPrint(snapshot(a.Search.Folders())))
		fmt.Println(prettyPrint(snapshot(a.Search.Paths())))
	}
}

func showHelp() {
	fmt.Print(
		`
╔═╗╔═╗  ┌─┐┬─┐┌─┐┬ ┬┬┬  ┬┌─┐
╠═╝║╣   ├─┤├┬┘│  ├─┤│└┐┌┘├┤
╩  ╚═╝  ┴ ┴┴└─└─┘┴ ┴┴ └┘ └─┘

	A game archive manifest dumper.
	Brought to you by Saferwall (c) 2018 MIT
`)
	fmt.Println("\nAvailable sub-commands 'open' or 'version' subcommands")
	os.Exit(1)
}
