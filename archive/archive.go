// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package archive

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/mod/semver"

	"github.com/saferwall/snarc/packagedfs"
	"github.com/saferwall/snarc/searchfs"
	"github.com/saferwall/snarc/streamfs"
)

// Archive is an open game archive: the three resolved sub-filesystem
// engines plus the container bookkeeping (outer header, per-section
// headers, region lookup) needed to write it back out.
type Archive struct {
	Packaged *packagedfs.Engine
	Stream   *streamfs.Engine
	Search   *searchfs.Engine

	container      ContainerHeader
	packagedHeader PackagedFsHeader
	streamHeader   StreamFsHeader
	searchHeader   SearchFsHeader

	opts *Options

	f    *os.File
	data mmap.MMap
}

// Reorganize rebuilds all three sub-graphs' backing tables in resolved
// traversal order, mirroring what each Engine's own Reorganize does in
// isolation but keeping the three in lockstep behind one call so a
// caller never reorganizes one sub-graph without the others.
func (a *Archive) Reorganize() *Archive {
	reorganized := *a
	reorganized.Packaged = a.Packaged.Reorganize()
	reorganized.Stream = a.Stream.Reorganize()
	reorganized.Search = a.Search.Reorganize()
	return &reorganized
}

// Close releases the memory-mapped file backing an Archive opened with
// Open. It is a no-op for an Archive built in memory via New.
func (a *Archive) Close() error {
	if a.data != nil {
		_ = a.data.Unmap()
	}
	if a.f != nil {
		return a.f.Close()
	}
	return nil
}

// inMemoryLookupBuckets sizes the stream and search engines' in-memory
// hash lookups. Neither sub-graph carries any bucket structure on the
// wire (their lookups are flat, headerless key runs); a single bucket
// makes BucketMap iterate in plain ascending-hash order, the same order
// the flat lookups are written in.
const inMemoryLookupBuckets = 1

// streamBodyLen returns the exact byte length streamfs.Writer.WriteToMemory
// produces for the given header's counts: folders, the flat path-key
// lookup, paths, links, metadatas. The non-user section carries no
// explicit boundary between the stream and packaged bodies, so the
// boundary must be derived the same way on both the read and write side.
func streamBodyLen(h StreamFsHeader) int {
	return int(h.FolderCount)*12 + int(h.PathCount)*8 +
		int(h.PathCount)*12 + int(h.LinkCount)*4 + int(h.MetadataCount)*16
}

// searchBodyLen returns the exact byte length searchfs.Writer.WriteToMemory
// produces for the given header's counts: the flat folder lookup, folders,
// the combined flat path lookup + path links, then paths.
func searchBodyLen(h SearchFsHeader) int {
	return int(h.FolderCount)*8 + int(h.FolderCount)*32 +
		int(h.PathLinkCount)*12 + int(h.PathCount)*32
}

// Open memory-maps path and parses an archive's container header, table
// headers and both compressed sections.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: mmap %s: %w", path, err)
	}

	a, err := parse(data, opts...)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	a.f = f
	a.data = data
	return a, nil
}

// OpenBytes parses an archive already resident in memory, skipping the
// mmap step; used by tests and by callers that already hold the bytes.
func OpenBytes(data []byte, opts ...Option) (*Archive, error) {
	return parse(data, opts...)
}

func parse(data []byte, opts ...Option) (*Archive, error) {
	o := newOptions(opts...)

	container, err := parseContainerHeader(data)
	if err != nil {
		return nil, err
	}
	if int(container.NonUserTablesPtr) >= len(data) || int(container.UserTablesPtr) >= len(data) {
		return nil, fmt.Errorf("archive: table pointer out of range: %w", ErrFormat)
	}

	nonUser, err := decompressSection(data[container.NonUserTablesPtr:], o)
	if err != nil {
		return nil, fmt.Errorf("archive: non-user section: %w", err)
	}
	user, err := decompressSection(data[container.UserTablesPtr:], o)
	if err != nil {
		return nil, fmt.Errorf("archive: user section: %w", err)
	}

	if len(nonUser) < 4 {
		return nil, fmt.Errorf("archive: non-user blob truncated: %w", ErrFormat)
	}
	pos := 4 // total-length prefix, informational only
	packagedHeader, err := parsePackagedFsHeader(nonUser[pos:])
	if err != nil {
		return nil, err
	}
	pos += packagedFsHeaderSize
	streamHeader, err := parseStreamFsHeader(nonUser[pos:])
	if err != nil {
		return nil, err
	}
	pos += streamFsHeaderSize
	pos += nonUserZeroPadSize

	sbLen := streamBodyLen(streamHeader)
	if pos+sbLen > len(nonUser) {
		return nil, fmt.Errorf("archive: stream body runs past end of non-user section: %w", ErrFormat)
	}
	streamBody := nonUser[pos : pos+sbLen]
	pos += sbLen
	packagedBody := nonUser[pos:]

	streamTables, err := streamfs.ParseMemory(streamBody, int(streamHeader.FolderCount), int(streamHeader.PathCount), int(streamHeader.LinkCount), int(streamHeader.MetadataCount))
	if err != nil {
		return nil, fmt.Errorf("archive: stream tables: %w", err)
	}
	packagedTables, err := packagedfs.ParseMemory(packagedBody, packagedfs.MemoryTableCounts{
		Packages:      int(packagedHeader.PackageCount),
		ChildPackages: int(packagedHeader.ChildPackageCount),
		Groups:        int(packagedHeader.GroupCount),
		Paths:         int(packagedHeader.PathCount),
		Links:         int(packagedHeader.LinkCount),
		Infos:         int(packagedHeader.InfoCount),
		Descriptors:   int(packagedHeader.DescriptorCount),
		Metadatas:     int(packagedHeader.MetadataCount),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: packaged tables: %w", err)
	}

	if len(user) < 8 {
		return nil, fmt.Errorf("archive: user blob truncated: %w", ErrFormat)
	}
	upos := 8 // total-length prefix (8 bytes in the user section)
	searchHeader, err := parseSearchFsHeader(user[upos:])
	if err != nil {
		return nil, err
	}
	upos += searchFsHeaderSize
	upos += userZeroPadSize

	sbody := user[upos:]
	if len(sbody) < searchBodyLen(searchHeader) {
		return nil, fmt.Errorf("archive: search body runs past end of user section: %w", ErrFormat)
	}
	searchTables, err := searchfs.ParseMemory(sbody, int(searchHeader.FolderCount), int(searchHeader.PathLinkCount), int(searchHeader.PathCount))
	if err != nil {
		return nil, fmt.Errorf("archive: search tables: %w", err)
	}

	streamEngine := streamfs.New(streamTables, inMemoryLookupBuckets)
	if err := streamEngine.Resolve(); err != nil {
		return nil, fmt.Errorf("archive: resolving stream engine: %w", err)
	}
	packagedEngine := packagedfs.New(packagedTables, packagedHeader.BucketCount, o.Hasher)
	if err := packagedEngine.Resolve(); err != nil {
		return nil, fmt.Errorf("archive: resolving packaged engine: %w", err)
	}
	searchEngine := searchfs.New(searchTables, inMemoryLookupBuckets, o.Hasher)
	if err := searchEngine.Resolve(); err != nil {
		return nil, fmt.Errorf("archive: resolving search engine: %w", err)
	}

	o.logger.Debugf("opened archive: %d packages, %d stream paths, %d search paths",
		len(packagedEngine.Packages()), len(streamEngine.Paths()), len(searchEngine.Paths()))

	return &Archive{
		Packaged:       packagedEngine,
		Stream:         streamEngine,
		Search:         searchEngine,
		container:      container,
		packagedHeader: packagedHeader,
		streamHeader:   streamHeader,
		searchHeader:   searchHeader,
		opts:           o,
	}, nil
}

// decompressSection reads one ArchiveTablesHeader and the zstd-compressed
// bytes that follow it, returning the decompressed table blob. When
// CompressionEnabled is false the bytes are treated as already raw,
// mirroring how WriteTables skips compression under the same option.
func decompressSection(b []byte, o *Options) ([]byte, error) {
	th, err := parseTablesHeader(b)
	if err != nil {
		return nil, err
	}
	start := tablesHeaderSize
	end := start + int(th.CompressedSize)
	if end > len(b) {
		return nil, fmt.Errorf("archive: compressed section runs past end of data: %w", ErrFormat)
	}
	compressed := b[start:end]

	if !o.CompressionEnabled {
		return compressed, nil
	}
	return o.Decompressor.DecompressWithSize(compressed, int(th.DecompressedSize))
}

// New wraps three already-resolved engines as an in-memory Archive, ready
// for Reorganize/WriteTables. regionLookup is carried verbatim into the
// written PackagedFsHeader.
func New(packaged *packagedfs.Engine, stream *streamfs.Engine, search *searchfs.Engine, regionLookup [regionLookupCount]RegionLookupEntry, versionMajor, versionMinor, versionPatch uint16, opts ...Option) *Archive {
	return &Archive{
		Packaged: packaged,
		Stream:   stream,
		Search:   search,
		container: ContainerHeader{
			Magic: ContainerMagic,
		},
		packagedHeader: PackagedFsHeader{
			// Preserved bug: the in-memory header value itself carries
			// zero counts even though the real wire counts are hardcoded
			// to 14/5 on write.
			LocaleCount:  0,
			RegionCount:  0,
			RegionLookup: regionLookup,
			VersionMajor: versionMajor,
			VersionMinor: versionMinor,
			VersionPatch: versionPatch,
		},
		opts: newOptions(opts...),
	}
}

// VersionString renders the archive's embedded (major, minor, patch)
// schema triple in canonical semver form.
func (a *Archive) VersionString() string {
	v := fmt.Sprintf("v%d.%d.%d", a.packagedHeader.VersionMajor, a.packagedHeader.VersionMinor, a.packagedHeader.VersionPatch)
	if !semver.IsValid(v) {
		return v
	}
	return semver.Canonical(v)
}

