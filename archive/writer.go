// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/saferwall/snarc/packagedfs"
	"github.com/saferwall/snarc/searchfs"
	"github.com/saferwall/snarc/streamfs"
)

// WriteTables serializes the archive's three engines back into the
// two-section compressed container: a non-user section
// holding the packaged and stream sub-graphs interleaved, and a user
// section holding the search sub-graph, each independently zstd-framed
// behind an ArchiveTablesHeader.
func (a *Archive) WriteTables(w io.Writer) error {
	streamHeader := StreamFsHeader{
		FolderCount:   uint32(len(a.Stream.Folders())),
		PathCount:     uint32(len(a.Stream.Paths())),
		LinkCount:     uint32(len(a.Stream.Links())),
		MetadataCount: uint32(len(a.Stream.Metadatas())),
	}
	packagedHeader := a.packagedHeader
	packagedHeader.PackageCount = uint32(len(a.Packaged.Packages()))
	packagedHeader.ChildPackageCount = uint32(len(a.Packaged.ChildPackages()))
	packagedHeader.GroupCount = uint32(len(a.Packaged.Groups()))
	packagedHeader.PathCount = uint32(len(a.Packaged.Paths()))
	packagedHeader.LinkCount = uint32(len(a.Packaged.Links()))
	packagedHeader.InfoCount = uint32(len(a.Packaged.Infos()))
	packagedHeader.DescriptorCount = uint32(len(a.Packaged.Descriptors()))
	packagedHeader.MetadataCount = uint32(len(a.Packaged.Metadatas()))
	packagedHeader.BucketCount = a.Packaged.BucketCount()
	searchHeader := SearchFsHeader{
		FolderCount:   uint32(len(a.Search.Folders())),
		PathLinkCount: uint32(len(a.Search.Paths())),
		PathCount:     uint32(len(a.Search.Paths())),
	}

	streamBody := streamfs.NewWriter(a.Stream).WriteToMemory()
	packagedBody, results := packagedfs.NewWriter(a.Packaged).WriteToMemory()
	searchBody := searchfs.NewWriter(a.Search).WriteToMemory()
	a.opts.logger.Debugf("packaged partitions: %d metadata-groups, %d info-groups, %d version-groups",
		results.MetadataGroupLen, results.InfoGroupLen, results.VersionGroupLen)

	nonUser := buildNonUserBlob(packagedHeader, streamHeader, streamBody, packagedBody)
	user := buildUserBlob(searchHeader, searchBody)

	nonUserSection, err := a.compressSection(nonUser)
	if err != nil {
		return fmt.Errorf("archive: compressing non-user section: %w", err)
	}
	userSection, err := a.compressSection(user)
	if err != nil {
		return fmt.Errorf("archive: compressing user section: %w", err)
	}

	container := ContainerHeader{
		Magic:               ContainerMagic,
		StreamDataStart:     a.container.StreamDataStart,
		FileDataStart:       a.container.FileDataStart,
		SharedFileDataStart: a.container.SharedFileDataStart,
		NonUserTablesPtr:    containerHeaderSize,
		UserTablesPtr:       containerHeaderSize + uint64(len(nonUserSection)),
	}

	if _, err := w.Write(container.encode()); err != nil {
		return err
	}
	if _, err := w.Write(nonUserSection); err != nil {
		return err
	}
	if _, err := w.Write(userSection); err != nil {
		return err
	}
	a.container = container
	a.packagedHeader = packagedHeader
	a.streamHeader = streamHeader
	a.searchHeader = searchHeader
	return nil
}

// buildNonUserBlob assembles the decompressed non-user section: a 4-byte
// total-length prefix, the packaged and stream headers, the fixed zero
// pad, then the stream body and the packaged body in that order.
func buildNonUserBlob(packagedHeader PackagedFsHeader, streamHeader StreamFsHeader, streamBody, packagedBody []byte) []byte {
	body := make([]byte, 0, packagedFsHeaderSize+streamFsHeaderSize+nonUserZeroPadSize+len(streamBody)+len(packagedBody))
	body = append(body, packagedHeader.encode()...)
	body = append(body, streamHeader.encode()...)
	body = append(body, make([]byte, nonUserZeroPadSize)...)
	body = append(body, streamBody...)
	body = append(body, packagedBody...)

	out := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

// buildUserBlob assembles the decompressed user section: an 8-byte
// total-length prefix, the search header, the fixed zero pad, then the
// search body.
func buildUserBlob(searchHeader SearchFsHeader, searchBody []byte) []byte {
	body := make([]byte, 0, searchFsHeaderSize+userZeroPadSize+len(searchBody))
	body = append(body, searchHeader.encode()...)
	body = append(body, make([]byte, userZeroPadSize)...)
	body = append(body, searchBody...)

	out := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(out, uint64(len(body)))
	out = append(out, body...)
	return out
}

// compressSection wraps a decompressed table blob in its ArchiveTablesHeader
// and zero-pads the compressed payload up to the next 8-byte boundary, the
// only way to keep the container genuinely self-consistent for the reader
// side's offset + compressed_section_size seek.
func (a *Archive) compressSection(blob []byte) ([]byte, error) {
	compressed := blob
	if a.opts.CompressionEnabled {
		c, err := a.opts.Compressor.Compress(blob)
		if err != nil {
			return nil, err
		}
		compressed = c
	}

	sectionSize := roundUp8(uint32(len(compressed)))
	th := ArchiveTablesHeader{
		Magic:                 TablesHeaderMagic,
		DecompressedSize:      uint32(len(blob)),
		CompressedSize:        uint32(len(compressed)),
		CompressedSectionSize: sectionSize,
	}

	var out bytes.Buffer
	out.Write(th.encode())
	out.Write(compressed)
	out.Write(make([]byte, int(sectionSize)-len(compressed)))
	return out.Bytes(), nil
}
