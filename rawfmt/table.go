// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawfmt

import "fmt"

// Packages decodes every RawPackage in a concatenated package table slice,
// typically a window straight out of an mmap.MMap.
func Packages(b []byte) ([]RawPackage, error) {
	n, err := divisible("packages", len(b), packageRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawPackage, n)
	for i := range out {
		out[i], _ = DecodeRawPackage(b[i*packageRecordSize:])
	}
	return out, nil
}

// Groups decodes every RawGroup in a concatenated group table slice.
func Groups(b []byte) ([]RawGroup, error) {
	n, err := divisible("groups", len(b), groupRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawGroup, n)
	for i := range out {
		out[i], _ = DecodeRawGroup(b[i*groupRecordSize:])
	}
	return out, nil
}

// Paths decodes every RawPath in a concatenated packaged path table slice.
func Paths(b []byte) ([]RawPath, error) {
	n, err := divisible("paths", len(b), pathRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawPath, n)
	for i := range out {
		out[i], _ = DecodeRawPath(b[i*pathRecordSize:])
	}
	return out, nil
}

// Links decodes every RawLink in a concatenated link table slice.
func Links(b []byte) ([]RawLink, error) {
	n, err := divisible("links", len(b), linkRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawLink, n)
	for i := range out {
		out[i], _ = DecodeRawLink(b[i*linkRecordSize:])
	}
	return out, nil
}

// Infos decodes every RawInfo in a concatenated info table slice.
func Infos(b []byte) ([]RawInfo, error) {
	n, err := divisible("infos", len(b), infoRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawInfo, n)
	for i := range out {
		out[i], _ = DecodeRawInfo(b[i*infoRecordSize:])
	}
	return out, nil
}

// Descriptors decodes every RawDescriptor in a concatenated descriptor
// table slice.
func Descriptors(b []byte) ([]RawDescriptor, error) {
	n, err := divisible("descriptors", len(b), descriptorRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawDescriptor, n)
	for i := range out {
		out[i], _ = DecodeRawDescriptor(b[i*descriptorRecordSize:])
	}
	return out, nil
}

// Metadatas decodes every RawMetadata in a concatenated metadata table
// slice.
func Metadatas(b []byte) ([]RawMetadata, error) {
	n, err := divisible("metadatas", len(b), metadataRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawMetadata, n)
	for i := range out {
		out[i], _ = DecodeRawMetadata(b[i*metadataRecordSize:])
	}
	return out, nil
}

// SearchFolders decodes every RawSearchFolder in a concatenated search
// folder table slice.
func SearchFolders(b []byte) ([]RawSearchFolder, error) {
	n, err := divisible("search folders", len(b), searchFolderRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawSearchFolder, n)
	for i := range out {
		out[i], _ = DecodeRawSearchFolder(b[i*searchFolderRecordSize:])
	}
	return out, nil
}

// SearchPaths decodes every RawSearchPath in a concatenated search path
// table slice.
func SearchPaths(b []byte) ([]RawSearchPath, error) {
	n, err := divisible("search paths", len(b), searchPathRecordSize)
	if err != nil {
		return nil, err
	}
	out := make([]RawSearchPath, n)
	for i := range out {
		out[i], _ = DecodeRawSearchPath(b[i*searchPathRecordSize:])
	}
	return out, nil
}

func divisible(name string, n, size int) (int, error) {
	if n%size != 0 {
		return 0, fmt.Errorf("rawfmt: %s length %d not divisible by record size %d: %w", name, n, size, ErrTruncated)
	}
	return n / size, nil
}
