// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package streamfs

import (
	"encoding/binary"
	"fmt"

	"github.com/saferwall/snarc/hashkey"
	"github.com/saferwall/snarc/table"
)

// Tables holds the four raw, not-yet-resolved stream tables parsed either
// from a developer directory or from an in-memory archive section.
type Tables struct {
	Folders   []*table.Cell[StreamFolder]
	Paths     []*table.Cell[StreamPath]
	Links     []*table.Cell[StreamLink]
	Metadatas []*table.Cell[StreamMetadata]
}

// ParseBytes decodes the four stream tables from their concatenated,
// fixed-record-size byte slices, as they appear inside the archive's
// non-user section.
func ParseBytes(folders, paths, links, metadatas []byte) (*Tables, error) {
	nf, err := divisible(len(folders), folderRecordSize)
	if err != nil {
		return nil, err
	}
	np, err := divisible(len(paths), pathRecordSize)
	if err != nil {
		return nil, err
	}
	nl, err := divisible(len(links), linkRecordSize)
	if err != nil {
		return nil, err
	}
	nm, err := divisible(len(metadatas), metadataRecordSize)
	if err != nil {
		return nil, err
	}

	t := &Tables{
		Folders:   make([]*table.Cell[StreamFolder], nf),
		Paths:     make([]*table.Cell[StreamPath], np),
		Links:     make([]*table.Cell[StreamLink], nl),
		Metadatas: make([]*table.Cell[StreamMetadata], nm),
	}

	for i := 0; i < nf; i++ {
		r := folders[i*folderRecordSize:]
		key := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		count := binary.LittleEndian.Uint16(r[8:10])
		t.Folders[i] = table.NewCell(StreamFolder{
			Name:  key.Hash(),
			Paths: table.UnresolvedContiguousRef[StreamPath](key.Index(), key.Index()+uint32(count)),
		})
	}

	for i := 0; i < np; i++ {
		r := paths[i*pathRecordSize:]
		key := hashkey.HashKey(binary.LittleEndian.Uint64(r[0:8]))
		flag := LinkFlag(binary.LittleEndian.Uint32(r[8:12]))
		n, err := flag.LinkCount()
		if err != nil {
			return nil, fmt.Errorf("streamfs: path %d: %w", i, err)
		}
		t.Paths[i] = table.NewCell(StreamPath{
			FullPath:    key.Hash(),
			Links:       table.UnresolvedContiguousRef[StreamLink](key.Index(), key.Index()+uint32(n)),
			IsLocalized: flag == LinkFlagLocalized,
			IsRegional:  flag == LinkFlagRegional,
			flag:        flag,
		})
	}

	for i := 0; i < nl; i++ {
		r := links[i*linkRecordSize:]
		idx := binary.LittleEndian.Uint32(r[0:4])
		t.Links[i] = table.NewCell(StreamLink{
			Metadata: table.UnresolvedRef[StreamMetadata](idx),
		})
	}

	for i := 0; i < nm; i++ {
		r := metadatas[i*metadataRecordSize:]
		t.Metadatas[i] = table.NewCell(StreamMetadata{
			Size:   binary.LittleEndian.Uint64(r[0:8]),
			Offset: binary.LittleEndian.Uint64(r[8:16]),
		})
	}

	return t, nil
}

func divisible(n, size int) (int, error) {
	if n%size != 0 {
		return 0, fmt.Errorf("streamfs: table length %d not divisible by record size %d: %w", n, size, ErrFormat)
	}
	return n / size, nil
}
