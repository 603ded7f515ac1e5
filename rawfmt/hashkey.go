// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawfmt

import "encoding/binary"

// RawHashKey splits the same 8 bytes as hashkey.HashKey differently: two
// little-endian u32 fields (hash, len_and_index) rather than one packed
// u64. This matches the upstream split exactly and is not a bug — the
// low byte of len_and_index carries the top byte (bits 32..39) of the
// 40-bit hash, its upper 24 bits are the index, same sentinel (0x00FFFFFF)
// as HashKey.
type RawHashKey struct {
	Hash        uint32
	LenAndIndex uint32
}

// DecodeRawHashKey reads a RawHashKey from the first 8 bytes of b.
func DecodeRawHashKey(b []byte) (RawHashKey, error) {
	if len(b) < 8 {
		return RawHashKey{}, ErrTruncated
	}
	return RawHashKey{
		Hash:        binary.LittleEndian.Uint32(b[0:4]),
		LenAndIndex: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Hash40 reconstructs the 40-bit path hash, folding the low byte of
// LenAndIndex back in as the hash's top byte.
func (k RawHashKey) Hash40() uint64 {
	return uint64(k.Hash) | (uint64(k.LenAndIndex&0x000000FF) << 32)
}

// Index returns the 24-bit table index packed into the top three bytes of
// LenAndIndex.
func (k RawHashKey) Index() uint32 {
	return k.LenAndIndex >> 8
}

// IsValid reports whether Index is not the invalid-index sentinel.
func (k RawHashKey) IsValid() bool {
	return k.Index() != 0x00FFFFFF
}
