// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package hashkey implements the packed 64-bit hash40+index word used
// throughout the packaged, stream and search filesystem tables.
package hashkey

// HashMask covers the low 40 bits a Hash40 value occupies inside a HashKey.
const HashMask uint64 = 0x000000FFFFFFFFFF

// IndexMask covers the high 24 bits a table index occupies inside a HashKey.
const IndexMask uint64 = 0xFFFFFF0000000000

// InvalidIndex is the 24-bit all-ones sentinel meaning "no reference".
const InvalidIndex uint32 = 0x00FFFFFF

// HashKey packs a 40-bit Hash40 and a 24-bit table index into one
// little-endian u64: hash occupies bits [0:40), index occupies bits [40:64).
type HashKey uint64

// New packs a hash and an index into a HashKey.
func New(hash uint64, index uint32) HashKey {
	return HashKey((hash & HashMask) | (uint64(index) << 40))
}

// Hash returns the 40-bit hash half.
func (k HashKey) Hash() uint64 {
	return uint64(k) & HashMask
}

// Index returns the 24-bit index half.
func (k HashKey) Index() uint32 {
	return uint32(uint64(k) >> 40)
}

// IsValid reports whether the index half is not the invalid-index sentinel.
func (k HashKey) IsValid() bool {
	return k.Index() != InvalidIndex
}

// WithHash returns a copy of the key with the hash half replaced, leaving
// the index half untouched.
func (k HashKey) WithHash(hash uint64) HashKey {
	return HashKey((uint64(k) &^ HashMask) | (hash & HashMask))
}

// WithIndex returns a copy of the key with the index half replaced, leaving
// the hash half untouched.
func (k HashKey) WithIndex(index uint32) HashKey {
	return HashKey((uint64(k) &^ IndexMask) | (uint64(index) << 40))
}

// SetHash mutates the hash half in place.
func (k *HashKey) SetHash(hash uint64) {
	*k = k.WithHash(hash)
}

// SetIndex mutates the index half in place.
func (k *HashKey) SetIndex(index uint32) {
	*k = k.WithIndex(index)
}

// Uint64 returns the raw little-endian-packed word, as written to disk.
func (k HashKey) Uint64() uint64 {
	return uint64(k)
}
