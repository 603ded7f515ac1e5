// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package table

import "sort"

// BucketMap is a fixed-bucket-count hash map whose iteration order matches
// the on-disk two-level hash lookup format: items are grouped by
// hash % bucketCount, and within a bucket ordered by hash. Go's builtin map
// does not iterate in key order, so each bucket keeps its keys in a small
// sorted slice alongside the value map.
type BucketMap[V any] struct {
	bucketCount uint32
	buckets     []bucket[V]
}

type bucket[V any] struct {
	keys   []uint64 // sorted ascending
	values map[uint64]V
}

// NewBucketMap constructs an empty BucketMap with bucketCount buckets.
// bucketCount must be non-zero; zero is a programmer error and panics.
func NewBucketMap[V any](bucketCount uint32) *BucketMap[V] {
	if bucketCount == 0 {
		panic("table: BucketMap constructed with zero bucket count")
	}
	b := &BucketMap[V]{
		bucketCount: bucketCount,
		buckets:     make([]bucket[V], bucketCount),
	}
	for i := range b.buckets {
		b.buckets[i].values = make(map[uint64]V)
	}
	return b
}

// BucketCount returns the fixed bucket count this map was constructed with.
func (b *BucketMap[V]) BucketCount() uint32 { return b.bucketCount }

// bucketFor returns the bucket index a hash falls into.
func (b *BucketMap[V]) bucketFor(hash uint64) uint32 {
	return uint32(hash % uint64(b.bucketCount))
}

// Insert adds or overwrites the value for hash.
func (b *BucketMap[V]) Insert(hash uint64, v V) {
	bi := b.bucketFor(hash)
	bk := &b.buckets[bi]
	if _, exists := bk.values[hash]; !exists {
		idx := sort.Search(len(bk.keys), func(i int) bool { return bk.keys[i] >= hash })
		bk.keys = append(bk.keys, 0)
		copy(bk.keys[idx+1:], bk.keys[idx:])
		bk.keys[idx] = hash
	}
	bk.values[hash] = v
}

// Get looks up the value for hash.
func (b *BucketMap[V]) Get(hash uint64) (V, bool) {
	bk := &b.buckets[b.bucketFor(hash)]
	v, ok := bk.values[hash]
	return v, ok
}

// BucketLen returns the number of entries in bucket i.
func (b *BucketMap[V]) BucketLen(i uint32) int {
	return len(b.buckets[i].keys)
}

// Len returns the total number of entries across all buckets.
func (b *BucketMap[V]) Len() int {
	n := 0
	for i := range b.buckets {
		n += len(b.buckets[i].keys)
	}
	return n
}

// Entry is one (hash, value) pair as it appears in on-disk bucket order.
type Entry[V any] struct {
	Hash  uint64
	Value V
}

// Each calls fn for every entry, iterating bucket 0..bucketCount and, within
// each bucket, in ascending hash order — the exact order the on-disk
// two-level lookup requires.
func (b *BucketMap[V]) Each(fn func(bucketIndex uint32, e Entry[V])) {
	for bi := range b.buckets {
		bk := &b.buckets[bi]
		for _, h := range bk.keys {
			fn(uint32(bi), Entry[V]{Hash: h, Value: bk.values[h]})
		}
	}
}
