// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package table

import "testing"

func TestCellCloneSharesValue(t *testing.T) {
	c := NewCell(41)
	d := c.Clone() // a clone is the same shared cell, not a copy
	d.Set(42)
	if c.Get() != 42 {
		t.Fatalf("Get = %d after Set through the shared handle, want 42", c.Get())
	}
}

func TestCellGUIDsAreUniquePerType(t *testing.T) {
	a, b := NewCell(1), NewCell(2)
	if a.GUID() == b.GUID() {
		t.Fatal("two cells of the same type drew the same GUID")
	}
	if b.GUID() <= a.GUID() {
		t.Fatal("GUIDs must be assigned monotonically")
	}
}

func TestCloneTracksRefCount(t *testing.T) {
	c := NewCell(1)
	if c.RC() != 1 {
		t.Fatalf("RC = %d on a fresh cell, want 1", c.RC())
	}
	d := c.Clone()
	if d != c {
		t.Fatal("Clone must return the same shared cell")
	}
	if c.RC() != 2 {
		t.Fatalf("RC = %d after one Clone, want 2", c.RC())
	}
	d.Set(9)
	if c.Get() != 9 {
		t.Fatal("a clone must share the backing value")
	}
}

func TestBorrowConflictPanics(t *testing.T) {
	c := NewCell(1)
	_, release := c.Borrow()
	defer release()

	defer func() {
		if recover() == nil {
			t.Fatal("BorrowMut during an active shared borrow must panic")
		}
	}()
	c.BorrowMut(func(v *int) { *v = 2 })
}

func TestMakerDuplicatePushPanics(t *testing.T) {
	m := NewMaker[int]()
	c := NewCell(1)
	m.Push(c)

	defer func() {
		if recover() == nil {
			t.Fatal("pushing the same GUID twice must panic")
		}
	}()
	m.Push(c)
}

func TestMakerAssignsSerialIndices(t *testing.T) {
	m := NewMaker[int]()
	a, b := NewCell(1), NewCell(2)
	m.Push(a)
	m.PushIfAbsent(b)
	m.PushIfAbsent(a) // no-op

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if idx, ok := m.GetIndex(b); !ok || idx != 1 {
		t.Fatalf("GetIndex(b) = %d, %v; want 1, true", idx, ok)
	}
}

func TestBucketMapIterationOrder(t *testing.T) {
	m := NewBucketMap[string](4)
	// bucket 1: 5, 9 (in hash order); bucket 2: 2; bucket 3: 3.
	m.Insert(9, "nine")
	m.Insert(2, "two")
	m.Insert(5, "five")
	m.Insert(3, "three")

	var hashes []uint64
	var buckets []uint32
	m.Each(func(bi uint32, e Entry[string]) {
		hashes = append(hashes, e.Hash)
		buckets = append(buckets, bi)
	})

	wantHashes := []uint64{5, 9, 2, 3}
	wantBuckets := []uint32{1, 1, 2, 3}
	for i := range wantHashes {
		if hashes[i] != wantHashes[i] || buckets[i] != wantBuckets[i] {
			t.Fatalf("iteration %d = (bucket %d, hash %d), want (bucket %d, hash %d)",
				i, buckets[i], hashes[i], wantBuckets[i], wantHashes[i])
		}
	}
	if m.Len() != 4 || m.BucketLen(1) != 2 {
		t.Fatalf("Len = %d, BucketLen(1) = %d", m.Len(), m.BucketLen(1))
	}
}

func TestBucketMapZeroBucketsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero bucket count must panic")
		}
	}()
	NewBucketMap[int](0)
}

func TestContiguousRefResolveIsIdempotent(t *testing.T) {
	tbl := []*Cell[int]{NewCell(10), NewCell(20), NewCell(30)}
	r := UnresolvedContiguousRef[int](1, 3)
	r.Resolve(tbl)
	r.Append(NewCell(40))
	r.Resolve(tbl) // second pass must not rebuild the range
	if r.Len() != 3 {
		t.Fatalf("Len = %d after append + re-resolve, want 3", r.Len())
	}
}

type chainNode struct {
	next OptionalRef[chainNode]
}

func (n chainNode) Next() (Ref[chainNode], bool) { return n.next.Get() }

func TestLinkedRefWalksUntilNone(t *testing.T) {
	tail := NewCell(chainNode{})
	mid := NewCell(chainNode{next: UnresolvedOptionalRef[chainNode](2)})
	head := NewCell(chainNode{next: UnresolvedOptionalRef[chainNode](1)})
	tbl := []*Cell[chainNode]{head, mid, tail}

	r := UnresolvedLinkedRef[chainNode](0)
	r.Resolve(tbl)
	cells := r.Cells()
	if len(cells) != 3 {
		t.Fatalf("walked %d cells, want 3", len(cells))
	}
	if cells[0] != head || cells[2] != tail {
		t.Fatal("linked walk out of order")
	}
}
