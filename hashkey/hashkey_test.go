// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package hashkey

import "testing"

func TestPackUnpackSymmetry(t *testing.T) {
	cases := []struct {
		hash  uint64
		index uint32
	}{
		{0, 0},
		{0xFFFFFFFFFF, 0xFFFFFF},
		{0xABCDEF0123, 42},
		{1, InvalidIndex},
	}
	for _, c := range cases {
		k := New(c.hash, c.index)
		if k.Hash() != c.hash {
			t.Fatalf("Hash(New(%#x, %#x)) = %#x", c.hash, c.index, k.Hash())
		}
		if k.Index() != c.index {
			t.Fatalf("Index(New(%#x, %#x)) = %#x", c.hash, c.index, k.Index())
		}
	}
}

func TestSettersPreserveOrthogonalHalf(t *testing.T) {
	k := New(0xABCDEF0123, 7)

	k.SetHash(0x1111111111)
	if k.Index() != 7 {
		t.Fatalf("SetHash disturbed the index half: %#x", k.Index())
	}
	if k.Hash() != 0x1111111111 {
		t.Fatalf("SetHash did not take: %#x", k.Hash())
	}

	k.SetIndex(99)
	if k.Hash() != 0x1111111111 {
		t.Fatalf("SetIndex disturbed the hash half: %#x", k.Hash())
	}
	if k.Index() != 99 {
		t.Fatalf("SetIndex did not take: %d", k.Index())
	}
}

func TestInvalidIndexSentinel(t *testing.T) {
	if New(0xAB, InvalidIndex).IsValid() {
		t.Fatal("all-ones index must read as invalid")
	}
	if !New(0xAB, InvalidIndex-1).IsValid() {
		t.Fatal("any other index must read as valid")
	}
}

func TestHashTruncatesTo40Bits(t *testing.T) {
	k := New(0xFF_FFFFFFFFFF, 0) // 48 bits in, only the low 40 survive
	if k.Hash() != 0xFFFFFFFFFF {
		t.Fatalf("Hash = %#x, want the low 40 bits only", k.Hash())
	}
	if k.Index() != 0 {
		t.Fatalf("overflow bled into the index half: %#x", k.Index())
	}
}
