// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package table implements the shared primitives every sub-filesystem
// engine builds on: GUID-tagged interior-mutable cells, resolved/unresolved
// references, the re-indexing collector used during reorganize, and the
// fixed-bucket hash map that preserves the on-disk two-level lookup format.
package table

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// borrow states for the dynamically-checked single-writer/multiple-reader
// discipline a Cell enforces. There is no compile-time borrow checker in
// Go, so this is enforced at runtime and a conflict panics: a double
// borrow is a programmer error, never a recoverable condition.
const (
	borrowFree = iota
	borrowShared
	borrowExclusive
)

// Cell is a shared, interior-mutable, GUID-tagged record. Cloning a Cell
// shares the same backing value; it never deep-copies data.
type Cell[T any] struct {
	guid  uint64
	refs  atomic.Int64
	mu    sync.Mutex
	state int
	count int
	value *T
}

// counters holds one monotonic GUID counter per distinct element type T:
// a GUID is unique only within cells of the same T, which is sufficient
// because GUID deltas are only ever compared within a single table.
var counters sync.Map // map[string]*atomic.Uint64, keyed by the %T name

func nextGUID[T any]() uint64 {
	var zero T
	key := fmt.Sprintf("%T", zero)
	v, _ := counters.LoadOrStore(key, new(atomic.Uint64))
	c := v.(*atomic.Uint64)
	return c.Add(1)
}

// NewCell constructs a cell from a value, assigning it the next GUID for
// its element type. The new cell starts with a reference count of 1.
func NewCell[T any](v T) *Cell[T] {
	c := &Cell[T]{guid: nextGUID[T](), value: &v}
	c.refs.Store(1)
	return c
}

// GUID returns the cell's globally (per-type) unique identifier. Never
// serialized; used only to deduplicate during reorganize.
func (c *Cell[T]) GUID() uint64 { return c.guid }

// Clone records a new share of the cell and returns it. Go cells are
// shared by pointer, so the returned cell IS the receiver; Clone exists to
// keep the reference count observable where a caller takes an explicit
// share rather than passing a transient pointer around.
func (c *Cell[T]) Clone() *Cell[T] {
	c.refs.Add(1)
	return c
}

// RC returns the number of shares Clone has recorded, including the
// original. Diagnostic only; nothing is freed when it reaches zero (the
// garbage collector owns the memory).
func (c *Cell[T]) RC() int {
	return int(c.refs.Load())
}

// Borrow acquires a shared read borrow and returns the current value. The
// returned function must be called to release the borrow.
func (c *Cell[T]) Borrow() (T, func()) {
	c.mu.Lock()
	if c.state == borrowExclusive {
		c.mu.Unlock()
		panic("table: borrow conflict: cell already borrowed mutably")
	}
	c.state = borrowShared
	c.count++
	v := *c.value
	c.mu.Unlock()
	return v, func() {
		c.mu.Lock()
		c.count--
		if c.count == 0 {
			c.state = borrowFree
		}
		c.mu.Unlock()
	}
}

// BorrowMut acquires the exclusive write borrow, calls fn with a pointer to
// the live value, then releases. Panics if the cell is already borrowed.
func (c *Cell[T]) BorrowMut(fn func(*T)) {
	c.mu.Lock()
	if c.state != borrowFree {
		c.mu.Unlock()
		panic("table: borrow conflict: cell already borrowed")
	}
	c.state = borrowExclusive
	c.mu.Unlock()

	fn(c.value)

	c.mu.Lock()
	c.state = borrowFree
	c.mu.Unlock()
}

// Get returns a snapshot copy of the cell's value without tracking a
// borrow; used by read-only helpers (e.g. json marshaling) where holding a
// long-lived borrow would be overkill.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.value
}

// Set replaces the cell's value wholesale under the exclusive borrow.
func (c *Cell[T]) Set(v T) {
	c.BorrowMut(func(p *T) { *p = v })
}
