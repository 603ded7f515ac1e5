// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package table

import "fmt"

// Maker is an append-only collector used during reorganize to assign fresh,
// serial indices to cells in canonical emission order. It deduplicates by
// GUID: pushing the same cell twice is a no-op lookup, not a re-append,
// except that a genuine duplicate push (same GUID, different call site
// expecting a fresh slot) is a programmer error and panics.
type Maker[T any] struct {
	cells   []*Cell[T]
	indices map[uint64]int
}

// NewMaker constructs an empty Maker.
func NewMaker[T any]() *Maker[T] {
	return &Maker[T]{indices: make(map[uint64]int)}
}

// Contains reports whether cell has already been pushed.
func (m *Maker[T]) Contains(cell *Cell[T]) bool {
	_, ok := m.indices[cell.GUID()]
	return ok
}

// Push appends cell, assigning it the next serial index. Panics if this
// GUID was already pushed.
func (m *Maker[T]) Push(cell *Cell[T]) int {
	if _, ok := m.indices[cell.GUID()]; ok {
		panic(fmt.Sprintf("table: Maker duplicate GUID push: %d", cell.GUID()))
	}
	idx := len(m.cells)
	m.cells = append(m.cells, cell)
	m.indices[cell.GUID()] = idx
	return idx
}

// PushIfAbsent pushes cell only if it has not already been pushed, returning
// its (possibly pre-existing) index either way.
func (m *Maker[T]) PushIfAbsent(cell *Cell[T]) int {
	if idx, ok := m.indices[cell.GUID()]; ok {
		return idx
	}
	return m.Push(cell)
}

// GetIndex returns the serial index assigned to cell. O(1).
func (m *Maker[T]) GetIndex(cell *Cell[T]) (int, bool) {
	idx, ok := m.indices[cell.GUID()]
	return idx, ok
}

// Len returns the number of cells pushed so far.
func (m *Maker[T]) Len() int { return len(m.cells) }

// Cells returns the final, canonically ordered table.
func (m *Maker[T]) Cells() []*Cell[T] { return m.cells }
