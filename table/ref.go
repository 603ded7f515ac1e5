// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package table

// Ref is either an Unresolved table index or a Resolved cell, modeled as a
// small tagged struct rather than an interface, since the only two states
// never grow a third.
type Ref[T any] struct {
	resolved bool
	index    uint32
	cell     *Cell[T]
}

// UnresolvedRef constructs a Ref in the Unresolved state.
func UnresolvedRef[T any](index uint32) Ref[T] {
	return Ref[T]{index: index}
}

// IsResolved reports whether the reference has already been bound to a cell.
func (r Ref[T]) IsResolved() bool { return r.resolved }

// Index returns the raw unresolved index. Only meaningful before Resolve.
func (r Ref[T]) Index() uint32 { return r.index }

// Cell returns the resolved cell. Panics if called before Resolve.
func (r Ref[T]) Cell() *Cell[T] {
	if !r.resolved {
		panic("table: Ref.Cell called before Resolve")
	}
	return r.cell
}

// Resolve binds the reference to the cell at r.Index() within table,
// leaving an already-resolved reference untouched (idempotent second pass).
func (r *Ref[T]) Resolve(tbl []*Cell[T]) {
	if r.resolved {
		return
	}
	if int(r.index) >= len(tbl) {
		panic("table: Ref index out of range during resolve")
	}
	r.cell = tbl[r.index]
	r.resolved = true
}

// OptionalRef is a Ref[T] that may legitimately carry no value, as
// distinguished on disk by the 24-bit invalid-index sentinel.
type OptionalRef[T any] struct {
	present bool
	inner   Ref[T]
}

// NoRef constructs an OptionalRef carrying no reference.
func NoRef[T any]() OptionalRef[T] { return OptionalRef[T]{} }

// UnresolvedOptionalRef constructs a present, unresolved OptionalRef.
func UnresolvedOptionalRef[T any](index uint32) OptionalRef[T] {
	return OptionalRef[T]{present: true, inner: UnresolvedRef[T](index)}
}

// IsPresent reports whether this optional reference carries a value at all.
func (r OptionalRef[T]) IsPresent() bool { return r.present }

// Get returns the inner Ref and whether it was present.
func (r OptionalRef[T]) Get() (Ref[T], bool) { return r.inner, r.present }

// Resolve resolves the inner reference, if present.
func (r *OptionalRef[T]) Resolve(tbl []*Cell[T]) {
	if !r.present {
		return
	}
	r.inner.Resolve(tbl)
}

// ContiguousRef is either an Unresolved start..end index range or a
// Resolved slice of cells.
type ContiguousRef[T any] struct {
	resolved bool
	start    uint32
	end      uint32
	cells    []*Cell[T]
}

// UnresolvedContiguousRef constructs a ContiguousRef spanning [start, end).
func UnresolvedContiguousRef[T any](start, end uint32) ContiguousRef[T] {
	return ContiguousRef[T]{start: start, end: end}
}

// IsResolved reports whether the range has already been bound to cells.
func (r ContiguousRef[T]) IsResolved() bool { return r.resolved }

// Start returns the raw unresolved start index.
func (r ContiguousRef[T]) Start() uint32 { return r.start }

// End returns the raw unresolved end index (exclusive).
func (r ContiguousRef[T]) End() uint32 { return r.end }

// Len returns the number of cells this range spans.
func (r ContiguousRef[T]) Len() uint32 {
	if r.resolved {
		return uint32(len(r.cells))
	}
	return r.end - r.start
}

// Cells returns the resolved slice. Panics if called before Resolve.
func (r ContiguousRef[T]) Cells() []*Cell[T] {
	if !r.resolved {
		panic("table: ContiguousRef.Cells called before Resolve")
	}
	return r.cells
}

// Append grows an already-resolved range by one cell; used by mutation
// paths (e.g. AddFile) that add a new element to an existing table range
// in memory, ahead of the next reorganize pass re-deriving fresh offsets.
func (r *ContiguousRef[T]) Append(cell *Cell[T]) {
	if !r.resolved {
		panic("table: ContiguousRef.Append called before Resolve")
	}
	r.cells = append(r.cells, cell)
	r.end++
}

// Resolve binds the range to the corresponding slice of table, leaving an
// already-resolved reference untouched.
func (r *ContiguousRef[T]) Resolve(tbl []*Cell[T]) {
	if r.resolved {
		return
	}
	if int(r.end) > len(tbl) || r.start > r.end {
		panic("table: ContiguousRef range out of bounds during resolve")
	}
	r.cells = append([]*Cell[T]{}, tbl[r.start:r.end]...)
	r.resolved = true
}

// Nexter is implemented by any cell value carrying a singly linked next
// pointer, the shape LinkedRef walks to materialize its resolved slice.
type Nexter[T any] interface {
	Next() (Ref[T], bool)
}

// LinkedRef is either an Unresolved start index or a Resolved slice derived
// by walking Next() links from the head cell until none remain.
type LinkedRef[T Nexter[T]] struct {
	resolved bool
	start    uint32
	hasStart bool
	cells    []*Cell[T]
}

// UnresolvedLinkedRef constructs a LinkedRef rooted at start.
func UnresolvedLinkedRef[T Nexter[T]](start uint32) LinkedRef[T] {
	return LinkedRef[T]{start: start, hasStart: true}
}

// EmptyLinkedRef constructs a LinkedRef with no children at all.
func EmptyLinkedRef[T Nexter[T]]() LinkedRef[T] {
	return LinkedRef[T]{resolved: true}
}

// Cells returns the resolved slice of linked cells, head first.
func (r LinkedRef[T]) Cells() []*Cell[T] {
	if !r.resolved {
		panic("table: LinkedRef.Cells called before Resolve")
	}
	return r.cells
}

// Resolve walks the table from r.start, following Next() until it returns
// false, collecting every visited cell in order.
func (r *LinkedRef[T]) Resolve(tbl []*Cell[T]) {
	if r.resolved {
		return
	}
	if !r.hasStart {
		r.resolved = true
		return
	}
	if int(r.start) >= len(tbl) {
		panic("table: LinkedRef start out of bounds during resolve")
	}
	cur := tbl[r.start]
	for {
		r.cells = append(r.cells, cur)
		v := cur.Get()
		next, ok := v.Next()
		if !ok {
			break
		}
		next.Resolve(tbl)
		cur = next.Cell()
	}
	r.resolved = true
}

// SetCells overwrites the resolved slice directly; used by AddFile-style
// mutation paths that build the linked list incrementally rather than by
// walking an on-disk range.
func (r *LinkedRef[T]) SetCells(cells []*Cell[T]) {
	r.resolved = true
	r.cells = cells
}
