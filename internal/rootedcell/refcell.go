package rootedcell

import "github.com/joeycumines/shadowsim/internal/simerr"

// RootedRefCell is an interior-mutable cell guarded by borrow counters
// (reader count, writer flag) instead of atomics: because every access
// requires presenting the owning Root, and only one goroutine may ever hold
// that Root (§4.B), the borrow state is single-threaded data.
//
// Invariant: at most one writer xor any readers; tag equality is checked on
// every borrow (spec invariant 3).
type RootedRefCell[T any] struct {
	tag     Tag
	value   T
	readers int
	writing bool
}

// NewRootedRefCell creates a cell owned by root, holding the given value.
func NewRootedRefCell[T any](root *Root, value T) *RootedRefCell[T] {
	root.checkOwner()
	return &RootedRefCell[T]{tag: root.tag, value: value}
}

// Ref is a read guard returned by Borrow; Release must be called exactly
// once to return the cell to a borrowable state.
type Ref[T any] struct {
	cell *RootedRefCell[T]
}

// Get returns the borrowed value.
func (b Ref[T]) Get() *T { return &b.cell.value }

// Release ends the read borrow.
func (b Ref[T]) Release() {
	b.cell.readers--
}

// RefMut is a write guard returned by BorrowMut.
type RefMut[T any] struct {
	cell *RootedRefCell[T]
}

// Get returns the mutably borrowed value.
func (b RefMut[T]) Get() *T { return &b.cell.value }

// Release ends the write borrow.
func (b RefMut[T]) Release() {
	b.cell.writing = false
}

// Borrow takes a shared read borrow. Panics (DeterminismViolation) if the
// cell is currently mutably borrowed, or if root does not match the cell's
// tag.
func (c *RootedRefCell[T]) Borrow(root *Root) Ref[T] {
	c.assertTag(root)
	if c.writing {
		panic(simerr.NewDeterminismViolation("RootedRefCell already mutably borrowed"))
	}
	c.readers++
	return Ref[T]{cell: c}
}

// BorrowMut takes an exclusive write borrow. Panics if any borrow (read or
// write) is outstanding, or on tag mismatch.
func (c *RootedRefCell[T]) BorrowMut(root *Root) RefMut[T] {
	c.assertTag(root)
	if c.writing || c.readers > 0 {
		panic(simerr.NewDeterminismViolation("RootedRefCell already borrowed"))
	}
	c.writing = true
	return RefMut[T]{cell: c}
}

func (c *RootedRefCell[T]) assertTag(root *Root) {
	root.checkOwner()
	if root.tag != c.tag {
		panic(simerr.NewDeterminismViolation("RootedRefCell tag mismatch: cross-host access"))
	}
}
