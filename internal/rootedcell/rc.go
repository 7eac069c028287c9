package rootedcell

import (
	"github.com/joeycumines/shadowsim/internal/simerr"
	"github.com/joeycumines/shadowsim/internal/simlog"
)

// RootedRc is a non-atomic reference-counted handle to a value, stamped
// with the owning host's Tag. Every operation requires presenting the
// matching Root; because the Root can only be held by one goroutine at a
// time (§4.B), the refcount below needs no atomics and no mutex.
//
// Drop must be explicit: ExplicitDrop consumes the handle, decrements the
// refcount and panics if it goes below zero. A plain
// finalizer-based Drop is deliberately not provided (see ExplicitDropper).
type RootedRc[T any] struct {
	tag   Tag
	count *int
	value *T
}

// NewRootedRc allocates a new RootedRc owned by root, with one reference.
func NewRootedRc[T any](root *Root, value T) RootedRc[T] {
	root.checkOwner()
	n := 1
	return RootedRc[T]{tag: root.tag, count: &n, value: &value}
}

// Clone returns a new handle to the same value, incrementing the refcount.
// Panics if root does not match the tag this Rc was created under.
func (r RootedRc[T]) Clone(root *Root) RootedRc[T] {
	r.assertTag(root)
	*r.count++
	return r
}

// Get derefs the value, after checking root possession.
func (r RootedRc[T]) Get(root *Root) *T {
	r.assertTag(root)
	return r.value
}

// RefCount returns the current reference count, after checking root
// possession. Exposed for tests/diagnostics only.
func (r RootedRc[T]) RefCount(root *Root) int {
	r.assertTag(root)
	return *r.count
}

// ExplicitDrop consumes this handle, decrementing the refcount. It is the
// only sanctioned way to release a RootedRc: the type has no Go Finalizer
// or Close method, so a caller that simply lets a handle go out of scope
// without calling ExplicitDrop leaks the refcount slot (cheap, and loudly
// visible in -race/leak-detecting tests) rather than silently
// double-freeing.
func (r RootedRc[T]) ExplicitDrop(root *Root) {
	r.assertTag(root)
	*r.count--
	if *r.count < 0 {
		panic(simerr.NewDeterminismViolation("RootedRc refcount dropped below zero"))
	}
}

// assertTag is the single chokepoint every operation routes through; it
// implements spec invariant 3 verbatim ("every borrow ... preceded by a
// check that the presented root's tag equals the cell's tag").
func (r RootedRc[T]) assertTag(root *Root) {
	root.checkOwner()
	if root.tag != r.tag {
		panic(simerr.NewDeterminismViolation("RootedRc tag mismatch: cross-host access"))
	}
}

// ExplicitDropper wraps a RootedRc so ordinary defer-based cleanup can still
// reach ExplicitDrop on every exit path, including panics, while keeping the
// "must name your root" contract explicit at the call site.
//
//	d := NewExplicitDropper(rc, root, log)
//	defer d.Drop()
type ExplicitDropper[T any] struct {
	rc      RootedRc[T]
	root    *Root
	log     simlog.Logger
	dropped bool
}

// NewExplicitDropper wraps rc for deferred dropping under root, logging any
// suppressed double-drop through log.
func NewExplicitDropper[T any](rc RootedRc[T], root *Root, log simlog.Logger) *ExplicitDropper[T] {
	return &ExplicitDropper[T]{rc: rc, root: root, log: log}
}

// Drop releases the wrapped handle exactly once; subsequent calls are a
// debug-build panic (production logs and no-ops instead of double-freeing),
// matching spec scenario S5.
func (d *ExplicitDropper[T]) Drop() {
	if d.dropped {
		if debugAsserts {
			panic(simerr.NewDeterminismViolation("ExplicitDropper.Drop called twice"))
		}
		d.log.Warn().Str("tag", d.rc.tag.String()).Log("rootedcell: duplicate ExplicitDropper.Drop suppressed")
		return
	}
	d.dropped = true
	d.rc.ExplicitDrop(d.root)
}

// debugAsserts gates the strict, panicking behavior of ExplicitDropper.Drop
// and friends. It is a var, not a build tag, so tests can flip it; it
// defaults on, matching "panics in debug builds" from spec scenario S5.
var debugAsserts = true
