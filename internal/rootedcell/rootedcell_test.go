package rootedcell

import (
	"testing"

	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootedRc_CloneDropBalances(t *testing.T) {
	root := NewRoot()
	root.Acquire()
	defer root.Release()

	rc := NewRootedRc(root, "payload")
	require.Equal(t, 1, rc.RefCount(root))

	clone := rc.Clone(root)
	require.Equal(t, 2, rc.RefCount(root))
	assert.Equal(t, "payload", *clone.Get(root))

	clone.ExplicitDrop(root)
	require.Equal(t, 1, rc.RefCount(root))
	rc.ExplicitDrop(root)
}

func TestRootedRc_CrossHostTagMismatchPanics(t *testing.T) {
	rootA := NewRoot()
	rootA.Acquire()
	rc := NewRootedRc(rootA, 1)
	rootA.Release()

	rootB := NewRoot()
	rootB.Acquire()
	defer rootB.Release()

	assert.Panics(t, func() {
		rc.Get(rootB)
	})
}

func TestRootedRc_ExplicitDropBelowZeroPanics(t *testing.T) {
	root := NewRoot()
	root.Acquire()
	defer root.Release()

	rc := NewRootedRc(root, 0)
	rc.ExplicitDrop(root)
	assert.Panics(t, func() {
		rc.ExplicitDrop(root)
	})
}

func TestExplicitDropper_DoubleDropPanicsInDebug(t *testing.T) {
	root := NewRoot()
	root.Acquire()
	defer root.Release()

	rc := NewRootedRc(root, 0)
	d := NewExplicitDropper(rc, root, simlog.Nop())
	d.Drop()
	assert.Panics(t, func() {
		d.Drop()
	})
}

func TestExplicitDropper_DoubleDropLogsWhenAssertsDisabled(t *testing.T) {
	prev := debugAsserts
	debugAsserts = false
	defer func() { debugAsserts = prev }()

	root := NewRoot()
	root.Acquire()
	defer root.Release()

	rc := NewRootedRc(root, 0)
	d := NewExplicitDropper(rc, root, simlog.Nop())
	d.Drop()
	assert.NotPanics(t, func() {
		d.Drop()
	})
}

func TestRootedRefCell_WriterExcludesReaders(t *testing.T) {
	root := NewRoot()
	root.Acquire()
	defer root.Release()

	cell := NewRootedRefCell(root, 42)
	w := cell.BorrowMut(root)
	assert.Panics(t, func() {
		cell.Borrow(root)
	})
	w.Release()

	r1 := cell.Borrow(root)
	r2 := cell.Borrow(root)
	assert.Panics(t, func() {
		cell.BorrowMut(root)
	})
	r1.Release()
	r2.Release()

	wm := cell.BorrowMut(root)
	*wm.Get() = 99
	wm.Release()
	assert.Equal(t, 99, *cell.Borrow(root).Get())
}

func TestRootedRefCell_TagMismatchPanics(t *testing.T) {
	rootA := NewRoot()
	rootA.Acquire()
	cell := NewRootedRefCell(rootA, "x")
	rootA.Release()

	rootB := NewRoot()
	rootB.Acquire()
	defer rootB.Release()

	assert.Panics(t, func() {
		cell.Borrow(rootB)
	})
}

func TestRoot_CrossGoroutineAccessPanics(t *testing.T) {
	root := NewRoot()
	root.Acquire()

	done := make(chan struct{})
	var panicked bool
	go func() {
		defer close(done)
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		_ = NewRootedRc(root, 1)
	}()
	<-done
	assert.True(t, panicked)
	root.Release()
}

func TestTag_StringFormat(t *testing.T) {
	tag := newTag()
	assert.Len(t, tag.String(), len("00000000:00000000"))
}
