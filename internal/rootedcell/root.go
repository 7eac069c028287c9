package rootedcell

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/joeycumines/shadowsim/internal/simerr"
)

// Root is a per-host, non-sharable token proving exclusive possession of a
// host's lock. At any instant, at most one execution context may hold a
// given Root. Presenting a Root to a RootedRc or RootedRefCell is how those
// types prove, at the call site, that the caller actually holds the host
// lock; Root itself does no locking.
//
// Root is deliberately not safe for concurrent use: every RootedRc and
// RootedRefCell operation that is handed a Root calls checkOwner, which
// panics if the Root is currently held (Acquire'd) by a different
// goroutine. The check is always on; a Root that is not held passes it, and
// Acquire, Release and Tag do not check at all. That catches a worker
// accidentally retaining a Root past the point another worker picks up the
// same host, which would otherwise corrupt non-atomic refcounts silently.
type Root struct {
	tag   Tag
	owner int64 // goroutine id that currently holds this Root; 0 = unheld
}

// NewRoot mints a fresh Root with a new globally unique Tag. Intended for use
// exactly once, at host construction.
func NewRoot() *Root {
	return &Root{tag: newTag()}
}

// Tag returns the Root's globally unique tag.
func (r *Root) Tag() Tag { return r.tag }

// Acquire marks the Root as held by the calling goroutine. Workers call this
// immediately after taking a host's lock, and Release immediately before
// giving it up, so checkOwner can catch cross-goroutine misuse.
func (r *Root) Acquire() {
	r.owner = goroutineID()
}

// Release clears ownership. Safe to call redundantly.
func (r *Root) Release() {
	r.owner = 0
}

// checkOwner panics with a DeterminismViolation if the Root is held and the
// caller is a goroutine other than the one that acquired it. It is the
// embodiment of spec invariant 3 ("root discipline"): every borrow must be
// preceded by a tag check, and every tag check implies single-goroutine
// possession.
func (r *Root) checkOwner() {
	if r.owner != 0 && r.owner != goroutineID() {
		panic(simerr.NewDeterminismViolation(
			fmt.Sprintf("root %s accessed from goroutine %d, held by %d", r.tag, goroutineID(), r.owner),
		))
	}
}

// goroutineID extracts the calling goroutine's id by parsing the header line
// of runtime.Stack. It is for diagnostics only: never used for control flow
// beyond the debug assertion above. See DESIGN.md for why this doesn't call
// github.com/joeycumines/goroutineid directly.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Line looks like "goroutine 123 [running]:".
	s := buf[:n]
	const prefix = "goroutine "
	for i := range prefix {
		if i >= len(s) || s[i] != prefix[i] {
			return -1
		}
	}
	s = s[len(prefix):]
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	id, err := strconv.ParseInt(string(s[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
