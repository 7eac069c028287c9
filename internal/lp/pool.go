// Package lp implements the logical-processor pool: a fixed set of N
// processor slots, each owning two bounded ring-buffer queues of worker
// (host) ids, used to distribute hosts to round-driver workers and collect
// them back at the round barrier (spec §4.D). Work-stealing means a ring can
// be popped by more than one goroutine (its own lp and any thief), so each
// ring is mutex-guarded rather than relying on single-owner access.
//
// The ring buffer is a fixed-capacity array rather than a growable slice, the
// "ArrayQueue" variant the spec prefers over an unbounded alternative
// (§9, Open Questions): pushing past capacity is a bug, and it is surfaced
// as a panic rather than silent heap growth, the same way rootedcell treats
// an impossible refcount as a DeterminismViolation rather than clamping it.
package lp

import (
	"sync"

	"github.com/joeycumines/shadowsim/internal/simerr"
)

// WorkerID identifies a host slot a logical processor can hold.
type WorkerID uint32

// ring is a fixed-capacity queue of WorkerID, sized at construction to
// num_workers (spec §4.D: "two bounded queues of worker ids sized to
// num_workers"). It is NOT actually single-producer-single-consumer once
// work-stealing is in play: a thief's NextWorker(lpi) pops from another lp's
// ready ring concurrently with that lp's own owner popping the same ring, so
// every access is guarded by mu rather than relying on ownership alone.
type ring struct {
	mu    sync.Mutex
	buf   []WorkerID
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]WorkerID, capacity)}
}

func (r *ring) push(w WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.buf) {
		panic(simerr.NewDeterminismViolation("lp: ring push past capacity"))
	}
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = w
	r.count++
}

func (r *ring) pop() (WorkerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0, false
	}
	w := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return w, true
}

func (r *ring) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == 0
}

// Slot is one logical-processor's pair of ready/done queues.
type Slot struct {
	ready *ring
	done  *ring
}

// Pool is the fixed set of N logical-processor slots created at simulation
// start (spec §4.D: "a pool of N processor slots is created at simulation
// start").
type Pool struct {
	slots []Slot
}

// New builds a Pool of n slots, each queue sized to numWorkers.
func New(n, numWorkers int) *Pool {
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{ready: newRing(numWorkers), done: newRing(numWorkers)}
	}
	return &Pool{slots: slots}
}

// Len returns the number of logical processors in the pool.
func (p *Pool) Len() int { return len(p.slots) }

// AddWorker pushes w onto lp lpi's ready queue.
func (p *Pool) AddWorker(lpi int, w WorkerID) {
	p.slots[lpi].ready.push(w)
}

// NextWorker pops a worker for lp lpi to run, trying lpi's own ready queue
// first, then stealing from lpi+1, lpi+2, ... (mod N), returning the first
// success along with the index it was stolen from (spec §4.D:
// "next_worker(lpi) pops from lp lpi, else from lpi+1 mod N, lpi+2 mod N,
// ..., returning the first success with the stolen-from index").
//
// A stolen worker is appended to the stealing lp's done queue as a locality
// hint for next round (spec §4.D), not back onto the lp it was stolen from.
func (p *Pool) NextWorker(lpi int) (w WorkerID, stolenFrom int, ok bool) {
	n := len(p.slots)
	if w, ok := p.slots[lpi].ready.pop(); ok {
		return w, lpi, true
	}
	for i := 1; i < n; i++ {
		j := (lpi + i) % n
		if w, ok := p.slots[j].ready.pop(); ok {
			p.slots[lpi].done.push(w)
			return w, j, true
		}
	}
	return 0, 0, false
}

// Idle reports whether lp lpi's ready queue is empty and no other lp has
// anything left to steal, i.e. the whole pool has run dry (spec §4.D
// "suspension points": "its ready+stealable queues are empty").
func (p *Pool) Idle(lpi int) bool {
	if !p.slots[lpi].ready.empty() {
		return false
	}
	n := len(p.slots)
	for i := 1; i < n; i++ {
		j := (lpi + i) % n
		if !p.slots[j].ready.empty() {
			return false
		}
	}
	return true
}

// Done appends w to lp lpi's done queue directly, used when a worker
// finishes a host it popped from its own ready queue (not stolen).
func (p *Pool) Done(lpi int, w WorkerID) {
	p.slots[lpi].done.push(w)
}

// Reset swaps ready and done on every lp, asserting each ready queue is
// empty first (spec §4.D: "reset swaps ready<->done on each lp; asserts
// ready is empty before swap"). Called once per round at the JOIN barrier.
func (p *Pool) Reset() {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.ready.empty() {
			panic(simerr.NewDeterminismViolation("lp: Reset called with non-empty ready queue"))
		}
		s.ready, s.done = s.done, s.ready
	}
}
