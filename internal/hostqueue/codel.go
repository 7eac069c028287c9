// Package hostqueue implements the two host-scoped collections built on
// rootedcell-guarded state: the CoDel active-queue-management queue (spec
// §4.C, RFC 8289) and the futex wait/wake table. Both are mutated only by
// the worker currently holding the owning host's root-lock; neither does
// its own internal locking.
package hostqueue

import (
	"math"
	"time"

	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/joeycumines/shadowsim/internal/simtime"
)

const (
	// Target is CoDel's acceptable sojourn time.
	Target = 10 * time.Millisecond
	// Interval is how long sojourn must stay above Target before CoDel
	// starts dropping, and the window used to compute the next drop
	// deadline.
	Interval = 100 * time.Millisecond
	// Limit bounds queue depth. Set very high: in simulation the queue is
	// "effectively unbounded", per spec §4.C.
	Limit = 1 << 20
)

// Packet is the minimal shape CoDelQueue needs: a size for byte accounting,
// and a deterministic sequence number used for tie-breaking downstream
// (spec §4.C: "every admitted packet carries a deterministic sequence
// number").
type Packet struct {
	Bytes int
	Seq   uint64
	// Payload is opaque to the queue; callers attach whatever downstream
	// code needs (e.g. the TCP/UDP segment).
	Payload any
}

type queued struct {
	pkt       Packet
	enqueueAt simtime.Time
}

// CoDelQueue is a FIFO with RFC 8289 controlled-delay drop behavior.
type CoDelQueue struct { // betteralign:ignore
	items      []queued
	totalBytes int
	nextSeq    uint64

	dropping   bool
	firstAbove simtime.Time // when sojourn first exceeded Target in this above-run
	dropNext   simtime.Time
	count      int

	sojourn percentileEstimator
	log     simlog.Logger
	drops   dropRateLimiter
}

// New creates an empty CoDelQueue. name identifies the owning interface for
// log sampling.
func New(name string, log simlog.Logger) *CoDelQueue {
	return &CoDelQueue{
		log:     log.With("iface", name),
		drops:   newDropRateLimiter(name),
		sojourn: newPercentileEstimator(0.5),
	}
}

// TotalBytes returns the sum of enqueued packet sizes (spec invariant:
// "total_bytes equals the sum of packet sizes").
func (q *CoDelQueue) TotalBytes() int { return q.totalBytes }

// Len returns the number of packets currently queued.
func (q *CoDelQueue) Len() int { return len(q.items) }

// Enqueue admits pkt at time now, stamping it with the next sequence number.
// Refuses silently (without counting) past Limit, per spec §4.C.
func (q *CoDelQueue) Enqueue(now simtime.Time, pkt Packet) (seq uint64, admitted bool) {
	if len(q.items) >= Limit {
		return 0, false
	}
	q.nextSeq++
	pkt.Seq = q.nextSeq
	q.items = append(q.items, queued{pkt: pkt, enqueueAt: now})
	q.totalBytes += pkt.Bytes
	return pkt.Seq, true
}

// Dequeue pops the head packet, applying the CoDel drop decision, and
// returns the packet actually delivered to the caller (nil if the queue is
// empty, or if every available packet was dropped this call).
//
// The state machine is exactly RFC 8289 (spec §4.C): compute sojourn; below
// Target exits drop mode; continuously above Target for Interval enters
// drop mode and drops one packet, scheduling the next drop at
// now + Interval/sqrt(count); returning below Target resets count and mode.
func (q *CoDelQueue) Dequeue(now simtime.Time) (*Packet, bool) {
	for {
		if len(q.items) == 0 {
			q.dropping = false
			return nil, false
		}
		head := q.items[0]
		sojourn := now.Sub(head.enqueueAt)
		q.sojourn.Observe(float64(sojourn))

		belowTarget := sojourn <= Target
		if belowTarget {
			q.dropping = false
			q.count = 0
			q.firstAbove = simtime.Invalid
			return q.pop(), true
		}

		if q.firstAbove == simtime.Invalid {
			q.firstAbove = now
		}
		if !q.dropping {
			if now.Sub(q.firstAbove) >= Interval {
				q.dropping = true
				q.count = 1
				q.dropNext = q.nextDropDeadline(now)
				q.logDrop(now)
				q.drop()
				continue
			}
			return q.pop(), true
		}

		// Already dropping: drop again only once dropNext has elapsed,
		// otherwise deliver normally while staying in drop mode.
		if !now.Before(q.dropNext) {
			q.count++
			q.dropNext = q.nextDropDeadline(now)
			q.logDrop(now)
			q.drop()
			continue
		}
		return q.pop(), true
	}
}

func (q *CoDelQueue) nextDropDeadline(now simtime.Time) simtime.Time {
	return now.Add(time.Duration(float64(Interval) / math.Sqrt(float64(q.count))))
}

func (q *CoDelQueue) pop() *Packet {
	head := q.items[0]
	q.items = q.items[1:]
	q.totalBytes -= head.pkt.Bytes
	return &head.pkt
}

func (q *CoDelQueue) drop() {
	head := q.items[0]
	q.items = q.items[1:]
	q.totalBytes -= head.pkt.Bytes
}

func (q *CoDelQueue) logDrop(now simtime.Time) {
	if q.drops.Allow() {
		q.log.Info().Int("count", q.count).Dur("sojourn_p50", time.Duration(q.sojourn.Value())).
			Time("at", now.AsTime()).Log("codel: entering/continuing drop mode")
	}
}
