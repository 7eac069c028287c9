// Package eventqueue implements the per-host event queue: a min-heap over
// (deliver_time, host_id, seq), guarded only by the owning host's root-lock
// (spec §4.E). It is built on container/heap the same way the teacher's
// eventloop builds its timer queue (eventloop/loop.go's timerHeap), adapted
// from a single time-ordered heap to the simulator's three-part ordering
// key.
package eventqueue

import (
	"container/heap"

	"github.com/joeycumines/shadowsim/internal/simtime"
)

// HostID identifies the host an event belongs to; used only as the second
// tiebreak component of the ordering key (spec: "ties broken by host id
// then insertion order").
type HostID uint32

// Event is a single scheduled unit of work. Payload is opaque to the queue;
// the scheduler interprets it.
type Event struct {
	DeliverTime simtime.Time
	HostID      HostID
	Seq         uint64
	Payload     any
}

type heapSlice []Event

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	if h[i].DeliverTime != h[j].DeliverTime {
		return h[i].DeliverTime < h[j].DeliverTime
	}
	if h[i].HostID != h[j].HostID {
		return h[i].HostID < h[j].HostID
	}
	return h[i].Seq < h[j].Seq
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// Queue is a single host's event queue. Not safe for concurrent use; callers
// must hold the host's root-lock for every method call (spec §4.E:
// "mutation is guarded by the host's root-lock; no internal locking").
type Queue struct {
	hostID  HostID
	items   heapSlice
	nextSeq uint64
}

// New creates an empty Queue for the given host.
func New(hostID HostID) *Queue {
	return &Queue{hostID: hostID}
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.items) }

// Push schedules payload for deliverTime, stamping it with the next
// host-monotonic sequence number (spec §4.E: "pushing assigns a
// host-monotonic seq").
func (q *Queue) Push(deliverTime simtime.Time, payload any) uint64 {
	q.nextSeq++
	heap.Push(&q.items, Event{
		DeliverTime: deliverTime,
		HostID:      q.hostID,
		Seq:         q.nextSeq,
		Payload:     payload,
	})
	return q.nextSeq
}

// PeekTime returns the minimum deliver_time currently queued, and whether
// the queue is non-empty (spec §4.E: "peek_time returns the minimum
// deliver_time").
func (q *Queue) PeekTime() (simtime.Time, bool) {
	if len(q.items) == 0 {
		return simtime.Invalid, false
	}
	return q.items[0].DeliverTime, true
}

// PopIfLE pops the minimum event iff its deliver_time is <= bound (spec
// §4.E: "pop_if_le(bound) pops the min iff its deliver_time ≤ bound").
func (q *Queue) PopIfLE(bound simtime.Time) (Event, bool) {
	if len(q.items) == 0 || q.items[0].DeliverTime > bound {
		return Event{}, false
	}
	ev := heap.Pop(&q.items).(Event)
	return ev, true
}
