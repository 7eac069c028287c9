package eventqueue

import (
	"testing"

	"github.com/joeycumines/shadowsim/internal/simtime"
)

func TestQueue_OrderByDeliverTime(t *testing.T) {
	q := New(1)
	q.Push(simtime.Time(30), "c")
	q.Push(simtime.Time(10), "a")
	q.Push(simtime.Time(20), "b")

	var got []any
	for q.Len() > 0 {
		ev, ok := q.PopIfLE(simtime.Time(1 << 62))
		if !ok {
			t.Fatal("PopIfLE should succeed while queue non-empty")
		}
		got = append(got, ev.Payload)
	}
	want := []any{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestQueue_TieBreakBySeq(t *testing.T) {
	q := New(1)
	q.Push(simtime.Time(10), "first")
	q.Push(simtime.Time(10), "second")
	q.Push(simtime.Time(10), "third")

	order := []string{"first", "second", "third"}
	for _, want := range order {
		ev, ok := q.PopIfLE(simtime.Time(10))
		if !ok || ev.Payload != want {
			t.Fatalf("got %v, want %v", ev.Payload, want)
		}
	}
}

func TestQueue_PopIfLERespectsBound(t *testing.T) {
	q := New(1)
	q.Push(simtime.Time(100), "late")

	if _, ok := q.PopIfLE(simtime.Time(50)); ok {
		t.Fatal("PopIfLE should not pop an event past the bound")
	}
	ev, ok := q.PopIfLE(simtime.Time(100))
	if !ok || ev.Payload != "late" {
		t.Fatal("PopIfLE should pop once bound reaches deliver_time")
	}
}

func TestQueue_PeekTime(t *testing.T) {
	q := New(1)
	if _, ok := q.PeekTime(); ok {
		t.Fatal("PeekTime on empty queue should report not-ok")
	}
	q.Push(simtime.Time(5), nil)
	q.Push(simtime.Time(2), nil)
	got, ok := q.PeekTime()
	if !ok || got != simtime.Time(2) {
		t.Fatalf("PeekTime() = %v, want 2", got)
	}
}

func TestQueue_SeqIsHostMonotonic(t *testing.T) {
	q := New(7)
	s1 := q.Push(simtime.Time(1), "a")
	s2 := q.Push(simtime.Time(1), "b")
	if s2 != s1+1 {
		t.Fatalf("sequence not monotonic: s1=%d s2=%d", s1, s2)
	}
}
