package scheduler

import (
	"context"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/shadowsim/internal/host"
	"github.com/joeycumines/shadowsim/internal/runahead"
	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/joeycumines/shadowsim/internal/simtime"
)

type fakeDNS struct {
	addrs map[string]netip.Addr
}

func newFakeDNS() *fakeDNS { return &fakeDNS{addrs: map[string]netip.Addr{}} }

func (f *fakeDNS) Register(id uint64, hostname string, addr netip.Addr) error {
	f.addrs[hostname] = addr
	return nil
}
func (f *fakeDNS) Deregister(id uint64) error { return nil }
func (f *fakeDNS) Resolve(hostname string) (netip.Addr, bool) {
	a, ok := f.addrs[hostname]
	return a, ok
}

func mustHost(t *testing.T, id host.ID, name string, dns *fakeDNS) *host.Host {
	t.Helper()
	h, err := host.New(id, name, netip.MustParseAddr("10.0.0.1"), dns, simlog.Nop())
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	return h
}

func TestScheduler_SingleRoundDrainsDueEvents(t *testing.T) {
	dns := newFakeDNS()
	h1 := mustHost(t, 1, "h1", dns)
	h2 := mustHost(t, 2, "h2", dns)

	h1.Events.Push(simtime.Time(5), "a")
	h2.Events.Push(simtime.Time(5), "b")

	var ran []string
	dispatch := func(h *host.Host, roundEnd simtime.Time) []OutboundPacket {
		for {
			ev, ok := h.Events.PopIfLE(roundEnd)
			if !ok {
				break
			}
			ran = append(ran, ev.Payload.(string))
		}
		return nil
	}

	rc := runahead.New(time.Millisecond, 0, false, simlog.Nop())
	s := New([]*host.Host{h1, h2}, 2, rc, dispatch, simlog.Nop())
	defer s.Close()

	s.RunRound(context.Background())

	if len(ran) != 2 {
		t.Fatalf("ran = %v, want both events processed", ran)
	}
}

func TestScheduler_CrossHostDeliveryDeferredToNextRound(t *testing.T) {
	dns := newFakeDNS()
	h1 := mustHost(t, 1, "h1", dns)
	h2 := mustHost(t, 2, "h2", dns)

	h1.Events.Push(simtime.Time(1), "send")

	var h2SawAt []simtime.Time
	dispatch := func(h *host.Host, roundEnd simtime.Time) []OutboundPacket {
		var out []OutboundPacket
		for {
			ev, ok := h.Events.PopIfLE(roundEnd)
			if !ok {
				break
			}
			if h.ID == 1 && ev.Payload == "send" {
				out = append(out, OutboundPacket{Dest: 2, DeliverTime: roundEnd, Payload: "delivered"})
			}
			if h.ID == 2 {
				h2SawAt = append(h2SawAt, ev.DeliverTime)
			}
		}
		return out
	}

	rc := runahead.New(10*time.Millisecond, 0, false, simlog.Nop())
	s := New([]*host.Host{h1, h2}, 2, rc, dispatch, simlog.Nop())
	defer s.Close()

	s.RunRound(context.Background())
	if len(h2SawAt) != 0 {
		t.Fatal("cross-host delivery must not be visible within the same round")
	}

	s.RunRound(context.Background())
	if len(h2SawAt) != 1 {
		t.Fatalf("expected h2 to see the delivered event on the following round, got %v", h2SawAt)
	}
}

// TestScheduler_CommitWaitsForBatchBeforeReturning drives a large number of
// outbound packets (comfortably more than the commit-phase batcher's
// MaxSize) through a single round, so COMMIT spans multiple asynchronous
// batch runs. commit() must not return until every batch has actually
// pushed its packets onto the destination host's queue (not merely been
// accepted into a pending batch) — otherwise the very next round's
// distribute()/runHost() could start reading the destination's queue before
// this round's deliveries land, or could race the batcher's own goroutine
// mutating the same queue outside the host's root-lock.
func TestScheduler_CommitWaitsForBatchBeforeReturning(t *testing.T) {
	const numPackets = 500

	dns := newFakeDNS()
	sender := mustHost(t, 1, "sender", dns)
	receiver := mustHost(t, 2, "receiver", dns)
	sender.Events.Push(simtime.Time(1), "send")

	dispatch := func(h *host.Host, roundEnd simtime.Time) []OutboundPacket {
		var out []OutboundPacket
		for {
			ev, ok := h.Events.PopIfLE(roundEnd)
			if !ok {
				break
			}
			if h.ID == sender.ID && ev.Payload == "send" {
				for i := 0; i < numPackets; i++ {
					out = append(out, OutboundPacket{Dest: receiver.ID, DeliverTime: roundEnd, Payload: i})
				}
			}
		}
		return out
	}

	rc := runahead.New(10*time.Millisecond, 0, false, simlog.Nop())
	s := New([]*host.Host{sender, receiver}, 2, rc, dispatch, simlog.Nop())
	defer s.Close()

	// Round 1: sender emits numPackets outbound packets, all deferred to the
	// next round's DISTRIBUTE per the cross-host delivery invariant.
	s.RunRound(context.Background())

	// Round 2 starts immediately; if commit() returned before every batch
	// finished pushing, some of these would still be missing from
	// receiver.Events here.
	if got := receiver.Events.Len(); got != numPackets {
		t.Fatalf("receiver.Events.Len() = %d immediately after round 1's commit, want %d (commit must wait for every batch)", got, numPackets)
	}

	s.RunRound(context.Background())
	if got := receiver.Events.Len(); got != 0 {
		t.Fatalf("receiver.Events.Len() = %d after round 2 drained them, want 0", got)
	}
}

// TestScheduler_ManyHostsManyWorkersStealAndConverge exercises real
// work-stealing contention: more hosts than workers, with an uneven
// distribution across logical processors, so some worker goroutines finish
// their own ready queue and steal from a neighbor's while that neighbor's
// own goroutine may still be popping from it. Run with -race to catch any
// regression of the ring's synchronization.
func TestScheduler_ManyHostsManyWorkersStealAndConverge(t *testing.T) {
	const numHosts = 40
	const numWorkers = 4

	dns := newFakeDNS()
	hosts := make([]*host.Host, numHosts)
	for i := 0; i < numHosts; i++ {
		id := host.ID(i + 1)
		hosts[i] = mustHost(t, id, hostNameFor(id), dns)
		hosts[i].Events.Push(simtime.Time(1), "work")
	}

	var mu sync.Mutex
	ran := map[host.ID]bool{}
	dispatch := func(h *host.Host, roundEnd simtime.Time) []OutboundPacket {
		for {
			_, ok := h.Events.PopIfLE(roundEnd)
			if !ok {
				break
			}
			mu.Lock()
			ran[h.ID] = true
			mu.Unlock()
		}
		return nil
	}

	rc := runahead.New(time.Millisecond, 0, false, simlog.Nop())
	s := New(hosts, numWorkers, rc, dispatch, simlog.Nop())
	defer s.Close()

	s.RunRound(context.Background())

	if len(ran) != numHosts {
		t.Fatalf("ran %d/%d hosts in one round", len(ran), numHosts)
	}
}

func hostNameFor(id host.ID) string {
	return "h" + strconv.FormatUint(uint64(id), 10)
}

func TestScheduler_PhaseReturnsIdleBetweenRounds(t *testing.T) {
	dns := newFakeDNS()
	h1 := mustHost(t, 1, "h1", dns)

	dispatch := func(h *host.Host, roundEnd simtime.Time) []OutboundPacket { return nil }
	rc := runahead.New(time.Millisecond, 0, false, simlog.Nop())
	s := New([]*host.Host{h1}, 1, rc, dispatch, simlog.Nop())
	defer s.Close()

	s.RunRound(context.Background())
	if s.Phase() != Idle {
		t.Fatalf("Phase() = %v, want Idle after RunRound returns", s.Phase())
	}
}
