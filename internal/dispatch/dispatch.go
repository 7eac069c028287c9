// Package dispatch wires together the per-host event payloads the round
// driver (internal/scheduler) hands to a host each round: inbound network
// packets, reported syscalls, and generic scheduled callbacks (timers,
// futex wakeups). It is the glue component named nowhere explicitly in the
// component table because it is the scheduler.Dispatcher closure itself,
// not a standalone module — every piece it touches (host, hostqueue,
// sysdispatch) is a real named component.
package dispatch

import (
	"github.com/joeycumines/shadowsim/internal/host"
	"github.com/joeycumines/shadowsim/internal/hostqueue"
	"github.com/joeycumines/shadowsim/internal/scheduler"
	"github.com/joeycumines/shadowsim/internal/simtime"
	"github.com/joeycumines/shadowsim/internal/sysdispatch"
)

// PacketArrival is scheduled on a destination host's event queue by a
// sender (directly, for same-host delivery, or via scheduler.OutboundPacket
// for cross-host delivery). Iface selects which CoDel queue admits it.
type PacketArrival struct {
	Iface   string
	Bytes   int
	Payload []byte
}

// SyscallMade is scheduled when a shim reports "syscall made" over IPC; the
// dispatcher runs it through the syscall table (and falls back to the
// configured SyscallEmulator, or native passthrough, for anything not in
// the reserved shadow range).
type SyscallMade struct {
	Thread *sysdispatch.Thread
	Nr     uint64
	Args   sysdispatch.SyscallArgs
}

// Callback is a generic one-shot scheduled on a host's queue: a timer
// firing, or a futex wakeup re-entering the event queue per spec §4.I
// ("transitions the thread back to runnable and re-enters the event
// queue"). It returns any cross-host packets it produces.
type Callback func(h *host.Host) []scheduler.OutboundPacket

// Emulator runs non-reserved syscalls; implementations are external
// collaborators (spec §6).
type Emulator interface {
	Emulate(t *sysdispatch.Thread, nr uint64, args sysdispatch.SyscallArgs) sysdispatch.Outcome
}

// Sink receives captured packets for pcap writing; optional.
type Sink interface {
	Capture(ifaceName string, t simtime.Time, payload []byte) error
}

// Counters accumulates dispatch-level statistics for the end-of-run report.
type Counters struct {
	SyscallCounts map[uint64]int64
}

// New returns a scheduler.Dispatcher that drains a host's due events and
// interprets PacketArrival, SyscallMade, and Callback payloads.
func New(tbl *sysdispatch.Table, emulator Emulator, sink Sink, counters *Counters) scheduler.Dispatcher {
	return func(h *host.Host, roundEnd simtime.Time) []scheduler.OutboundPacket {
		var out []scheduler.OutboundPacket
		for {
			ev, ok := h.Events.PopIfLE(roundEnd)
			if !ok {
				break
			}
			switch payload := ev.Payload.(type) {
			case PacketArrival:
				handlePacketArrival(h, ev.DeliverTime, payload, sink)
			case SyscallMade:
				handleSyscall(tbl, emulator, payload, counters)
			case Callback:
				out = append(out, payload(h)...)
			}
		}
		return out
	}
}

func handlePacketArrival(h *host.Host, now simtime.Time, pkt PacketArrival, sink Sink) {
	q := h.Interface(pkt.Iface)
	if q == nil {
		return
	}
	if _, admitted := q.Enqueue(now, hostqueue.Packet{Bytes: pkt.Bytes, Payload: pkt.Payload}); !admitted {
		return
	}
	delivered, ok := q.Dequeue(now)
	if !ok || delivered == nil {
		return
	}
	if sink != nil {
		_ = sink.Capture(pkt.Iface, now, pkt.Payload)
	}
}

func handleSyscall(tbl *sysdispatch.Table, emulator Emulator, sc SyscallMade, counters *Counters) sysdispatch.Outcome {
	if counters != nil && counters.SyscallCounts != nil {
		counters.SyscallCounts[sc.Nr]++
	}

	sc.Thread.StopAtSyscall()
	sc.Thread.Emulate()

	var outcome sysdispatch.Outcome
	if h := tbl.Lookup(sc.Nr); h != nil {
		outcome = h(sc.Thread, sc.Args)
	} else if emulator != nil {
		outcome = emulator.Emulate(sc.Thread, sc.Nr, sc.Args)
	} else {
		outcome = sysdispatch.Native()
	}

	switch outcome.Kind {
	case sysdispatch.OutcomeDone, sysdispatch.OutcomeShadowInternal, sysdispatch.OutcomeNative:
		sc.Thread.RunNative()
	case sysdispatch.OutcomeBlock:
		cancel := outcome.Condition.Register(func() {
			if sc.Thread.State() == sysdispatch.BlockedOnCondition {
				sc.Thread.Wake()
			}
		})
		sc.Thread.Block(cancel)
	}
	return outcome
}
