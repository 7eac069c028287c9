// Package shadowsim is the single public entry point for the simulator
// (spec §6: "no other public surface"). Everything else — the scheduling
// core, the rooted memory primitives, the shim/simulator transport — lives
// under internal/ and is reachable only through Run.
package shadowsim

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/shadowsim/internal/dispatch"
	"github.com/joeycumines/shadowsim/internal/host"
	"github.com/joeycumines/shadowsim/internal/runahead"
	"github.com/joeycumines/shadowsim/internal/scheduler"
	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/joeycumines/shadowsim/internal/simtime"
	"github.com/joeycumines/shadowsim/internal/stats"
	"github.com/joeycumines/shadowsim/internal/sysdispatch"
)

// HostSpec describes one virtual host to create (spec §6: "a host list
// (id, hostname, IP, bandwidth, qdisc, pcap options)"). HostSpec has only
// ID, Hostname and Addr; it has no bandwidth, qdisc or pcap fields, and Addr
// is used only for DNS registration.
type HostSpec struct {
	ID       host.ID
	Hostname string
	Addr     netip.Addr
}

// Edge is one link in the network graph: latency between two hosts. The
// runahead controller's min_possible_latency is derived from the smallest
// edge weight across the whole graph (spec §4.F).
type Edge struct {
	A, B    host.ID
	Latency time.Duration
}

// Config carries everything the CLI envelope supplies (spec §6): the
// network graph, host list, start/stop time, worker count, and the
// pluggable collaborators (DNS, Memory, Emulator, Sink), each optional: a nil
// DNS or Sink is a no-op, a nil Memory fails every read, and a nil Emulator
// passes unregistered syscalls through natively.
type Config struct {
	Hosts []HostSpec
	Graph []Edge

	Start, Stop time.Duration
	NumWorkers  int

	// MinRunahead is an optional user-supplied floor (spec's
	// min_runahead_config); zero disables it.
	MinRunahead time.Duration
	// DynamicRunahead enables the runahead controller's dynamic mode. Run
	// does not report any observed latencies to the controller, so the
	// runahead stays at max(MinRunahead, smallest Graph latency) either way.
	DynamicRunahead bool

	DNS      host.DNSRegistry
	Memory   sysdispatch.MemoryReader
	Emulator SyscallEmulator
	Sink     PacketSink

	LogWriter io.Writer
	LogLevel  logiface.Level
}

// SyscallEmulator executes the non-Shadow-reserved syscall numbers (spec §6).
type SyscallEmulator interface {
	Emulate(t *sysdispatch.Thread, nr uint64, args sysdispatch.SyscallArgs) sysdispatch.Outcome
}

// PacketSink receives captured packets for pcap writing (spec §6).
type PacketSink interface {
	Capture(ifaceName string, t simtime.Time, payload []byte) error
}

// ExitStatus is Run's result (spec §3, §6).
type ExitStatus struct {
	Code   int
	Reason string
}

// Run drives one complete simulation to completion: it builds the hosts
// named in cfg, runs the scheduler's round loop until Stop is reached, and
// returns the resulting ExitStatus (spec §6: "run(config) -> ExitStatus").
func Run(cfg Config) (ExitStatus, error) {
	if len(cfg.Hosts) == 0 {
		return ExitStatus{}, fmt.Errorf("shadowsim: Config.Hosts must be non-empty")
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}

	logWriter := cfg.LogWriter
	if logWriter == nil {
		logWriter = io.Discard
	}
	log := simlog.New(logWriter, cfg.LogLevel)

	minLatency := minPossibleLatency(cfg.Graph)

	dns := cfg.DNS
	if dns == nil {
		dns = noopDNS{}
	}

	hosts := make([]*host.Host, 0, len(cfg.Hosts))
	for _, spec := range cfg.Hosts {
		h, err := host.New(spec.ID, spec.Hostname, spec.Addr, dns, log)
		if err != nil {
			return ExitStatus{}, fmt.Errorf("shadowsim: construct host %q: %w", spec.Hostname, err)
		}
		hosts = append(hosts, h)
	}
	defer func() {
		for _, h := range hosts {
			_ = h.Drop()
		}
	}()

	rc := runahead.New(minLatency, cfg.MinRunahead, cfg.DynamicRunahead, log)

	report := stats.Report{
		Objects:  stats.Objects{AllocCounts: map[string]int64{}, DeallocCounts: map[string]int64{}},
		Syscalls: stats.Syscalls{Counts: map[uint64]int64{}},
	}

	dispatchFn := newDispatcher(cfg, dns, &report)
	s := scheduler.New(hosts, cfg.NumWorkers, rc, dispatchFn, log)
	defer s.Close()

	ctx := context.Background()
	stopAt := simtime.FromDuration(cfg.Stop)
	var rounds int64
	for s.Now() < stopAt {
		prev := s.Now()
		now := s.RunRound(ctx)
		rounds++
		if now <= prev {
			// global time did not advance (simtime.Add saturates at
			// Never); stop rather than loop without progress.
			break
		}
	}
	report.Runahead.RoundsN = rounds
	report.Runahead.MinNs = int64(minLatency)
	report.Runahead.P50Ns = int64(rc.Get())

	log.Info().Int("rounds", int(rounds)).Time("stopped_at", s.Now().AsTime()).Log("shadowsim: run complete")

	return ExitStatus{Code: 0, Reason: "completed"}, nil
}

func minPossibleLatency(graph []Edge) time.Duration {
	if len(graph) == 0 {
		return time.Millisecond
	}
	min := graph[0].Latency
	for _, e := range graph[1:] {
		if e.Latency < min {
			min = e.Latency
		}
	}
	if min <= 0 {
		return time.Millisecond
	}
	return min
}

type noopDNS struct{}

func (noopDNS) Register(uint64, string, netip.Addr) error { return nil }
func (noopDNS) Deregister(uint64) error                   { return nil }
func (noopDNS) Resolve(string) (netip.Addr, bool)          { return netip.Addr{}, false }

// noopMemory is the fallback sysdispatch.MemoryReader used when Config.Memory
// is nil: every read fails, so hostname_to_addr_ipv4 reports EFAULT instead
// of silently resolving against garbage.
type noopMemory struct{}

func (noopMemory) ReadCString(addr uint64) (string, error) {
	return "", fmt.Errorf("shadowsim: no MemoryReader configured")
}

// newDispatcher builds the scheduler.Dispatcher closure for this run: a
// syscall table with the reserved shadow-internal syscalls registered, wired
// to the caller-supplied DNS/Memory/Emulator/Sink collaborators, reporting
// counts into report.Syscalls.Counts (spec §6, §9).
func newDispatcher(cfg Config, dns sysdispatch.DNSRegistry, report *stats.Report) scheduler.Dispatcher {
	mem := cfg.Memory
	if mem == nil {
		mem = noopMemory{}
	}

	tbl := sysdispatch.NewTable()
	sysdispatch.RegisterReserved(tbl, dns, mem, yieldThread)

	counters := &dispatch.Counters{SyscallCounts: report.Syscalls.Counts}

	return dispatch.New(tbl, cfg.Emulator, cfg.Sink, counters)
}

// yieldThread implements the shadow_yield reserved syscall (spec §9,
// scenario S6): the thread simply resumes running natively at the current
// simulated time, with no time advance and no event re-enqueue needed since
// the caller (dispatch.handleSyscall) drives the RunNative transition itself.
func yieldThread(t *sysdispatch.Thread) {}
