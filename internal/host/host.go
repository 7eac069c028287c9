// Package host implements host lifecycle (component J, spec §4.J): a host
// owns its Root, its event queue, its set of managed processes/threads, and
// its network interfaces (localhost + public), and is the entry point the
// scheduler hands off to each round.
package host

import (
	"fmt"
	"net/netip"

	"github.com/joeycumines/shadowsim/internal/eventqueue"
	"github.com/joeycumines/shadowsim/internal/hostqueue"
	"github.com/joeycumines/shadowsim/internal/ipc"
	"github.com/joeycumines/shadowsim/internal/rootedcell"
	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/joeycumines/shadowsim/internal/sysdispatch"
)

// ID identifies a host across the simulation.
type ID uint64

// DNSRegistry resolves/records host addresses (external collaborator, spec
// §6). Hosts register on construction and deregister on Drop. hostID is
// plain uint64, not ID, so the same concrete type can also satisfy
// sysdispatch.DNSRegistry (hostname_to_addr_ipv4's collaborator) without an
// adapter.
type DNSRegistry interface {
	Register(hostID uint64, hostname string, addr netip.Addr) error
	Deregister(hostID uint64) error
	Resolve(hostname string) (netip.Addr, bool)
}

// Thread is one managed thread belonging to a Process: its syscall
// dispatch state plus its shared-memory IPCData (spec §4.H, §4.I).
type Thread struct {
	Dispatch *sysdispatch.Thread
	IPC      *ipc.Data
}

// drop explicitly releases the thread's IPCData (spec §4.J: "each thread
// explicitly drops its IPCData").
func (t *Thread) drop() {
	t.IPC.Close()
}

// Process is a managed process: a set of threads under one address space.
type Process struct {
	ID      uint64
	Threads []*Thread
}

func (p *Process) drop() {
	for _, t := range p.Threads {
		t.drop()
	}
	p.Threads = nil
}

// Host owns a Root, a per-host event queue, a futex table, one CoDelQueue
// per network interface, and the set of managed processes running on it
// (spec §4.J).
type Host struct {
	ID       ID
	Hostname string
	Addr     netip.Addr

	Root   *rootedcell.Root
	Events *eventqueue.Queue
	Futex  *hostqueue.FutexTable

	interfaces map[string]*hostqueue.CoDelQueue
	processes  []*Process

	dns DNSRegistry
	log simlog.Logger

	// LastRunLP is the logical-processor index this host ran on last round,
	// the locality hint DISTRIBUTE uses to re-place it (spec §4.G: "place
	// its owning worker id on the lp matching h's last-run lp").
	LastRunLP int
}

// New constructs a Host and registers its address with dns (spec §4.J:
// "construction registers its address with the external DNS collaborator").
func New(id ID, hostname string, addr netip.Addr, dns DNSRegistry, log simlog.Logger) (*Host, error) {
	if err := dns.Register(uint64(id), hostname, addr); err != nil {
		return nil, fmt.Errorf("host: register %s: %w", hostname, err)
	}
	hlog := log.With("host", hostname)
	h := &Host{
		ID:         id,
		Hostname:   hostname,
		Addr:       addr,
		Root:       rootedcell.NewRoot(),
		Events:     eventqueue.New(eventqueue.HostID(uint32(id))),
		Futex:      hostqueue.NewFutexTable(),
		interfaces: make(map[string]*hostqueue.CoDelQueue),
		dns:        dns,
		log:        hlog,
	}
	h.interfaces["lo"] = hostqueue.New("lo", hlog)
	h.interfaces["eth0"] = hostqueue.New("eth0", hlog)
	return h, nil
}

// Interface returns the named network interface's CoDel queue, or nil if
// no interface by that name exists on this host.
func (h *Host) Interface(name string) *hostqueue.CoDelQueue {
	return h.interfaces[name]
}

// AddProcess registers a managed process as running on this host.
func (h *Host) AddProcess(p *Process) {
	h.processes = append(h.processes, p)
}

// Drop tears the host down: acquires the root-lock, drains every process
// (each process drains its threads, each thread explicitly drops its
// IPCData), then deregisters from DNS (spec §4.J).
func (h *Host) Drop() error {
	h.Root.Acquire()
	for _, p := range h.processes {
		p.drop()
	}
	h.processes = nil
	h.Root.Release()

	if err := h.dns.Deregister(uint64(h.ID)); err != nil {
		return fmt.Errorf("host: deregister %s: %w", h.Hostname, err)
	}
	return nil
}
