// Package scheduler implements the round driver (component G, spec §4.G):
// the IDLE -> DISTRIBUTE -> RUN -> JOIN -> COMMIT -> IDLE state machine that
// drains every host's event queue up to a runahead-bounded round_end, then
// barriers and advances global time.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
	"github.com/joeycumines/shadowsim/internal/host"
	"github.com/joeycumines/shadowsim/internal/lp"
	"github.com/joeycumines/shadowsim/internal/runahead"
	"github.com/joeycumines/shadowsim/internal/simlog"
	"github.com/joeycumines/shadowsim/internal/simtime"
)

// Phase is the round driver's current state.
type Phase uint8

const (
	Idle Phase = iota
	Distribute
	Run
	Join
	Commit
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Distribute:
		return "Distribute"
	case Run:
		return "Run"
	case Join:
		return "Join"
	case Commit:
		return "Commit"
	default:
		return "Unknown"
	}
}

// Dispatcher runs a single host's due events up to round_end and reports any
// packets that must be delivered to other hosts this round. It is supplied
// by the caller so this package stays agnostic of payload types.
type Dispatcher func(h *host.Host, roundEnd simtime.Time) []OutboundPacket

// OutboundPacket is a cross-host delivery produced while running a host,
// deferred to the next round's DISTRIBUTE per the runahead safety property
// (spec §4.G: "delivered via per-target inbox that's drained at the start
// of the next round — never in the same round").
type OutboundPacket struct {
	Dest        host.ID
	DeliverTime simtime.Time
	Seq         uint64
	Payload     any
}

// Scheduler owns the round state machine and the collaborators it wires
// together: the logical-processor pool, the runahead controller, and the
// per-host inboxes cross-host packets land in between rounds.
type Scheduler struct {
	hosts      map[host.ID]*host.Host
	order      []host.ID // host_id order, fixed at construction (spec §4.G: "hosts run in host_id order within an lp")
	pool       *lp.Pool
	runahead   *runahead.Controller
	dispatch   Dispatcher
	log        simlog.Logger
	numWorkers int

	phase    Phase
	now      simtime.Time
	roundEnd simtime.Time

	inboxMu sync.Mutex
	inbox   map[host.ID][]OutboundPacket

	batcher *microbatch.Batcher[*deliveryJob]
}

type deliveryJob struct {
	pkt OutboundPacket
	seq uint64 // global submission order, for restoring determinism post-batch
}

// New builds a Scheduler. hosts may be supplied in any order: New sorts them
// by ID, and that order is the host_id tiebreak order used within a logical
// processor (spec §5: "the set of hosts that runs ... is therefore a
// function only of the host-id tiebreak").
func New(hosts []*host.Host, numWorkers int, rc *runahead.Controller, dispatch Dispatcher, log simlog.Logger) *Scheduler {
	sorted := append([]*host.Host(nil), hosts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[host.ID]*host.Host, len(sorted))
	order := make([]host.ID, len(sorted))
	for i, h := range sorted {
		byID[h.ID] = h
		order[i] = h.ID
	}

	s := &Scheduler{
		hosts:      byID,
		order:      order,
		pool:       lp.New(numWorkers, len(sorted)),
		runahead:   rc,
		dispatch:   dispatch,
		log:        log,
		numWorkers: numWorkers,
		inbox:      make(map[host.ID][]OutboundPacket),
	}

	for i, id := range order {
		s.hosts[id].LastRunLP = i % numWorkers
	}

	// Batched COMMIT-phase delivery (spec SPEC_FULL §4.G, scenario S8):
	// outbound packets from the whole round are grouped through a
	// microbatch.Batcher so delivery to many destination hosts happens as a
	// small number of batch calls rather than one call per packet, while the
	// processor re-sorts each batch by submission seq so the result is
	// order-preserving regardless of how the batch was assembled.
	s.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       256,
		FlushInterval: time.Millisecond,
	}, s.processDeliveryBatch)

	return s
}

// Phase returns the round driver's current state.
func (s *Scheduler) Phase() Phase { return s.phase }

// Now returns the scheduler's current global virtual time.
func (s *Scheduler) Now() simtime.Time { return s.now }

// Close releases the COMMIT-phase batcher's background resources.
func (s *Scheduler) Close() error {
	return s.batcher.Close()
}

// RunRound executes exactly one DISTRIBUTE -> RUN -> JOIN -> COMMIT cycle
// and returns the new global time (== the round's round_end).
func (s *Scheduler) RunRound(ctx context.Context) simtime.Time {
	s.distribute()
	s.run(ctx)
	s.join()
	return s.commit(ctx)
}

func (s *Scheduler) distribute() {
	s.phase = Distribute
	roundEnd := s.now.Add(s.runahead.Get())
	s.roundEnd = roundEnd

	for _, id := range s.order {
		h := s.hosts[id]
		t, ok := h.Events.PeekTime()
		if ok && t <= roundEnd {
			s.pool.AddWorker(h.LastRunLP, lp.WorkerID(id))
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.phase = Run

	var wg sync.WaitGroup
	for lpi := 0; lpi < s.numWorkers; lpi++ {
		lpi := lpi
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				w, _, ok := s.pool.NextWorker(lpi)
				if !ok {
					return
				}
				s.runHost(ctx, lpi, host.ID(w))
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runHost(ctx context.Context, lpi int, id host.ID) {
	h := s.hosts[id]
	h.Root.Acquire()
	defer h.Root.Release()

	h.LastRunLP = lpi

	out := s.dispatch(h, s.roundEnd)
	if len(out) == 0 {
		return
	}
	s.inboxMu.Lock()
	for _, pkt := range out {
		s.inbox[pkt.Dest] = append(s.inbox[pkt.Dest], pkt)
	}
	s.inboxMu.Unlock()
}

func (s *Scheduler) join() {
	s.phase = Join
	s.pool.Reset()
}

func (s *Scheduler) commit(ctx context.Context) simtime.Time {
	s.phase = Commit
	s.now = s.roundEnd

	s.inboxMu.Lock()
	pending := s.inbox
	s.inbox = make(map[host.ID][]OutboundPacket)
	s.inboxMu.Unlock()

	// Walk pending in fixed host_id order, not map iteration order, so the
	// stamped seq (and therefore the post-batch delivery order) is a
	// function only of simulation state, never of Go's randomized map
	// iteration (spec §5: "per-round ordering ... is therefore a function
	// only of the host-id tiebreak, not of wall-clock races").
	var jobs []*deliveryJob
	var seq uint64
	for _, id := range s.order {
		for _, pkt := range pending[id] {
			seq++
			jobs = append(jobs, &deliveryJob{pkt: pkt, seq: seq})
		}
	}

	// Submit concurrently (the ping/pong handshake only confirms acceptance
	// into a pending batch), but commit() must not return — and must not let
	// the next round's distribute()/runHost() start touching these hosts'
	// event queues — until every submitted job's batch has actually run.
	// Per microbatch.Batcher.Submit's own doc comment, Submit returns as soon
	// as the job is accepted; JobResult.Wait is what blocks for the batch's
	// BatchProcessor call to complete, so the round-boundary delivery
	// guarantee (spec §4.G) depends on waiting on every result here, not on
	// wg.Wait() over the submission goroutines alone.
	results := make([]*microbatch.JobResult[*deliveryJob], len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, j := range jobs {
		i, j := i, j
		go func() {
			defer wg.Done()
			res, err := s.batcher.Submit(ctx, j)
			if err != nil {
				s.log.Error().Err(err).Log("scheduler: commit-phase delivery failed")
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		if err := res.Wait(ctx); err != nil {
			s.log.Error().Err(err).Log("scheduler: commit-phase batch failed")
		}
	}

	s.phase = Idle
	return s.now
}

// processDeliveryBatch is the microbatch.BatchProcessor for COMMIT-phase
// delivery: it restores deterministic submission order within the batch
// (concurrent Submit calls may arrive in any order) before appending each
// packet onto its destination host's event queue. This runs on the
// Batcher's own background goroutine, not on a round-driver worker, so it
// must still go through the destination host's root-lock exactly like
// runHost does — eventqueue.Queue documents itself as requiring the owning
// host's lock for every call, and the batcher has no other way of knowing
// that.
func (s *Scheduler) processDeliveryBatch(ctx context.Context, jobs []*deliveryJob) error {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].seq < jobs[j].seq })
	for _, j := range jobs {
		h, ok := s.hosts[j.pkt.Dest]
		if !ok {
			continue
		}
		h.Root.Acquire()
		h.Events.Push(j.pkt.DeliverTime, j.pkt.Payload)
		h.Root.Release()
	}
	return nil
}
