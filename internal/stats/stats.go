// Package stats writes the simulation's end-of-run statistics: a JSON file
// for machine consumption and a companion human-readable text summary
// (SPEC_FULL §6, "Statistics JSON"). The JSON itself is encoded with the
// stdlib encoding/json at this IO boundary (see DESIGN.md for why no pack
// library fits better there); the text summary's duration/rate fields go
// through floater's fixed-point formatter instead of strconv, the way the
// teacher formats user-facing numeric output.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/floater"
)

// Objects tracks allocation/deallocation counts, keyed by type name, for
// the rootedcell objects a run created (spec invariant: object counting).
type Objects struct {
	AllocCounts   map[string]int64 `json:"alloc_counts"`
	DeallocCounts map[string]int64 `json:"dealloc_counts"`
}

// Syscalls tracks how many times each syscall number was dispatched.
type Syscalls struct {
	Counts map[uint64]int64 `json:"counts"`
}

// Runahead captures end-of-run runahead statistics as the caller fills them
// in; this package computes none of them. shadowsim.Run stores the runahead
// controller's final Get() value in P50Ns (no percentile is computed), the
// graph's minimum latency in MinNs, and the number of rounds run in RoundsN.
type Runahead struct {
	P50Ns   int64 `json:"p50_runahead_ns"`
	MinNs   int64 `json:"min_runahead_ns"`
	RoundsN int64 `json:"rounds"`
}

// Report is the top-level statistics document for one simulation run.
type Report struct {
	Objects  Objects  `json:"objects"`
	Syscalls Syscalls `json:"syscalls"`
	Runahead Runahead `json:"runahead"`
}

// WriteJSON encodes r as indented JSON to w.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a short human-readable summary of r to w, formatting
// every duration/rate figure via floater instead of fmt's default %v, the
// same way the teacher reserves a dedicated formatter for numbers that
// face a human rather than a wire.
func WriteText(w io.Writer, r Report) error {
	p50 := formatDuration(time.Duration(r.Runahead.P50Ns))
	minR := formatDuration(time.Duration(r.Runahead.MinNs))

	_, err := fmt.Fprintf(w,
		"runahead: p50=%s min=%s rounds=%d\nsyscalls dispatched: %d distinct numbers\n",
		p50, minR, r.Runahead.RoundsN, len(r.Syscalls.Counts),
	)
	return err
}

// formatDuration renders d as seconds.nanoseconds using floater's
// units+nanos formatter, trimming trailing zeros.
func formatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	nanos := int32(d % time.Second)
	return floater.FormatUnitsNanosTrimmed(secs, nanos) + "s"
}
