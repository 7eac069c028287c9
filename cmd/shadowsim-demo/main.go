// Demo: running a two-host simulation
//
// This example builds a minimal two-host network (a client and a server,
// joined by a single 10ms link), drives it to completion with shadowsim.Run,
// and prints the resulting ExitStatus.
//
// Run with: go run ./cmd/shadowsim-demo/
package main

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/shadowsim"
	"github.com/joeycumines/shadowsim/internal/host"
)

func main() {
	cfg := shadowsim.Config{
		Hosts: []shadowsim.HostSpec{
			{ID: 1, Hostname: "client0", Addr: netip.MustParseAddr("10.0.0.1")},
			{ID: 2, Hostname: "server0", Addr: netip.MustParseAddr("10.0.0.2")},
		},
		Graph: []shadowsim.Edge{
			{A: host.ID(1), B: host.ID(2), Latency: 10 * time.Millisecond},
		},
		Start:      0,
		Stop:       time.Second,
		NumWorkers: 2,

		MinRunahead:     time.Millisecond,
		DynamicRunahead: true,

		LogWriter: os.Stderr,
		LogLevel:  logiface.LevelInformational,
	}

	status, err := shadowsim.Run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shadowsim: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("exit: code=%d reason=%s\n", status.Code, status.Reason)
}
