// Package driver owns the external scanner (nmap) child process for one
// stage of a scan: it spawns the process with arguments derived from the
// ScanPlan, streams its XML report incrementally, and turns each completed
// <host> element into one or more types.ScanEvent values.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eidolon-project/eidolon/internal/fingerprint"
	"github.com/eidolon-project/eidolon/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Msg is one item off a driver run: either a parsed event or, as the final
// item before the channel closes, a terminal error (nil on clean success).
type Msg struct {
	Event types.ScanEvent
	Err   error
}

// Driver is the interface the orchestrator drives a scan stage through; the
// real implementation spawns nmap, a fake implementation (used in tests)
// replays a scripted event sequence.
type Driver interface {
	RunPing(ctx context.Context, plan *types.ScanPlan) (<-chan Msg, error)
	RunPort(ctx context.Context, plan *types.ScanPlan, liveHosts []string) (<-chan Msg, error)
}

// killGrace is how long the driver waits after sending terminate before it
// escalates to kill.
const killGrace = 3 * time.Second

// NmapDriver spawns nmap for each stage and parses its XML output.
type NmapDriver struct {
	BinPath string
	Logger  *zap.SugaredLogger
}

// New creates an NmapDriver. binPath defaults to "nmap" if empty.
func New(binPath string, logger *zap.SugaredLogger) *NmapDriver {
	if binPath == "" {
		binPath = "nmap"
	}
	return &NmapDriver{BinPath: binPath, Logger: logger}
}

// RunPing runs a fast host-discovery sweep (-sn) over plan.Hosts.
func (d *NmapDriver) RunPing(ctx context.Context, plan *types.ScanPlan) (<-chan Msg, error) {
	args := []string{"-sn", "-oX", "-"}
	args = withDNSFlag(args, plan.Options.DNSResolution)
	args = withParallelism(args, plan.Options.PingConcurrency)
	args = append(args, plan.Hosts...)
	return d.run(ctx, types.StagePing, args, plan)
}

// RunPort runs a TCP scan of plan.Ports against liveHosts, requesting OS and
// version detection when plan.Options.Aggressive is set.
func (d *NmapDriver) RunPort(ctx context.Context, plan *types.ScanPlan, liveHosts []string) (<-chan Msg, error) {
	if len(liveHosts) == 0 {
		ch := make(chan Msg)
		close(ch)
		return ch, nil
	}

	args := []string{"-Pn"}
	args = append(args, portSpecArgs(plan)...)
	args = withDNSFlag(args, plan.Options.DNSResolution)
	args = withParallelism(args, plan.Options.PortScanWorkers)
	if plan.Options.Aggressive {
		args = append(args, "-O", "-sV")
	}
	args = append(args, "-oX", "-")
	args = append(args, liveHosts...)
	return d.run(ctx, types.StagePort, args, plan)
}

func portSpecArgs(plan *types.ScanPlan) []string {
	if plan.Preset == types.PresetFull {
		return []string{"-p-"}
	}
	if len(plan.Ports) == 0 {
		return nil
	}
	ports := make([]string, len(plan.Ports))
	for i, p := range plan.Ports {
		ports[i] = strconv.Itoa(p)
	}
	return []string{"-p", strings.Join(ports, ",")}
}

func withDNSFlag(args []string, dnsResolution bool) []string {
	if dnsResolution {
		return append(args, "-R")
	}
	return append(args, "-n")
}

func withParallelism(args []string, value int) []string {
	if value <= 0 {
		return args
	}
	return append(args, "--min-parallelism", strconv.Itoa(value), "--max-parallelism", strconv.Itoa(value))
}

// run spawns the child process and streams parsed events back on the
// returned channel, which is closed once the process exits (or is killed)
// and all buffered output has been parsed. Cancellation of ctx sends
// terminate, then kill after killGrace.
func (d *NmapDriver) run(ctx context.Context, stage types.Stage, args []string, plan *types.ScanPlan) (<-chan Msg, error) {
	if _, err := exec.LookPath(d.BinPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrScannerSpawnFailure, d.BinPath, err)
	}

	cmd := exec.Command(d.BinPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrScannerSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrScannerSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrScannerSpawnFailure, err)
	}

	out := make(chan Msg, 64)
	done := make(chan struct{})
	var eventCount int
	var mu sync.Mutex

	limiter := eventLimiter(plan.Options)
	send := func(e types.ScanEvent) {
		_ = limiter.Wait(ctx)
		mu.Lock()
		eventCount++
		mu.Unlock()
		e.Stage = stage
		select {
		case out <- Msg{Event: e}:
		case <-done:
		}
	}

	go d.watchCancellation(ctx, cmd, done)
	go d.streamStderr(stderr, send)

	go func() {
		defer close(done)
		defer close(out)

		parseErr := parseNmapXML(stdout, stage, plan, send)
		waitErr := cmd.Wait()

		mu.Lock()
		n := eventCount
		mu.Unlock()

		switch {
		case ctx.Err() != nil:
			// Cancellation observed; events already parsed were delivered above.
			return
		case waitErr != nil && n == 0:
			out <- Msg{Err: fmt.Errorf("%w: %v", types.ErrScanFailure, waitErr)}
		case waitErr != nil:
			out <- Msg{Err: fmt.Errorf("%w: %v", types.ErrPartialScan, waitErr)}
		case parseErr != nil && n == 0:
			out <- Msg{Err: fmt.Errorf("%w: %v", types.ErrScanFailure, parseErr)}
		}
	}()

	return out, nil
}

// eventLimiter caps how fast parsed events are handed to the orchestrator.
// A very chatty nmap process (e.g. a /16 ping sweep landing thousands of
// hosts at once) would otherwise let stdout parsing outrun everything
// downstream; the limit tracks the same concurrency knobs used to size the
// nmap invocation itself, so a scan configured to run wide also accepts a
// proportionally wider event rate.
func eventLimiter(opts types.ScannerOptions) *rate.Limiter {
	burst := opts.PingConcurrency + opts.PortScanWorkers
	if burst <= 0 {
		burst = 32
	}
	return rate.NewLimiter(rate.Limit(burst*4), burst)
}

func (d *NmapDriver) watchCancellation(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		return
	}
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(processTerminateSignal())
	select {
	case <-done:
		return
	case <-time.After(killGrace):
	}
	_ = cmd.Process.Kill()
}

func (d *NmapDriver) streamStderr(r io.Reader, send func(types.ScanEvent)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		send(types.ScanEvent{
			Kind:    types.EventLogLine,
			Message: line,
			Level:   "info",
		})
	}
}

// identifyFallbackService fills in a service name from the well-known port
// table when nmap reports a port, in any state, with no service name (e.g.
// because -sV was not requested for a non-aggressive scan).
func identifyFallbackService(port types.Port) types.Port {
	if port.Service == "" {
		port.Service = fingerprint.ByPort(port.Port)
	}
	return port
}
