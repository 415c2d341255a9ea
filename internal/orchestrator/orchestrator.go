// Package orchestrator drives one scan task through its state machine:
// CREATED → PING → PORT → FINALIZING → {COMPLETE|PARTIAL|FAILED|CANCELLED}.
// It owns no subprocess directly; it consumes a Driver's event stream,
// writes host results through a GraphWriter, and republishes every event
// (plus its own progress ticks) onto a Publisher under the task's
// sequence number.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/eidolon-project/eidolon/internal/driver"
	"github.com/eidolon-project/eidolon/internal/types"
	"go.uber.org/zap"
)

// DefaultPingTimeout and DefaultPortTimeout are the per-stage wall-clock
// caps applied when an Orchestrator is not given an override.
const (
	DefaultPingTimeout = 30 * time.Minute
	DefaultPortTimeout = 6 * time.Hour
	tickInterval       = time.Second
)

// GraphWriter is the subset of *graph.Writer the orchestrator needs.
type GraphWriter interface {
	UpsertHost(ctx context.Context, cidr string, host types.HostInfo) error
}

// Publisher is the subset of *bus.Bus the orchestrator needs.
type Publisher interface {
	Publish(event types.ScanEvent)
	Close(taskID string)
}

// Orchestrator runs scans. One instance may drive many tasks concurrently;
// all mutable per-task state lives in the run value created by Run.
type Orchestrator struct {
	Driver      driver.Driver
	Writer      GraphWriter
	Bus         Publisher
	Logger      *zap.SugaredLogger
	PingTimeout time.Duration
	PortTimeout time.Duration
}

// New builds an Orchestrator with the default stage timeouts.
func New(d driver.Driver, w GraphWriter, b Publisher, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		Driver:      d,
		Writer:      w,
		Bus:         b,
		Logger:      logger,
		PingTimeout: DefaultPingTimeout,
		PortTimeout: DefaultPortTimeout,
	}
}

// Run executes task to completion, publishing every event on o.Bus and
// finalizing task's terminal status before returning. It blocks until the
// task reaches a terminal state; callers run it in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context, task *types.Task, plan *types.ScanPlan) {
	r := &run{
		o:         o,
		task:      task,
		plan:      plan,
		pingHosts: make(map[string]types.HostInfo),
	}
	r.execute(ctx)
}

// run holds the mutable state of one task's execution. Its counters are
// mutex-protected only where the progress ticker goroutine reads them
// concurrently with the event loop.
type run struct {
	o    *Orchestrator
	task *types.Task
	plan *types.ScanPlan

	mu         sync.Mutex
	seq        uint64
	hostsTotal int
	hostsDone  int

	pingHosts map[string]types.HostInfo // accumulated ping-stage metadata, by IP
}

func (r *run) execute(ctx context.Context) {
	now := time.Now
	liveHosts, assetEvents, stageErr := r.runPingStage(ctx)

	if stageErr != nil {
		r.finalizeAfterDriverError(stageErr, assetEvents, now())
		return
	}
	if ctx.Err() != nil {
		r.finalize(types.StatusCancelled, "cancelled during ping stage", now())
		return
	}
	if len(liveHosts) == 0 {
		r.task.SetTotalEvents(r.totalEvents())
		r.finalize(types.StatusComplete, "", now())
		return
	}

	portAssetEvents, portErr := r.runPortStage(ctx, liveHosts)

	if portErr != nil {
		r.finalizeAfterDriverError(portErr, assetEvents+portAssetEvents, now())
		return
	}
	if ctx.Err() != nil {
		r.finalize(types.StatusCancelled, "cancelled during port stage", now())
		return
	}

	r.task.SetTotalEvents(r.totalEvents())
	r.finalize(types.StatusComplete, "", now())
}

func (r *run) finalizeAfterDriverError(err error, assetEvents int, now time.Time) {
	r.task.SetTotalEvents(r.totalEvents())
	if assetEvents == 0 {
		r.finalize(types.StatusFailed, err.Error(), now)
		return
	}
	r.finalize(types.StatusPartial, err.Error(), now)
}

func (r *run) finalize(status types.Status, reason string, now time.Time) {
	r.task.SetStage(types.StageFinalizing)
	if !r.task.Finalize(status, reason, now) {
		return
	}
	r.publish(types.ScanEvent{Kind: types.EventStageComplete, Stage: types.StageFinalizing})
	r.o.Bus.Close(r.task.TaskID)
}

func (r *run) totalEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostsDone
}

// nextSeq returns the next per-task sequence number, starting at 0.
func (r *run) nextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.seq
	r.seq++
	return seq
}

func (r *run) publish(event types.ScanEvent) {
	event = event.WithSeqAndTime(r.task.TaskID, r.nextSeq(), time.Now())
	r.o.Bus.Publish(event)
}

func (r *run) setProgress(total, done int) {
	r.mu.Lock()
	r.hostsTotal = total
	r.hostsDone = done
	r.mu.Unlock()
}

func (r *run) incrDone() {
	r.mu.Lock()
	r.hostsDone++
	r.mu.Unlock()
}

func (r *run) progressSnapshot() (total, done int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostsTotal, r.hostsDone
}

// startTicker emits a progress_tick at least once per tickInterval until
// stop is closed, so an idle subscriber still observes liveness.
func (r *run) startTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			total, done := r.progressSnapshot()
			r.publish(types.ScanEvent{Kind: types.EventProgressTick, HostsTotal: total, HostsDone: done})
		}
	}
}
