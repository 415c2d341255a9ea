package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eidolon-project/eidolon/internal/driver"
	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDriver replays fixed event sequences for ping and port stages,
// used in place of a real nmap invocation.
type scriptedDriver struct {
	pingEvents []types.ScanEvent
	pingErr    error
	portEvents []types.ScanEvent
	portErr    error

	// cancelAfter, if set, closes the channel early (simulating observed
	// cancellation) once this many ping events have been sent.
	cancelAfter int
	cancelFn    context.CancelFunc
}

func (d *scriptedDriver) RunPing(ctx context.Context, plan *types.ScanPlan) (<-chan driver.Msg, error) {
	ch := make(chan driver.Msg, len(d.pingEvents)+1)
	go func() {
		defer close(ch)
		for i, e := range d.pingEvents {
			if d.cancelAfter > 0 && i == d.cancelAfter && d.cancelFn != nil {
				d.cancelFn()
				return
			}
			ch <- driver.Msg{Event: e}
		}
		if d.pingErr != nil {
			ch <- driver.Msg{Err: d.pingErr}
		}
	}()
	return ch, nil
}

func (d *scriptedDriver) RunPort(ctx context.Context, plan *types.ScanPlan, liveHosts []string) (<-chan driver.Msg, error) {
	ch := make(chan driver.Msg, len(d.portEvents)+1)
	go func() {
		defer close(ch)
		for _, e := range d.portEvents {
			ch <- driver.Msg{Event: e}
		}
		if d.portErr != nil {
			ch <- driver.Msg{Err: d.portErr}
		}
	}()
	return ch, nil
}

type fakeWriter struct {
	mu    sync.Mutex
	hosts map[string]types.HostInfo
	failN map[string]int // ip -> remaining failures before success
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{hosts: make(map[string]types.HostInfo), failN: make(map[string]int)}
}

func (w *fakeWriter) UpsertHost(ctx context.Context, cidr string, host types.HostInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := w.failN[host.IP]; n > 0 {
		w.failN[host.IP]--
		return errors.New("simulated write failure")
	}
	w.hosts[host.IP] = host
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []types.ScanEvent
	closed []string
}

func (p *fakePublisher) Publish(event types.ScanEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) Close(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, taskID)
}

func (p *fakePublisher) kinds() []types.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func testPlan() *types.ScanPlan {
	return &types.ScanPlan{
		Hosts:  []string{"10.0.0.5"},
		Ranges: []types.HostRange{{Start: 0x0A000005, End: 0x0A000005, CIDR: "10.0.0.5/32"}},
		Ports:  []int{22, 80},
	}
}

func TestOrchestrator_S1SingleHostComplete(t *testing.T) {
	d := &scriptedDriver{
		pingEvents: []types.ScanEvent{
			{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.5", CIDR: "10.0.0.5/32"}},
		},
		portEvents: []types.ScanEvent{
			{Kind: types.EventPortState, Host: types.HostInfo{
				IP:   "10.0.0.5",
				CIDR: "10.0.0.5/32",
				Ports: []types.Port{
					{Port: 22, Proto: "tcp", State: "open"},
					{Port: 80, Proto: "tcp", State: "closed"},
				},
			}},
		},
	}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-1", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	assert.Equal(t, types.StatusComplete, task.Status())
	require.Contains(t, writer.hosts, "10.0.0.5")
	require.Len(t, writer.hosts["10.0.0.5"].Ports, 2)
}

func TestOrchestrator_S2EmptyPingCompletesWithNoAssets(t *testing.T) {
	d := &scriptedDriver{pingEvents: []types.ScanEvent{
		{Kind: types.EventHostDown, Host: types.HostInfo{IP: "10.0.0.5"}},
	}}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-2", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	assert.Equal(t, types.StatusComplete, task.Status())
	assert.Empty(t, writer.hosts)
}

func TestOrchestrator_S3CancellationObserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &scriptedDriver{
		pingEvents: []types.ScanEvent{
			{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.1"}},
			{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.2"}},
		},
		cancelAfter: 1,
		cancelFn:    cancel,
	}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-3", "user-1", time.Now())
	o.Run(ctx, task, testPlan())

	assert.Equal(t, types.StatusCancelled, task.Status())
}

func TestOrchestrator_S5WriterFailureSkipsHostButCompletes(t *testing.T) {
	d := &scriptedDriver{
		pingEvents: []types.ScanEvent{
			{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.7"}},
			{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.8"}},
		},
		portEvents: []types.ScanEvent{
			{Kind: types.EventPortState, Host: types.HostInfo{IP: "10.0.0.7", Ports: []types.Port{{Port: 22, Proto: "tcp", State: "open"}}}},
			{Kind: types.EventPortState, Host: types.HostInfo{IP: "10.0.0.8", Ports: []types.Port{{Port: 22, Proto: "tcp", State: "open"}}}},
		},
	}
	writer := newFakeWriter()
	writer.failN["10.0.0.7"] = 3 // fails the orchestrator's single write for this host, so it is skipped
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-5", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	assert.Equal(t, types.StatusComplete, task.Status())
	assert.NotContains(t, writer.hosts, "10.0.0.7")
	assert.Contains(t, writer.hosts, "10.0.0.8")
	assert.Contains(t, pub.kinds(), types.EventLogLine)
}

func TestOrchestrator_DriverFailureWithNoEventsIsFailed(t *testing.T) {
	d := &scriptedDriver{pingErr: errors.New("scanner spawn failure")}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-6", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	assert.Equal(t, types.StatusFailed, task.Status())
}

func TestOrchestrator_DriverFailureAfterSomeEventsIsPartial(t *testing.T) {
	d := &scriptedDriver{
		pingEvents: []types.ScanEvent{{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.5"}}},
		pingErr:    errors.New("scanner crashed mid-sweep"),
	}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-7", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	assert.Equal(t, types.StatusPartial, task.Status())
}

func TestOrchestrator_PublishesProgressAndStageCompleteEvents(t *testing.T) {
	d := &scriptedDriver{
		pingEvents: []types.ScanEvent{{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.5"}}},
		portEvents: []types.ScanEvent{{Kind: types.EventPortState, Host: types.HostInfo{IP: "10.0.0.5"}}},
	}
	writer := newFakeWriter()
	pub := &fakePublisher{}
	o := New(d, writer, pub, nil)

	task := types.NewTask("task-8", "user-1", time.Now())
	o.Run(context.Background(), task, testPlan())

	kinds := pub.kinds()
	assert.Contains(t, kinds, types.EventStageComplete)
	assert.Contains(t, kinds, types.EventHostUp)
	assert.Contains(t, kinds, types.EventPortState)
}
