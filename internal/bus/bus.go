// Package bus fans out ScanEvents from one orchestrator run to any number
// of subscribers (SSE handlers, an optional AMQP sink) without letting a
// slow subscriber stall the scan: each subscription owns a bounded queue
// and the bus drops the oldest queued event rather than block on publish.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultQueueCap is the per-subscription queue depth used when New is
// given a non-positive capacity.
const DefaultQueueCap = 1024

// Subscription is a live handle a caller ranges over to receive events.
type Subscription struct {
	Info types.SubscriptionInfo
	C    <-chan types.ScanEvent

	bus *Bus
	id  string
}

// Close unsubscribes and stops further delivery to this subscription's
// channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s.id)
}

// DroppedCount returns the number of events evicted from this
// subscription's queue because it fell behind.
func (s *Subscription) DroppedCount() uint64 {
	sub := s.bus.sub(s.id)
	if sub == nil {
		return 0
	}
	return atomic.LoadUint64(&sub.dropped)
}

type subscriber struct {
	id      string
	taskID  string // "" subscribes to every task
	ch      chan types.ScanEvent
	dropped uint64
	created time.Time
}

// Bus is a process-local pub/sub keyed by task id, plus an optional AMQP
// sink that mirrors every event published (best-effort; Publish calls the
// sink synchronously, so a slow broker delays Publish by up to the sink's
// own publish timeout).
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber
	queueCap int
	sink     Sink
	metrics  *Metrics
	logger   *zap.SugaredLogger
}

// Sink is an optional external fan-out target, implemented by AMQPSink.
type Sink interface {
	Publish(event types.ScanEvent)
	Close() error
}

// New builds a Bus. queueCap<=0 uses DefaultQueueCap. sink may be nil.
func New(queueCap int, sink Sink, metrics *Metrics, logger *zap.SugaredLogger) *Bus {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Bus{
		subs:     make(map[string]*subscriber),
		queueCap: queueCap,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
	}
}

// Subscribe opens a new subscription. taskID == "" receives events for
// every task (used by an operator-facing "all activity" stream).
func (b *Bus) Subscribe(taskID string) *Subscription {
	sub := &subscriber{
		id:      uuid.New().String(),
		taskID:  taskID,
		ch:      make(chan types.ScanEvent, b.queueCap),
		created: time.Now(),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SubscriptionsOpen.Inc()
	}

	return &Subscription{
		Info: types.SubscriptionInfo{
			SubscriptionID: sub.id,
			TaskID:         taskID,
			CreatedAt:      sub.created,
		},
		C:   sub.ch,
		bus: b,
		id:  sub.id,
	}
}

// Unsubscribe removes and closes a subscription's channel. Idempotent.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
		if b.metrics != nil {
			b.metrics.SubscriptionsOpen.Dec()
		}
	}
}

func (b *Bus) sub(id string) *subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[id]
}

// Publish delivers event to every subscription whose taskID matches
// event.TaskID or is the wildcard "". Delivery never blocks: if a
// subscriber's queue is full, the oldest queued event is dropped to make
// room, and DroppedCount is incremented.
func (b *Bus) Publish(event types.ScanEvent) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.taskID == "" || sub.taskID == event.TaskID {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		deliver(sub, event)
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.Inc()
	}
	if b.sink != nil {
		b.sink.Publish(event)
	}
}

func deliver(sub *subscriber, event types.ScanEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Queue is full: evict the oldest entry and retry once. Another
	// publisher could win the race for the freed slot, in which case we
	// drop this event instead of looping, since the queue depth is a
	// deliberate freshness bound, not a correctness one.
	select {
	case <-sub.ch:
		atomic.AddUint64(&sub.dropped, 1)
	default:
	}

	select {
	case sub.ch <- event:
	default:
		atomic.AddUint64(&sub.dropped, 1)
	}
}

// Close marks taskID's topic complete: every subscription scoped to exactly
// that task (not a wildcard "" subscription serving other tasks too) has its
// channel closed once its already-queued events are drained, so a caller
// ranging over Subscription.C sees a clean end-of-stream instead of blocking
// forever waiting for an event that will never come. Call this once a task
// reaches a terminal state.
func (b *Bus) Close(taskID string) {
	b.mu.Lock()
	var targets []*subscriber
	for id, sub := range b.subs {
		if sub.taskID == taskID {
			targets = append(targets, sub)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		close(sub.ch)
		if b.metrics != nil {
			b.metrics.SubscriptionsOpen.Dec()
		}
	}
}

// Shutdown closes every open subscription's channel and the AMQP sink, if
// any. Intended for process shutdown, after all tasks have been finalized.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	if b.sink != nil {
		if err := b.sink.Close(); err != nil && b.logger != nil {
			b.logger.Warnw("bus sink close failed", "error", err)
		}
	}
}
