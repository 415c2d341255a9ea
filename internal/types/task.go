package types

import (
	"sync"
	"time"
)

// Stage is where in the ping→port pipeline a Task currently sits.
type Stage string

const (
	StageCreated    Stage = "created"
	StagePing       Stage = "ping"
	StagePort       Stage = "port"
	StageFinalizing Stage = "finalizing"
)

// Status is a Task's terminal or in-flight state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one of the four terminal statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is one user-initiated scan: the unit of cancellation and terminal
// status. Fields are protected by mu; use the accessor methods rather than
// touching them directly from outside the registry package.
type Task struct {
	TaskID    string
	UserID    string
	CreatedAt time.Time

	mu              sync.Mutex
	stage           Stage
	cancelRequested bool
	status          Status
	eventsProcessed map[string]int // per-collector counters, keyed by stage name
	totalEvents     int
	totalEventsSet  bool
	finishedAt      time.Time
	failureReason   string

	Cancel func() // the cancel func of the task's context, set by Registry.Start
}

// NewTask creates a Task in the CREATED stage with status running.
func NewTask(taskID, userID string, now time.Time) *Task {
	return &Task{
		TaskID:          taskID,
		UserID:          userID,
		CreatedAt:       now,
		stage:           StageCreated,
		status:          StatusRunning,
		eventsProcessed: make(map[string]int),
	}
}

// Snapshot is an immutable point-in-time view of a Task, safe to hand to
// callers outside the registry.
type Snapshot struct {
	TaskID          string
	UserID          string
	CreatedAt       time.Time
	Stage           Stage
	CancelRequested bool
	Status          Status
	EventsProcessed map[string]int
	TotalEvents     int
	TotalEventsSet  bool
	FailureReason   string
}

// Snapshot takes a consistent read of the task's current state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	processed := make(map[string]int, len(t.eventsProcessed))
	for k, v := range t.eventsProcessed {
		processed[k] = v
	}
	return Snapshot{
		TaskID:          t.TaskID,
		UserID:          t.UserID,
		CreatedAt:       t.CreatedAt,
		Stage:           t.stage,
		CancelRequested: t.cancelRequested,
		Status:          t.status,
		EventsProcessed: processed,
		TotalEvents:     t.totalEvents,
		TotalEventsSet:  t.totalEventsSet,
		FailureReason:   t.failureReason,
	}
}

// SetStage transitions the task to a new, non-terminal stage.
func (t *Task) SetStage(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

// RequestCancel marks the task for cancellation. Idempotent.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

// CancelRequested reports whether cancellation has been requested.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// IncrEvents bumps the per-collector processed counter by one.
func (t *Task) IncrEvents(collector string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eventsProcessed[collector]++
}

// SetTotalEvents records the denominator once a stage_complete event fixes it.
func (t *Task) SetTotalEvents(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalEvents = n
	t.totalEventsSet = true
}

// Finalize atomically transitions the task to a terminal status. Returns
// false if the task was already terminal, per the "at most once" invariant.
func (t *Task) Finalize(status Status, reason string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.status = status
	t.failureReason = reason
	t.finishedAt = now
	t.stage = StageFinalizing
	return true
}

// Status returns the current status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// FinishedAt returns when the task reached a terminal status, or the zero
// time if it hasn't yet.
func (t *Task) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}
