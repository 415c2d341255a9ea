// Package registry tracks in-flight and recently finished scan tasks. It
// enforces at most one running task per user and keeps a terminal task
// around for a retention window so a cancel or status request racing the
// scan's own completion still finds it, rather than reporting not-found.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/eidolon-project/eidolon/internal/types"
	"go.uber.org/zap"
)

// DefaultRetention is how long a terminal task's record is kept after it
// finishes, absent an explicit override.
const DefaultRetention = 5 * time.Minute

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*types.Task
	byUser    map[string]string // userID -> most recent taskID
	retention time.Duration
	logger    *zap.SugaredLogger
}

// New builds a Registry. retention<=0 uses DefaultRetention.
func New(retention time.Duration, logger *zap.SugaredLogger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		tasks:     make(map[string]*types.Task),
		byUser:    make(map[string]string),
		retention: retention,
		logger:    logger,
	}
}

// Start registers a new task for userID. It returns ErrScanAlreadyRunning
// if userID already has a non-terminal task. A prior terminal task for the
// same user stays in the registry until its retention window elapses.
func (r *Registry) Start(userID, taskID string, cancel func(), now time.Time) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked(now)

	if prevID, ok := r.byUser[userID]; ok {
		if prev, ok := r.tasks[prevID]; ok && !prev.Status().IsTerminal() {
			return nil, types.ErrScanAlreadyRunning
		}
	}

	task := types.NewTask(taskID, userID, now)
	task.Cancel = cancel
	r.tasks[taskID] = task
	r.byUser[userID] = taskID
	return task, nil
}

// Get returns the task with taskID, or (nil, false) if it is unknown or has
// aged out of the retention window.
func (r *Registry) Get(taskID string) (*types.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	return task, ok
}

// Cancel requests cancellation of taskID. It returns ErrTaskNotFound if the
// task is unknown, ErrAlreadyTerminal if it has already reached a terminal
// status (including one retained only for late lookups).
func (r *Registry) Cancel(taskID string) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	r.mu.Unlock()

	if !ok {
		return types.ErrTaskNotFound
	}
	if task.Status().IsTerminal() {
		return types.ErrAlreadyTerminal
	}

	task.RequestCancel()
	if task.Cancel != nil {
		task.Cancel()
	}
	return nil
}

// Finalize transitions taskID to a terminal status. It is a no-op error
// (ErrAlreadyTerminal) if the task already finalized, matching Task's own
// at-most-once contract.
func (r *Registry) Finalize(taskID string, status types.Status, reason string, now time.Time) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	r.mu.Unlock()

	if !ok {
		return types.ErrTaskNotFound
	}
	if !task.Finalize(status, reason, now) {
		return types.ErrAlreadyTerminal
	}
	return nil
}

// Sweep evicts terminal tasks whose retention window has elapsed.
func (r *Registry) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, task := range r.tasks {
		if !task.Status().IsTerminal() {
			continue
		}
		if now.Sub(task.FinishedAt()) >= r.retention {
			delete(r.tasks, id)
			if r.byUser[task.UserID] == id {
				delete(r.byUser, task.UserID)
			}
		}
	}
}

// RunningCount reports the number of non-terminal tasks, for /ready checks.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, task := range r.tasks {
		if !task.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// HistoryForUser returns snapshots of userID's terminal tasks still held
// within the retention window, most recently finished first. Running tasks
// are excluded; callers wanting the active task use Get with its task_id.
func (r *Registry) HistoryForUser(userID string, limit int) []types.Snapshot {
	r.mu.Lock()
	snaps := make([]types.Snapshot, 0, len(r.tasks))
	for _, task := range r.tasks {
		if task.UserID != userID || !task.Status().IsTerminal() {
			continue
		}
		snaps = append(snaps, task.Snapshot())
	}
	r.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps
}

// Shutdown requests cancellation of every non-terminal task, used during
// graceful process shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	tasks := make([]*types.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.Unlock()

	for _, task := range tasks {
		if task.Status().IsTerminal() {
			continue
		}
		task.RequestCancel()
		if task.Cancel != nil {
			task.Cancel()
		}
	}
}
