// Package tasks keeps progress records of import batches for display.
package tasks

import (
	"sync"
	"time"

	"github.com/fruitsalade/mixtape/internal/protocol"
)

// Status of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusFailed     Status = "failed"
	StatusSuccess    Status = "success"
)

// DefaultDisplay labels import batches.
const DefaultDisplay = "Copying and indexing"

// Task is the progress record of one batch. Parts are files.
type Task struct {
	ID         string    `json:"id"`
	Display    string    `json:"display"`
	PartsCount int       `json:"partsCount"`
	PartsDone  int       `json:"partsDone"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Percent returns completion rounded down, 0 for empty tasks.
func (t Task) Percent() int {
	if t.PartsCount <= 0 {
		return 0
	}
	return t.PartsDone * 100 / t.PartsCount
}

// Tracker folds worker events into task records.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*Task)}
}

// Apply updates the record of the event's batch. Events for unknown
// batches other than Start are ignored.
func (t *Tracker) Apply(e protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := e.(protocol.Start); ok {
		if _, exists := t.tasks[s.ID]; !exists {
			t.order = append(t.order, s.ID)
		}
		t.tasks[s.ID] = &Task{
			ID:         s.ID,
			Display:    DefaultDisplay,
			PartsCount: s.FilesTotal,
			Status:     StatusPending,
			UpdatedAt:  time.Now(),
		}
		return
	}

	task, ok := t.tasks[e.BatchID()]
	if !ok {
		return
	}
	switch e := e.(type) {
	case protocol.DirectoriesProgress:
		task.Status = StatusInProgress
	case protocol.FilesProgress:
		task.Status = StatusInProgress
		task.PartsDone = min(max(e.FilesDone, 0), task.PartsCount)
	case protocol.Done:
		task.Status = StatusSuccess
		task.PartsDone = task.PartsCount
	case protocol.Failed:
		task.Status = StatusFailed
		task.Error = e.Error
	}
	task.UpdatedAt = time.Now()
}

// List returns copies of all records in start order.
func (t *Tracker) List() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Task, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}
	return out
}

// Get returns a copy of one record.
func (t *Tracker) Get(id string) (Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Remove forgets a record.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[id]; !ok {
		return
	}
	delete(t.tasks, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
