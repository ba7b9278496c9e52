// Package protocol defines the messages exchanged with the import worker.
//
// A batch is submitted as a Request. The worker answers with a Start event,
// one DirectoriesProgress event, one FilesProgress event per file and
// finally Done, or Failed as soon as anything goes wrong. On the wire every
// event is a flat JSON object:
//
//	{"task":"indexAndCopy","id":"...","action":"progress","filesDone":3}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fruitsalade/mixtape/internal/ingest"
)

// TaskIndexAndCopy identifies the import task in event envelopes.
const TaskIndexAndCopy = "indexAndCopy"

// Event actions.
const (
	ActionStart    = "start"
	ActionProgress = "progress"
	ActionDone     = "done"
	ActionFailed   = "failed"
)

// ErrUnknownEvent is returned by Decode for envelopes it cannot map to a
// variant.
var ErrUnknownEvent = errors.New("unknown event")

// Request is one batch submitted to the worker. Directories must be ordered
// parents before children.
type Request struct {
	ID          string                   `json:"id"`
	Files       []ingest.FileEntity      `json:"files"`
	Directories []ingest.DirectoryEntity `json:"directories"`
}

// NewRequest wraps b in a Request with a fresh id.
func NewRequest(b ingest.Batch) Request {
	return Request{ID: uuid.NewString(), Files: b.Files, Directories: b.Directories}
}

// Event is one of Start, DirectoriesProgress, FilesProgress, Done or Failed.
type Event interface {
	BatchID() string
	Action() string
	json.Marshaler
	isEvent()
}

// Start opens a batch.
type Start struct {
	ID               string
	FilesTotal       int
	DirectoriesTotal int
}

// DirectoriesProgress reports that all directories of the batch exist.
type DirectoriesProgress struct {
	ID              string
	DirectoriesDone int
}

// FilesProgress reports the number of files copied so far.
type FilesProgress struct {
	ID        string
	FilesDone int
}

// Done closes a successful batch.
type Done struct {
	ID string
}

// Failed closes a batch that was aborted. Items handled before the error
// stay in the sandbox.
type Failed struct {
	ID    string
	Error string
}

func (e Start) BatchID() string               { return e.ID }
func (e DirectoriesProgress) BatchID() string { return e.ID }
func (e FilesProgress) BatchID() string       { return e.ID }
func (e Done) BatchID() string                { return e.ID }
func (e Failed) BatchID() string              { return e.ID }

func (Start) Action() string               { return ActionStart }
func (DirectoriesProgress) Action() string { return ActionProgress }
func (FilesProgress) Action() string       { return ActionProgress }
func (Done) Action() string                { return ActionDone }
func (Failed) Action() string              { return ActionFailed }

func (Start) isEvent()               {}
func (DirectoriesProgress) isEvent() {}
func (FilesProgress) isEvent()       {}
func (Done) isEvent()                {}
func (Failed) isEvent()              {}

type envelope struct {
	Task             string `json:"task"`
	ID               string `json:"id"`
	Action           string `json:"action"`
	FilesTotal       *int   `json:"filesTotal,omitempty"`
	FilesDone        *int   `json:"filesDone,omitempty"`
	DirectoriesTotal *int   `json:"directoriesTotal,omitempty"`
	DirectoriesDone  *int   `json:"directoriesDone,omitempty"`
	Error            string `json:"error,omitempty"`
}

func newEnvelope(e Event) envelope {
	return envelope{Task: TaskIndexAndCopy, ID: e.BatchID(), Action: e.Action()}
}

func intp(n int) *int { return &n }

func (e Start) MarshalJSON() ([]byte, error) {
	env := newEnvelope(e)
	env.FilesTotal = intp(e.FilesTotal)
	env.FilesDone = intp(0)
	env.DirectoriesTotal = intp(e.DirectoriesTotal)
	env.DirectoriesDone = intp(0)
	return json.Marshal(env)
}

func (e DirectoriesProgress) MarshalJSON() ([]byte, error) {
	env := newEnvelope(e)
	env.DirectoriesDone = intp(e.DirectoriesDone)
	return json.Marshal(env)
}

func (e FilesProgress) MarshalJSON() ([]byte, error) {
	env := newEnvelope(e)
	env.FilesDone = intp(e.FilesDone)
	return json.Marshal(env)
}

func (e Done) MarshalJSON() ([]byte, error) {
	return json.Marshal(newEnvelope(e))
}

func (e Failed) MarshalJSON() ([]byte, error) {
	env := newEnvelope(e)
	env.Error = e.Error
	return json.Marshal(env)
}

// Decode parses an event envelope.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Task != TaskIndexAndCopy {
		return nil, fmt.Errorf("%w: task %q", ErrUnknownEvent, env.Task)
	}

	switch env.Action {
	case ActionStart:
		return Start{ID: env.ID, FilesTotal: deref(env.FilesTotal), DirectoriesTotal: deref(env.DirectoriesTotal)}, nil
	case ActionProgress:
		switch {
		case env.FilesDone != nil:
			return FilesProgress{ID: env.ID, FilesDone: *env.FilesDone}, nil
		case env.DirectoriesDone != nil:
			return DirectoriesProgress{ID: env.ID, DirectoriesDone: *env.DirectoriesDone}, nil
		}
		return nil, fmt.Errorf("%w: progress without counter", ErrUnknownEvent)
	case ActionDone:
		return Done{ID: env.ID}, nil
	case ActionFailed:
		return Failed{ID: env.ID, Error: env.Error}, nil
	}
	return nil, fmt.Errorf("%w: action %q", ErrUnknownEvent, env.Action)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
