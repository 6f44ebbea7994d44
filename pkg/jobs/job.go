// Package jobs runs long generations in the background and reports their
// progress, ETA and final result to pollers.
package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

type Type string

const (
	TypeGenerate Type = "generate"
	TypeEnhance  Type = "enhance"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrFinished    = errors.New("job already finished")
	ErrUnknownType = errors.New("unknown job type")
)

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job is the status snapshot handed to pollers. ETASeconds is nil until an
// estimate exists.
type Job struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Status     Status          `json:"status"`
	Progress   Progress        `json:"progress"`
	ETASeconds *int            `json:"eta_seconds"`
	Result     string          `json:"result,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	c := *j
	if j.ETASeconds != nil {
		v := *j.ETASeconds
		c.ETASeconds = &v
	}
	if j.Meta != nil {
		c.Meta = append(json.RawMessage(nil), j.Meta...)
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		c.FinishedAt = &v
	}
	return &c
}

// Outcome is what a finished run contributes to its job.
type Outcome struct {
	Result string
	Meta   json.RawMessage
}

// Task is the unit handed to a Dispatcher and, for queue dispatch, the body
// of the published message.
type Task struct {
	JobID   string          `json:"job_id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func intPtr(v int) *int {
	return &v
}
