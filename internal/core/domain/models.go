package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a tracked job.
type State string

const (
	StateIdle        State = "idle"
	StateDispatching State = "dispatching"
	StatePolling     State = "polling"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateTimedOut    State = "timed_out"
)

// Terminal reports whether no further transitions happen without a Reset.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Active reports whether a job is being dispatched or polled.
func (s State) Active() bool {
	return s == StateDispatching || s == StatePolling
}

// Status is the classified outcome of one account or of the whole log.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusFailed         Status = "failed"
	StatusAlreadyApplied Status = "already_applied"
)

// Label returns the human readable form used in summaries.
func (s Status) Label() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusError:
		return "Error"
	case StatusAlreadyApplied:
		return "Already Applied"
	default:
		return "Failed"
	}
}

// Job represents a single batch submitted to the execution platform.
type Job struct {
	ID        string    `json:"job_id"`
	Entities  []Entity  `json:"accounts"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// LogRecord is the text of the log entry extracted from an artifact.
type LogRecord struct {
	Entry string
	Text  string
}

// AccountResult is the classified outcome of one log section.
type AccountResult struct {
	Index  int    `json:"index" yaml:"index"`
	Name   string `json:"name" yaml:"name"`
	Status Status `json:"status" yaml:"status"`
}

// Snapshot is the read-only view of a tracked job handed to collaborators.
type Snapshot struct {
	JobID          string          `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	State          State           `json:"state" yaml:"state"`
	Attempts       int             `json:"attempts" yaml:"attempts"`
	LogLines       []string        `json:"log_lines,omitempty" yaml:"log_lines,omitempty"`
	OverallStatus  Status          `json:"overall_status,omitempty" yaml:"overall_status,omitempty"`
	AccountResults []AccountResult `json:"account_results,omitempty" yaml:"account_results,omitempty"`
	Message        string          `json:"message,omitempty" yaml:"message,omitempty"`
	StatusHint     int             `json:"status_hint,omitempty" yaml:"status_hint,omitempty"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at" yaml:"updated_at"`

	// Err is the error behind a failed or timed out state.
	Err error `json:"-" yaml:"-"`
}

// Clone returns a copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	s.LogLines = append([]string(nil), s.LogLines...)
	s.AccountResults = append([]AccountResult(nil), s.AccountResults...)
	return s
}

// NewJobID returns an identifier of the form apply_<unix millis>_<9 chars>.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("apply_%d_%s", now.UnixMilli(), suffix)
}
