package polling

import (
	"fmt"
	"strings"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
)

// State is where the poller currently is in its cycle.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateProcessing State = "processing"
	StatePublishing State = "publishing"
)

// Trigger sources.
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// Import stages, as reported in ImportError.Stage.
const (
	StageParseURL    = "parse-url"
	StageFetch       = "fetch"
	StageResolve     = "resolve"
	StageMaterialize = "materialize"
	StagePanic       = "panic"
)

// ImportError is the failure of one import request. It never aborts the
// cycle; the request's code stays outstanding.
type ImportError struct {
	Code      string `json:"code"`
	User      string `json:"user"`
	SketchURL string `json:"sketch_url"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Err       error  `json:"-"`

	// staleKey names a previous import removed before this one failed.
	staleKey string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s (%s) failed at %s: %v", e.Code, e.User, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func newImportError(code, user, sketchURL, stage string, err error) *ImportError {
	return &ImportError{Code: code, User: user, SketchURL: sketchURL, Stage: stage, Message: err.Error(), Err: err}
}

// CycleReport is the outcome of one cycle. It is what the UI receives as
// the cycle diagnostics event.
type CycleReport struct {
	StartedAt  time.Time                     `json:"started_at"`
	Duration   time.Duration                 `json:"duration_ns"`
	Trigger    string                        `json:"trigger"`
	Fetched    int                           `json:"fetched"`
	Accepted   int                           `json:"accepted"`
	Imported   int                           `json:"imported"`
	Failed     int                           `json:"failed"`
	FetchError string                        `json:"fetch_error,omitempty"`
	Errors     []*ImportError                `json:"errors"`
	Log        []string                      `json:"log"`
	Batch      map[string]catalog.Descriptor `json:"batch"`

	attempts []storage.Attempt
	stale    []string
}

func newReport(start time.Time, trigger string) *CycleReport {
	return &CycleReport{
		StartedAt: start,
		Trigger:   trigger,
		Errors:    []*ImportError{},
		Log:       []string{},
		Batch:     map[string]catalog.Descriptor{},
	}
}

func (r *CycleReport) logf(format string, args ...interface{}) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// Summary is a single human readable line.
func (r *CycleReport) Summary() string {
	if r.FetchError != "" {
		return fmt.Sprintf("listing failed after %s: %s", r.Duration.Round(time.Millisecond), r.FetchError)
	}
	return fmt.Sprintf("fetched %d, accepted %d, imported %d, failed %d in %s",
		r.Fetched, r.Accepted, r.Imported, r.Failed, r.Duration.Round(time.Millisecond))
}

// Text renders the cycle log for display.
func (r *CycleReport) Text() string {
	return strings.Join(append([]string{r.Summary()}, r.Log...), "\n")
}

func (r *CycleReport) record(a storage.Attempt) {
	r.attempts = append(r.attempts, a)
}

func (r *CycleReport) historyCycle() storage.Cycle {
	return storage.Cycle{
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Fetched:    r.Fetched,
		Accepted:   r.Accepted,
		Imported:   r.Imported,
		Failed:     r.Failed,
		FetchError: r.FetchError,
		Trigger:    r.Trigger,
	}
}

// Status is a snapshot of the poller.
type Status struct {
	State      State        `json:"state"`
	Processing int          `json:"processing,omitempty"`
	NextRunAt  time.Time    `json:"next_run_at,omitempty"`
	Last       *CycleReport `json:"last,omitempty"`
}

// Status returns the current state and the last completed cycle.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{State: p.state, Processing: p.current, NextRunAt: p.nextRunAt, Last: p.last}
}
