// Package polling runs the sketch import cycle: list pending requests,
// keep the ones carrying an outstanding code from a permitted identity,
// download each sketch, and publish the result to the catalog.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/pkg/allowlist"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/materialize"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
	"github.com/jareddonovan/creative-coding-showcase/pkg/tree"
)

// DefaultInterval is the pause between the end of one cycle and the start
// of the next.
const DefaultInterval = 60 * time.Second

// ErrCycleInFlight is returned by RunCycle while another cycle is running.
var ErrCycleInFlight = errors.New("an import cycle is already running")

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// CodeLedger is the part of the ledger the poller needs.
type CodeLedger interface {
	IsOutstanding(code string) bool
	MarkImported(code string) bool
	Save() error
}

// Materializer writes a resolved project to disk.
type Materializer interface {
	Materialize(ctx context.Context, r *tree.Resolved) (materialize.Stats, error)
}

// CatalogWriter merges a batch of descriptors into the catalog.
type CatalogWriter interface {
	Merge(batch map[string]catalog.Descriptor) error
}

// StaleMarker is implemented by catalogs that can flag entries whose files
// were removed by a failed re-import.
type StaleMarker interface {
	MarkBuggy(keys []string) error
}

// HistoryRecorder stores the outcome of a cycle.
type HistoryRecorder interface {
	RecordCycle(ctx context.Context, c storage.Cycle, attempts []storage.Attempt) (int64, error)
}

// Notifier receives the outbound events of a cycle.
type Notifier interface {
	// ImportsAvailable is called once per cycle that imported anything.
	ImportsAvailable(batch map[string]catalog.Descriptor)
	// CycleDiagnostics is called after every cycle, failed ones included.
	CycleDiagnostics(report *CycleReport)
}

// Config holds the per-installation settings of the poller.
type Config struct {
	Cabinet      string
	Interval     time.Duration // defaults to DefaultInterval if <= 0
	ImportsDir   string        // sketches land in ImportsDir/<key>
	SketchesPath string        // catalog paths are relative to this
	AutoConfirm  bool
}

// Deps are the collaborators of a Poller. Ledger, Lister, Fetcher,
// Materializer and Catalog are required. A nil Allowlist permits nobody.
type Deps struct {
	Ledger       CodeLedger
	Allowlist    *allowlist.Allowlist
	Lister       platforms.RequestLister
	Fetcher      platforms.ProjectFetcher
	Materializer Materializer
	Catalog      CatalogWriter

	// ReloadAllowlist, if set, is called at the start of every cycle. On
	// error the previous allowlist stays in effect.
	ReloadAllowlist func() (*allowlist.Allowlist, []string, error)

	History   HistoryRecorder // optional
	Notifiers []Notifier      // optional
	Log       Logger          // optional; nil = no logging
}

// Poller owns the import cycle. At most one cycle runs at a time.
type Poller struct {
	cfg  Config
	deps Deps
	log  Logger
	now  func() time.Time

	cycleMu sync.Mutex
	trigger chan struct{}

	mu        sync.RWMutex
	allow     *allowlist.Allowlist
	state     State
	current   int
	last      *CycleReport
	nextRunAt time.Time
}

func New(cfg Config, deps Deps) (*Poller, error) {
	switch {
	case deps.Ledger == nil:
		return nil, fmt.Errorf("poller: ledger is required")
	case deps.Lister == nil:
		return nil, fmt.Errorf("poller: request lister is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("poller: project fetcher is required")
	case deps.Materializer == nil:
		return nil, fmt.Errorf("poller: materializer is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("poller: catalog is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	log := deps.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Poller{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		allow:   deps.Allowlist,
		state:   StateIdle,
	}, nil
}

func (p *Poller) Config() Config { return p.cfg }

func (p *Poller) setState(s State, processing int) {
	p.mu.Lock()
	p.state = s
	p.current = processing
	p.mu.Unlock()
}

func (p *Poller) currentAllowlist() *allowlist.Allowlist {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allow
}
