// Package ledger keeps the one-time import codes handed out by the kiosk.
//
// A code is created when the UI asks for one, flipped to imported exactly
// once when a request carrying it has been processed, and never deleted.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CodeLength is the number of characters of a generated code.
const CodeLength = 6

// ImportCode is one ledger entry.
type ImportCode struct {
	Code       string    `json:"code"`
	IsImported bool      `json:"isImported"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Persister is the read-all/write-all port the ledger is stored through.
type Persister interface {
	Load() ([]ImportCode, error)
	Save(codes []ImportCode) error
}

// Ledger is the in-memory authoritative set of import codes.
type Ledger struct {
	mu    sync.Mutex
	codes []ImportCode
	store Persister
	now   func() time.Time
}

// New returns a ledger backed by store. The store is not read; call Load.
func New(store Persister) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Open creates a ledger and loads its current content from store.
func Open(store Persister) (*Ledger, error) {
	l := New(store)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load replaces the in-memory codes with the persisted ones.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}
	codes, err := l.store.Load()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	l.mu.Lock()
	l.codes = codes
	l.mu.Unlock()
	return nil
}

// Generate derives a new code from the current time, appends it and
// persists the whole ledger. When persisting fails the code is still kept
// and returned together with the error.
func (l *Ledger) Generate() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	code := deriveCode(ts)
	for l.indexLocked(code) >= 0 {
		ts = ts.Add(time.Nanosecond)
		code = deriveCode(ts)
	}

	l.codes = append(l.codes, ImportCode{Code: code, CreatedAt: ts.UTC()})
	if err := l.saveLocked(); err != nil {
		return code, err
	}
	return code, nil
}

// IsOutstanding reports whether code exists and has not been imported yet.
func (l *Ledger) IsOutstanding(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(code)
	return i >= 0 && !l.codes[i].IsImported
}

// MarkImported flips the first entry matching code to imported. Unknown or
// already imported codes are ignored. It reports whether an entry changed.
// The change is not persisted until Save.
func (l *Ledger) MarkImported(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(code)
	if i < 0 || l.codes[i].IsImported {
		return false
	}
	l.codes[i].IsImported = true
	return true
}

// Save persists the full ledger.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

// List returns a copy of all entries in creation order.
func (l *Ledger) List() []ImportCode {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ImportCode, len(l.codes))
	copy(out, l.codes)
	return out
}

// Outstanding returns the number of codes not yet imported.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.codes {
		if !c.IsImported {
			n++
		}
	}
	return n
}

func (l *Ledger) indexLocked(code string) int {
	for i, c := range l.codes {
		if c.Code == code {
			return i
		}
	}
	return -1
}

func (l *Ledger) saveLocked() error {
	if l.store == nil {
		return nil
	}
	snapshot := make([]ImportCode, len(l.codes))
	copy(snapshot, l.codes)
	if err := l.store.Save(snapshot); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// deriveCode checksums the nanosecond timestamp and renders the low bits in
// upper-case base36, padded to CodeLength.
func deriveCode(ts time.Time) string {
	sum := xxhash.Sum64String(strconv.FormatInt(ts.UnixNano(), 10))
	s := strings.ToUpper(strconv.FormatUint(sum, 36))
	if len(s) < CodeLength {
		s = strings.Repeat("0", CodeLength-len(s)) + s
	}
	return s[len(s)-CodeLength:]
}
