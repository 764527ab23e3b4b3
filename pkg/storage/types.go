package storage

import "time"

// Attempt statuses.
const (
	StatusImported = "imported"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Cycle is one run of the import poller.
type Cycle struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Fetched    int       `json:"fetched"`
	Accepted   int       `json:"accepted"`
	Imported   int       `json:"imported"`
	Failed     int       `json:"failed"`
	FetchError string    `json:"fetch_error,omitempty"`
	Trigger    string    `json:"trigger"` // timer | manual
}

// Attempt records what happened to one import request within a cycle.
type Attempt struct {
	CycleID      int64     `json:"cycle_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	Code         string    `json:"code"`
	IDHash       string    `json:"id_hash"`
	SketchURL    string    `json:"sketch_url"`
	CatalogKey   string    `json:"catalog_key,omitempty"`
	Status       string    `json:"status"` // imported | rejected | failed
	Detail       string    `json:"detail,omitempty"`
	MissingFiles []string  `json:"missing_files"`
}

// Stats summarises the whole history.
type Stats struct {
	Cycles      int       `json:"cycles"`
	Imported    int       `json:"imported"`
	Rejected    int       `json:"rejected"`
	Failed      int       `json:"failed"`
	LastCycleAt time.Time `json:"last_cycle_at"`
}
