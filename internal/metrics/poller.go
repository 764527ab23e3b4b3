package metrics

import (
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
)

// CodeCounter reports how many import codes are outstanding.
type CodeCounter interface {
	Outstanding() int
}

// PollObserver records cycle metrics. It is registered as one of the
// poller's notifiers.
type PollObserver struct {
	Codes CodeCounter // optional
}

func (PollObserver) ImportsAvailable(map[string]catalog.Descriptor) {}

func (o PollObserver) CycleDiagnostics(r *polling.CycleReport) {
	RecordCycle(r.Trigger, r.FetchError != "", r.Fetched, r.Accepted, r.Imported, r.Failed, r.Duration)
	if o.Codes != nil {
		SetOutstandingCodes(o.Codes.Outstanding())
	}
}

var _ polling.Notifier = PollObserver{}
