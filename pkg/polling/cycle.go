package polling

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/allowlist"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/classify"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
	"github.com/jareddonovan/creative-coding-showcase/pkg/tree"
)

// accepted is a request that passed both filters.
type accepted struct {
	req   platforms.ImportRequest
	ident allowlist.Identity
}

// RunCycle runs one import cycle. It returns ErrCycleInFlight without
// doing anything when a cycle is already running. A failed listing ends
// the cycle early; the report is still returned and published as
// diagnostics. Cancelling ctx does not interrupt a cycle once started.
func (p *Poller) RunCycle(ctx context.Context) (*CycleReport, error) {
	return p.runCycle(ctx, TriggerManual)
}

func (p *Poller) runCycle(ctx context.Context, trigger string) (*CycleReport, error) {
	if !p.cycleMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer p.cycleMu.Unlock()
	defer p.setState(StateIdle, 0)
	ctx = context.WithoutCancel(ctx)

	start := p.now()
	report := newReport(start, trigger)

	p.setState(StateFetching, 0)
	requests, err := p.deps.Lister.ListImportRequests(ctx, p.cfg.Cabinet)
	if err != nil {
		report.FetchError = err.Error()
		report.Duration = p.now().Sub(start)
		p.log.Warnf("Could not list import requests for cabinet %s: %v", p.cfg.Cabinet, err)
		p.finish(ctx, report)
		return report, fmt.Errorf("listing import requests: %w", err)
	}
	report.Fetched = len(requests)
	report.logf("fetched %d import request(s) for cabinet %q", len(requests), p.cfg.Cabinet)

	p.setState(StateFiltering, 0)
	todo := p.filter(requests, report)
	report.Accepted = len(todo)

	for i, a := range todo {
		p.setState(StateProcessing, i+1)
		key, desc, ierr := p.importOne(ctx, a)
		if ierr != nil {
			report.Failed++
			report.Errors = append(report.Errors, ierr)
			report.logf("%s: %s", a.req.ImportCode, ierr.Error())
			p.log.Warnf("%v", ierr)
			if ierr.staleKey != "" {
				report.stale = append(report.stale, ierr.staleKey)
				report.logf("%s: previous import %s was removed; its catalog entry is marked buggy", a.req.ImportCode, ierr.staleKey)
				p.log.Warnf("Previous import %s was removed by a failed re-import; marking it buggy", ierr.staleKey)
			}
			report.record(storage.Attempt{
				OccurredAt: p.now(),
				Code:       a.req.ImportCode,
				IDHash:     a.req.IDHash,
				SketchURL:  a.req.SketchURL,
				Status:     storage.StatusFailed,
				Detail:     ierr.Stage + ": " + ierr.Message,
			})
			continue
		}

		p.deps.Ledger.MarkImported(a.req.ImportCode)
		report.Batch[key] = desc
		report.Imported++
		report.logf("%s: imported %s for %s (missing: %v)", a.req.ImportCode, key, a.ident.Name, desc.MissingFiles)
		p.log.Infof("Imported %s for %s", key, a.ident.Name)
		report.record(storage.Attempt{
			OccurredAt:   p.now(),
			Code:         a.req.ImportCode,
			IDHash:       a.req.IDHash,
			SketchURL:    a.req.SketchURL,
			CatalogKey:   key,
			Status:       storage.StatusImported,
			MissingFiles: desc.MissingFiles,
		})
	}

	p.setState(StatePublishing, 0)
	p.publish(report)
	report.Duration = p.now().Sub(start)
	p.finish(ctx, report)
	return report, nil
}

// filter keeps requests whose code is outstanding and whose identity is
// permitted, in listing order. A code seen earlier in the same listing
// wins over later requests with that code.
func (p *Poller) filter(requests []platforms.ImportRequest, report *CycleReport) []accepted {
	if p.deps.ReloadAllowlist != nil {
		al, warnings, err := p.deps.ReloadAllowlist()
		if err != nil {
			p.log.Warnf("Could not reload allowlist, keeping previous one: %v", err)
		} else {
			for _, w := range warnings {
				p.log.Debugf("allowlist: %s", w)
			}
			p.mu.Lock()
			p.allow = al
			p.mu.Unlock()
		}
	}
	al := p.currentAllowlist()

	seen := make(map[string]bool)
	var out []accepted
	for _, req := range requests {
		reject := func(reason string) {
			report.logf("%s: ignored, %s", req.ImportCode, reason)
			p.log.Debugf("Ignoring import request %s: %s", req.ImportCode, reason)
			report.record(storage.Attempt{
				OccurredAt: p.now(),
				Code:       req.ImportCode,
				IDHash:     req.IDHash,
				SketchURL:  req.SketchURL,
				Status:     storage.StatusRejected,
				Detail:     reason,
			})
		}

		if seen[req.ImportCode] {
			reject("code already used earlier in this listing")
			continue
		}
		if !p.deps.Ledger.IsOutstanding(req.ImportCode) {
			reject("code unknown or already imported")
			continue
		}
		ident, ok := al.Lookup(req.IDHash)
		if !ok {
			reject("identity not in allowlist")
			continue
		}
		seen[req.ImportCode] = true
		out = append(out, accepted{req: req, ident: ident})
	}
	return out
}

// importOne downloads, lays out and classifies one sketch. Any failure,
// a panic included, is returned as an ImportError.
func (p *Poller) importOne(ctx context.Context, a accepted) (key string, desc catalog.Descriptor, ierr *ImportError) {
	code, user, rawURL := a.req.ImportCode, a.ident.Name, a.req.SketchURL
	defer func() {
		if r := recover(); r != nil {
			ierr = newImportError(code, user, rawURL, StagePanic, fmt.Errorf("%v", r))
		}
	}()

	ref, err := p.deps.Fetcher.ParseSketchURL(rawURL)
	if err != nil {
		return "", desc, newImportError(code, user, rawURL, StageParseURL, err)
	}

	nodes, err := p.deps.Fetcher.FetchProject(ctx, ref)
	if err != nil {
		return "", desc, newImportError(code, user, rawURL, StageFetch, err)
	}

	key, err = tree.Key(a.ident.Name, ref.SketchID)
	if err != nil {
		return "", desc, newImportError(code, user, rawURL, StageResolve, err)
	}
	resolved, err := tree.Resolve(nodes, filepath.Join(p.cfg.ImportsDir, key))
	if err != nil {
		return "", desc, newImportError(code, user, rawURL, StageResolve, err)
	}

	stats, err := p.deps.Materializer.Materialize(ctx, resolved)
	if err != nil {
		ierr := newImportError(code, user, rawURL, StageMaterialize, err)
		if stats.Replaced {
			ierr.staleKey = key
		}
		return "", desc, ierr
	}
	p.log.Debugf("Materialized %s: %d folders, %d inline, %d downloaded, %d bytes",
		key, stats.Folders, stats.InlineFiles, stats.DownloadedFiles, stats.BytesWritten)

	rootDir := resolved.RootDir()
	roles := classify.Classify(resolved.FilesIn(rootDir), rootDir)
	return key, p.describe(a.ident, roles), nil
}

func (p *Poller) describe(ident allowlist.Identity, roles classify.Result) catalog.Descriptor {
	first, last := utils.SplitName(ident.Name)
	d := catalog.Descriptor{
		Cabinet:       p.cfg.Cabinet,
		FoundAllFiles: roles.FoundAll,
		HasConfirmed:  p.cfg.AutoConfirm,
		MissingFiles:  roles.Missing,
		FirstName:     first,
		LastName:      last,
		Documentation: p.relative(roles.Path(classify.RoleDocumentation)),
		Instructions:  p.relative(roles.Path(classify.RoleInstructions)),
		Sketch:        p.relative(roles.Path(classify.RoleSketch)),
		Thumb:         p.relative(roles.Path(classify.RoleThumb)),
		ImportedAt:    p.now().UTC().Format(time.RFC3339),
	}
	for _, m := range roles.Missing {
		if m == classify.RoleSketch {
			return d
		}
	}
	d.Title = classify.InspectSketch(roles.Path(classify.RoleSketch)).Title
	return d
}

// relative makes path relative to the sketches directory, slash separated.
func (p *Poller) relative(path string) string {
	if path == "" || p.cfg.SketchesPath == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(p.cfg.SketchesPath, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// publish persists the ledger and catalog once each. Persistence failures
// are logged and the cycle carries on with in-memory state.
func (p *Poller) publish(report *CycleReport) {
	if report.Imported > 0 {
		if err := p.deps.Ledger.Save(); err != nil {
			p.log.Errorf("Could not persist import codes, in-memory state kept: %v", err)
			report.logf("could not persist import codes: %v", err)
		}
		if err := p.deps.Catalog.Merge(report.Batch); err != nil {
			p.log.Errorf("Could not write catalog, %d import(s) not persisted: %v", len(report.Batch), err)
			report.logf("could not write catalog: %v", err)
		}
	}

	var stale []string
	for _, k := range report.stale {
		if _, reimported := report.Batch[k]; !reimported {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return
	}
	marker, ok := p.deps.Catalog.(StaleMarker)
	if !ok {
		return
	}
	if err := marker.MarkBuggy(stale); err != nil {
		p.log.Errorf("Could not mark %v buggy in the catalog: %v", stale, err)
		report.logf("could not mark %v buggy: %v", stale, err)
	}
}

// finish stores the cycle in history and hands it to the notifiers.
func (p *Poller) finish(ctx context.Context, report *CycleReport) {
	if p.deps.History != nil {
		if _, err := p.deps.History.RecordCycle(ctx, report.historyCycle(), report.attempts); err != nil {
			p.log.Warnf("Could not record import history: %v", err)
		}
	}

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	for _, n := range p.deps.Notifiers {
		if len(report.Batch) > 0 {
			n.ImportsAvailable(report.Batch)
		}
		n.CycleDiagnostics(report)
	}
	p.log.Infof("Import cycle (%s): %s", report.Trigger, report.Summary())
}
