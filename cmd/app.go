package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/internal/config"
	"github.com/jareddonovan/creative-coding-showcase/internal/metrics"
	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/allowlist"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/ledger"
	"github.com/jareddonovan/creative-coding-showcase/pkg/materialize"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms/imports"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms/p5js"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
	"github.com/jareddonovan/creative-coding-showcase/pkg/whttp"
)

// app holds the long-lived components shared by the commands.
type app struct {
	opts    config.Options
	ledger  *ledger.Ledger
	catalog *catalog.Store
	history *storage.DB // nil when the history database could not be opened
}

func openApp(opts config.Options) (*app, error) {
	if err := os.MkdirAll(opts.ImportsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating imports directory: %w", err)
	}

	l, err := ledger.Open(ledger.JSONFile{Path: opts.LedgerPath})
	if err != nil {
		return nil, err
	}

	a := &app{
		opts:    opts,
		ledger:  l,
		catalog: catalog.NewStore(opts.CatalogPath()),
	}

	// History is bookkeeping only; imports work without it.
	if db, err := storage.Open(opts.HistoryPath); err != nil {
		utils.Log.Warnf("Import history disabled: %v", err)
	} else {
		a.history = db
	}
	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			utils.Log.Warnf("Closing history database: %v", err)
		}
	}
}

func (a *app) loadAllowlist() (*allowlist.Allowlist, []string, error) {
	return allowlist.Load(a.opts.AllowlistPath)
}

// newPoller wires the import cycle to the remote services and local stores.
func (a *app) newPoller(notifiers ...polling.Notifier) (*polling.Poller, error) {
	client, err := whttp.NewClient(whttp.Options{
		RetryMax: 2,
		Proxy:    a.opts.Proxy,
	})
	if err != nil {
		return nil, err
	}

	allow, warnings, err := a.loadAllowlist()
	switch {
	case errors.Is(err, os.ErrNotExist):
		utils.Log.Warnf("No allowlist at %s: every import request will be rejected", a.opts.AllowlistPath)
	case err != nil:
		utils.Log.Errorf("Could not load allowlist: %v", err)
	}
	for _, w := range warnings {
		utils.Log.Warn(w)
	}

	deps := polling.Deps{
		Ledger:    a.ledger,
		Allowlist: allow,
		Lister:    imports.NewLister(a.opts.ImportsURL, a.opts.FetchTimeout.Std(), client),
		Fetcher:   p5js.NewEditor(a.opts.EditorURL, a.opts.EditorDomain, client),
		Materializer: &materialize.Materializer{
			Downloader:      client,
			ImportsDir:      a.opts.ImportsDir(),
			DownloadTimeout: a.opts.DownloadTimeout.Std(),
			OnDownload: func(url string, bytes int64, took time.Duration) {
				utils.Log.Debugf("Downloaded %s (%d bytes, %s)", url, bytes, took)
				metrics.RecordDownload(bytes, took)
			},
		},
		Catalog:         a.catalog,
		ReloadAllowlist: a.loadAllowlist,
		Notifiers:       notifiers,
		Log:             utils.Log,
	}
	if a.history != nil {
		deps.History = a.history
	}

	return polling.New(polling.Config{
		Cabinet:      a.opts.CabinetName,
		Interval:     a.opts.PollInterval.Std(),
		ImportsDir:   a.opts.ImportsDir(),
		SketchesPath: a.opts.SketchesPath,
		AutoConfirm:  a.opts.AutoConfirm,
	}, deps)
}
