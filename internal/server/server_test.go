package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jareddonovan/creative-coding-showcase/internal/config"
	"github.com/jareddonovan/creative-coding-showcase/internal/events"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/ledger"
	"github.com/jareddonovan/creative-coding-showcase/pkg/materialize"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
	"github.com/jareddonovan/creative-coding-showcase/pkg/tree"
)

type emptyLister struct {
	entered chan struct{}
	release chan struct{}
}

func (l *emptyLister) ListImportRequests(ctx context.Context, cabinet string) ([]platforms.ImportRequest, error) {
	if l.entered != nil {
		l.entered <- struct{}{}
		<-l.release
	}
	return nil, nil
}

type noFetcher struct{}

func (noFetcher) ParseSketchURL(string) (platforms.SketchRef, error) {
	return platforms.SketchRef{}, platforms.ErrBadSketchURL
}

func (noFetcher) FetchProject(context.Context, platforms.SketchRef) ([]platforms.RemoteNode, error) {
	return nil, nil
}

type noMaterializer struct{}

func (noMaterializer) Materialize(context.Context, *tree.Resolved) (materialize.Stats, error) {
	return materialize.Stats{}, nil
}

func newTestServer(t *testing.T, lister platforms.RequestLister) *Server {
	t.Helper()
	dir := t.TempDir()
	opts := config.Options{
		Version:          config.Version,
		CabinetName:      "cab1",
		SketchesPath:     dir,
		AllowP5jsImports: true,
		ImportsURL:       "https://imports.example.org/imports",
	}
	l := ledger.New(nil)
	c := catalog.NewStore(filepath.Join(dir, "_imports", "_links.json"))
	s := New(opts, l, c, events.NewBroadcaster())

	if lister != nil {
		p, err := polling.New(polling.Config{Cabinet: "cab1", ImportsDir: opts.ImportsDir(), SketchesPath: dir}, polling.Deps{
			Ledger:       l,
			Lister:       lister,
			Fetcher:      noFetcher{},
			Materializer: noMaterializer{},
			Catalog:      c,
		})
		require.NoError(t, err)
		s.Poller = p
	}
	return s
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOptsAndCodes(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/opts")
	require.Equal(t, http.StatusOK, rec.Code)
	var opts map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, "cab1", opts["cabinetName"])

	rec = do(t, h, http.MethodPost, "/api/codes")
	require.Equal(t, http.StatusOK, rec.Code)
	var code NewCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
	assert.Len(t, code.Code, ledger.CodeLength)
	assert.Equal(t, "https://imports.example.org/imports/new.php?i="+code.Code+"&c=cab1", code.URL)

	rec = do(t, h, http.MethodGet, "/api/codes")
	require.Equal(t, http.StatusOK, rec.Code)
	var codes []ledger.ImportCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codes))
	require.Len(t, codes, 1)
	assert.Equal(t, code.Code, codes[0].Code)
	assert.False(t, codes[0].IsImported)
}

func TestImportsDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	s.Opts.AllowP5jsImports = false
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/api/codes")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusForbidden, e.Code)
	assert.NotEmpty(t, e.Error)

	rec = do(t, h, http.MethodPost, "/api/imports/run")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.ImportsEnabled)
	assert.Nil(t, st.Poller)
}

func TestRunImports(t *testing.T) {
	s := newTestServer(t, &emptyLister{})
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/api/imports/run?wait=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var report polling.CycleReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, polling.TriggerManual, report.Trigger)
	assert.Equal(t, 0, report.Fetched)

	rec = do(t, h, http.MethodPost, "/api/imports/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/status")
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.ImportsEnabled)
	require.NotNil(t, st.Poller)
	require.NotNil(t, st.Poller.Last)
	assert.Equal(t, polling.StateIdle, st.Poller.State)
}

func TestRunImportsWhileInFlight(t *testing.T) {
	lister := &emptyLister{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestServer(t, lister)
	h := s.Router()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Poller.RunCycle(context.Background())
	}()
	<-lister.entered

	rec := do(t, h, http.MethodPost, "/api/imports/run?wait=true")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(lister.release)
	<-done
}

func TestCatalogFilter(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	require.NoError(t, s.Catalog.Merge(map[string]catalog.Descriptor{
		"Ada_Lovelace_a1": {FirstName: "Ada", LastName: "Lovelace", Cabinet: "cab1, cab2", HasConfirmed: true},
		"Alan_Turing_b2":  {FirstName: "Alan", LastName: "Turing", Cabinet: "cab2", HasConfirmed: true},
	}))

	rec = do(t, h, http.MethodGet, "/api/catalog?cabinet=cab1")
	require.Equal(t, http.StatusOK, rec.Code)
	var visible map[string]catalog.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
	assert.Len(t, visible, 1)
	assert.Contains(t, visible, "Ada_Lovelace_a1")

	rec = do(t, h, http.MethodGet, "/api/catalog")
	var all map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Router()

	rec := do(t, h, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	db, err := storage.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	s.History = db

	_, err = db.RecordCycle(context.Background(), storage.Cycle{StartedAt: time.Now(), Fetched: 2}, []storage.Attempt{
		{OccurredAt: time.Now(), Code: "AAAAAA", Status: storage.StatusImported, CatalogKey: "Ada_Lovelace_a1"},
		{OccurredAt: time.Now(), Code: "BBBBBB", Status: storage.StatusRejected, Detail: "code is not outstanding"},
	})
	require.NoError(t, err)

	rec = do(t, h, http.MethodGet, "/api/history?status=rejected")
	require.Equal(t, http.StatusOK, rec.Code)
	var attempts []storage.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "BBBBBB", attempts[0].Code)

	rec = do(t, h, http.MethodGet, "/api/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Recent import requests")
	assert.Contains(t, rec.Body.String(), "AAAAAA")
	assert.Contains(t, rec.Body.String(), "Imports disabled")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.Events.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Events.ImportsAvailable(map[string]catalog.Descriptor{
		"Ada_Lovelace_a1": {FirstName: "Ada", LastName: "Lovelace"},
	})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: "+events.EventImportSketch, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
	assert.Contains(t, lines[1], "Ada_Lovelace_a1")

	cancel()
	require.Eventually(t, func() bool { return s.Events.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
