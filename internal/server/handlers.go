package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jareddonovan/creative-coding-showcase/internal/metrics"
	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms/imports"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
)

// ErrorResponse is the body of every failed API call. Internal error
// details are logged, never sent.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleOpts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Opts)
}

type NewCodeResponse struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

func (s *Server) handleNewCode(w http.ResponseWriter, r *http.Request) {
	if !s.Opts.AllowP5jsImports {
		sendError(w, http.StatusForbidden, "sketch imports are disabled on this cabinet")
		return
	}
	code, err := s.Ledger.Generate()
	if err != nil {
		// The code is kept in memory and still usable.
		utils.Log.Errorf("Generated import code %s but could not persist the ledger: %v", code, err)
	}
	metrics.SetOutstandingCodes(s.Ledger.Outstanding())
	writeJSON(w, http.StatusOK, NewCodeResponse{
		Code: code,
		URL:  imports.NewImportURL(s.Opts.ImportsURL, code, s.Opts.CabinetName),
	})
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ledger.List())
}

func (s *Server) handleRunImports(w http.ResponseWriter, r *http.Request) {
	if s.Poller == nil {
		sendError(w, http.StatusForbidden, "sketch imports are disabled on this cabinet")
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		s.Poller.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	report, err := s.Poller.RunCycle(r.Context())
	if errors.Is(err, polling.ErrCycleInFlight) {
		sendError(w, http.StatusConflict, "an import check is already running")
		return
	}
	if err != nil && report == nil {
		utils.Log.Errorf("Manual import cycle failed: %v", err)
		sendError(w, http.StatusInternalServerError, "import check failed")
		return
	}
	// A failed listing is reported inside the report.
	writeJSON(w, http.StatusOK, report)
}

// handleCatalog returns the catalog as stored. With ?cabinet=<name> only
// the entries that cabinet's gallery shows are returned.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cabinet := r.URL.Query().Get("cabinet")
	if cabinet == "" {
		raw, err := s.Catalog.Raw()
		if err != nil {
			utils.Log.Errorf("Could not read catalog %s: %v", s.Catalog.Path(), err)
			sendError(w, http.StatusInternalServerError, "catalog unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
		return
	}

	entries, err := s.Catalog.Get()
	if err != nil {
		utils.Log.Errorf("Could not read catalog %s: %v", s.Catalog.Path(), err)
		sendError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	visible := make(map[string]catalog.Descriptor)
	for k, d := range entries {
		if catalog.Visible(d, cabinet) {
			visible[k] = d
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

type StatusResponse struct {
	ImportsEnabled   bool            `json:"imports_enabled"`
	Cabinet          string          `json:"cabinet"`
	OutstandingCodes int             `json:"outstanding_codes"`
	Subscribers      int             `json:"subscribers"`
	Poller           *polling.Status `json:"poller,omitempty"`
	History          *storage.Stats  `json:"history,omitempty"`
}

func (s *Server) status(r *http.Request) StatusResponse {
	resp := StatusResponse{
		ImportsEnabled:   s.Poller != nil,
		Cabinet:          s.Opts.CabinetName,
		OutstandingCodes: s.Ledger.Outstanding(),
		Subscribers:      s.Events.Count(),
	}
	if s.Poller != nil {
		st := s.Poller.Status()
		resp.Poller = &st
	}
	if s.History != nil {
		if stats, err := s.History.GetStats(r.Context()); err != nil {
			utils.Log.Warnf("Could not read import history stats: %v", err)
		} else {
			resp.History = &stats
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []storage.Attempt{})
		return
	}
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	attempts, err := s.History.ListRecentAttempts(r.Context(), limit, storage.AttemptFilter{
		Status: q.Get("status"),
		Code:   q.Get("code"),
	})
	if err != nil {
		utils.Log.Errorf("Could not read import history: %v", err)
		sendError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Events.Subscribe()
	defer s.Events.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		}
	}
}
