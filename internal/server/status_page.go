package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
)

const pageStyle = `
body { font-family: ui-sans-serif, system-ui, sans-serif; background: #0f172a; color: #cbd5e1; margin: 0; }
main { max-width: 56rem; margin: 2.5rem auto; padding: 0 1rem; }
section { background: #1e293b; border-radius: 1rem; padding: 1.5rem; margin-bottom: 1.5rem; }
h1, h2 { color: #fff; }
table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
th { text-align: left; color: #64748b; text-transform: uppercase; font-size: 0.75rem; }
th, td { padding: 0.5rem; border-bottom: 1px solid #334155; }
pre { white-space: pre-wrap; font-size: 0.8rem; }
.badge { padding: 0.1rem 0.6rem; border-radius: 9999px; font-size: 0.75rem; }
.ok { background: #064e3b; color: #34d399; }
.bad { background: #7f1d1d; color: #f87171; }
.off { background: #334155; color: #94a3b8; }
`

func pageLayout(title string, content g.Node) g.Node {
	return g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(
			Head(
				Meta(Charset("UTF-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1.0")),
				Meta(g.Attr("http-equiv", "refresh"), Content("15")),
				TitleEl(g.Text(title)),
				StyleEl(g.Raw(pageStyle)),
			),
			Body(content),
		),
	})
}

func badge(class, text string) g.Node {
	return Span(Class("badge "+class), g.Text(text))
}

func (s *Server) statusContent(st StatusResponse, attempts []storage.Attempt) g.Node {
	var poller g.Node
	if st.Poller == nil {
		poller = P(badge("off", "Imports disabled"))
	} else {
		next := "-"
		if !st.Poller.NextRunAt.IsZero() {
			next = st.Poller.NextRunAt.Format(time.RFC3339)
		}
		lastNodes := []g.Node{P(g.Text("No cycle has run yet."))}
		if last := st.Poller.Last; last != nil {
			result := badge("ok", "OK")
			if last.FetchError != "" || last.Failed > 0 {
				result = badge("bad", "Errors")
			}
			lastNodes = []g.Node{
				P(result, g.Text(" "+last.StartedAt.Format(time.RFC3339)+" ("+last.Trigger+")")),
				Pre(g.Text(last.Text())),
			}
		}
		poller = g.Group([]g.Node{
			P(g.Text(fmt.Sprintf("State: %s, next check: %s", st.Poller.State, next))),
			g.Group(lastNodes),
		})
	}

	var rows []g.Node
	for _, a := range attempts {
		class := "ok"
		if a.Status != storage.StatusImported {
			class = "bad"
		}
		rows = append(rows, Tr(
			Td(g.Text(a.OccurredAt.Format("2006-01-02 15:04:05"))),
			Td(g.Text(a.Code)),
			Td(badge(class, a.Status)),
			Td(g.Text(a.Detail)),
		))
	}

	return Main(
		H1(g.Text("Showcase: "+st.Cabinet)),
		Section(
			H2(g.Text("Kiosk")),
			P(g.Text("Uptime: "+formatDuration(time.Since(s.started).Round(time.Second)))),
			P(g.Text("Outstanding import codes: "+strconv.Itoa(st.OutstandingCodes))),
			P(g.Text("UI subscribers: "+strconv.Itoa(st.Subscribers))),
		),
		Section(H2(g.Text("Import poller")), poller),
		g.If(len(rows) > 0, Section(
			H2(g.Text("Recent import requests")),
			Table(
				THead(Tr(Th(g.Text("Time")), Th(g.Text("Code")), Th(g.Text("Result")), Th(g.Text("Detail")))),
				TBody(rows...),
			),
		)),
	)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	var attempts []storage.Attempt
	if s.History != nil {
		var err error
		if attempts, err = s.History.ListRecentAttempts(r.Context(), 20, storage.AttemptFilter{}); err != nil {
			utils.Log.Warnf("Could not read import history: %v", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageLayout("Showcase status", s.statusContent(s.status(r), attempts)).Render(w); err != nil {
		utils.Log.Errorf("Rendering status page: %v", err)
	}
}
