package api

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/publisher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/runner"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
)

//go:embed templates/dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"paragraphs": func(s string) []string {
		var out []string
		for _, p := range strings.Split(s, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("Jan 2, 2006 15:04")
	},
}).Parse(dashboardHTML))

type dashboardView struct {
	Briefing  *newsbrief.Briefing
	NoResults string
	History   []store.Summary
	Error     string
	Topic     string
}

func (s *Server) handleDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderDashboard(w, r, http.StatusOK, "")
	}
}

// handleRefresh runs a briefing from the dashboard form.
func (s *Server) handleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := BriefingRequest{Topic: strings.TrimSpace(r.FormValue("topic"))}
		if _, err := s.runner.TryRun(r.Context(), body.toRequest()); err != nil {
			s.logger.Warn("dashboard refresh failed", "error", err)
			s.renderDashboard(w, r, errorStatus(err), runner.Describe(err))
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	view := dashboardView{Error: errMsg}

	b, err := s.latest(r.Context())
	if err != nil {
		s.logger.Error("load latest briefing", "error", err)
		view.Error = "Failed to load the latest briefing."
	}
	if b != nil {
		view.Briefing = b
		view.Topic = b.Topic
		if b.NoArticles() {
			view.NoResults = publisher.NoArticlesMessage(b.Query.Days)
		}
	}
	if s.history != nil {
		if list, err := s.history.List(r.Context(), 10); err == nil {
			view.History = list
		}
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		s.logger.Error("render dashboard", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
