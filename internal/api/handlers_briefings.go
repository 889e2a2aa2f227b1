package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/runner"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
)

// BriefingRequest is the optional body of POST /api/briefings. Zero fields
// take the server defaults.
type BriefingRequest struct {
	Topic    string `json:"topic"`
	Query    string `json:"query"`
	Days     int    `json:"days"`
	Language string `json:"language"`
	SortBy   string `json:"sort_by"`
	PageSize int    `json:"page_size"`
}

func (b BriefingRequest) toRequest() newsbrief.Request {
	expr := b.Query
	if expr == "" {
		expr = sources.TopicExpression(b.Topic)
	}
	return newsbrief.Request{
		Topic: b.Topic,
		Query: sources.Query{
			Expression: expr,
			Days:       b.Days,
			Language:   b.Language,
			SortBy:     b.SortBy,
			PageSize:   b.PageSize,
		},
	}
}

func (b BriefingRequest) validate() error {
	if b.Days < 0 || b.PageSize < 0 {
		return errors.New("days and page_size must not be negative")
	}
	if b.PageSize > sources.MaxPageSize {
		return errors.New("page_size must be at most 100")
	}
	return sources.Query{SortBy: b.SortBy}.Validate()
}

func (s *Server) handleCreateBriefing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body BriefingRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := body.validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Info("briefing requested", "subject", getSubject(r), "topic", body.Topic)
		b, err := s.runner.TryRun(r.Context(), body.toRequest())
		if err != nil {
			respondError(w, errorStatus(err), runner.Describe(err))
			return
		}
		respondJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleLatestBriefing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.latest(r.Context())
		if err != nil {
			s.logger.Error("load latest briefing", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to load briefing")
			return
		}
		if b == nil {
			respondError(w, http.StatusNotFound, "no briefing yet")
			return
		}
		respondJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleGetBriefing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid briefing id")
			return
		}
		if s.history == nil {
			respondError(w, http.StatusNotFound, "history is disabled")
			return
		}
		b, err := s.history.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "briefing not found")
			return
		}
		if err != nil {
			s.logger.Error("load briefing", "id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to load briefing")
			return
		}
		respondJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleListBriefings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 200 {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
				return
			}
			limit = n
		}

		items := []store.Summary{}
		if s.history != nil {
			list, err := s.history.List(r.Context(), limit)
			if err != nil {
				s.logger.Error("list briefings", "error", err)
				respondError(w, http.StatusInternalServerError, "failed to list briefings")
				return
			}
			if list != nil {
				items = list
			}
		}
		respondJSON(w, http.StatusOK, map[string]any{"briefings": items})
	}
}

// latest prefers the archive and falls back to the runner's memory.
func (s *Server) latest(ctx context.Context) (*newsbrief.Briefing, error) {
	if s.history != nil {
		b, err := s.history.Latest(ctx)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return s.runner.Last(), nil
}

// errorStatus maps run failures to HTTP status codes.
func errorStatus(err error) int {
	var re *sources.RetrievalError
	var ge *summarizer.GenerationError
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &re), errors.As(err, &ge):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
