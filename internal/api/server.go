// Package api exposes the read side of the tracker over HTTP. All endpoints
// are read-only; ingest and matching stay on the CLI.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/quality"
	"github.com/brich-labs/marketwatch/internal/report"
	"github.com/brich-labs/marketwatch/internal/store"
)

// Server bundles the handlers with their dependencies.
type Server struct {
	store   store.Store
	reports *report.Service
	checker *quality.Checker
	log     *zap.Logger
}

func NewServer(st store.Store) *Server {
	return &Server{
		store:   st,
		reports: report.NewService(st),
		checker: quality.NewChecker(st, quality.DefaultStaleAfter),
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the chi router with CORS enabled for browser dashboards.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/categories/{categoryID}/trending", s.handleTrending)
		r.Get("/events", s.handleEvents)
		r.Get("/report/combined", s.handleCombined)
		r.Get("/report/performance", s.handlePerformance)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 20)
	since := time.Now().UTC().AddDate(0, 0, -days)

	items, err := s.reports.Trending(r.Context(), categoryID, since, limit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if items == nil {
		items = []report.TrendingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.EventFilter{
		VendorItemID: r.URL.Query().Get("vendor_item_id"),
		Type:         model.ChangeEventType(r.URL.Query().Get("type")),
		Limit:        queryInt(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		filter.CategoryID = id
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = since
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if events == nil {
		events = []model.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCombined(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.Combined(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	if rows == nil {
		rows = []model.ReportRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	since := time.Now().UTC().AddDate(0, 0, -days)

	perfs, err := s.reports.Performance(r.Context(), since)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perfs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	audit, err := s.checker.Run(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
