// Package server exposes a loaded dataset over a read-only JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nppestool/npdata"
	"nppestool/telemetry"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Server struct {
	ds      *npdata.Dataset
	logger  *zap.Logger
	metrics *telemetry.Metrics
	started time.Time
}

// New serves ds, which must not be modified afterwards. metrics may be nil.
func New(ds *npdata.Dataset, logger *zap.Logger, metrics *telemetry.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics != nil {
		metrics.SetProviders(ds.Len())
	}
	return &Server{ds: ds, logger: logger, metrics: metrics, started: time.Now()}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(s.recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.health)
	r.Get("/stats", s.stats)
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Get("/{npi}", s.getProvider)
	})
	r.Get("/taxonomies/{code}", s.getTaxonomy)
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/states", s.topStates)
		r.Get("/taxonomies", s.topTaxonomies)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr), zap.Int("providers", s.ds.Len()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"state":     s.ds.State().String(),
		"providers": s.ds.Len(),
		"run_id":    s.ds.RunID().String(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	st := s.ds.Statistics()
	s.observe("statistics", start)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) observe(name string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(name, time.Since(start))
	}
}

type providerDetail struct {
	*npdata.Provider
	OtherNames        []npdata.OtherNameRecord  `json:"other_names,omitempty"`
	PracticeLocations []npdata.PracticeLocation `json:"practice_locations,omitempty"`
	Endpoints         []npdata.Endpoint         `json:"endpoints,omitempty"`
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	npi, err := npdata.ParseNPI(chi.URLParam(r, "npi"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	p := s.ds.GetByNPI(npi)
	s.observe("by_npi", start)
	if p == nil {
		writeError(w, http.StatusNotFound, "provider "+string(npi)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, providerDetail{
		Provider:          p,
		OtherNames:        s.ds.GetOtherNames(npi),
		PracticeLocations: s.ds.GetPracticeLocations(npi),
		Endpoints:         s.ds.GetEndpoints(npi),
	})
}

type providerSummary struct {
	NPI             npdata.NPI        `json:"npi"`
	Name            string            `json:"name"`
	EntityType      npdata.EntityType `json:"entity_type"`
	State           npdata.StateCode  `json:"state,omitempty"`
	Address         string            `json:"address,omitempty"`
	PrimaryTaxonomy string            `json:"primary_taxonomy,omitempty"`
	Active          bool              `json:"active"`
}

func summarize(p *npdata.Provider) providerSummary {
	out := providerSummary{
		NPI:        p.NPI,
		Name:       p.DisplayName(),
		EntityType: p.EntityType,
		State:      p.MailingAddress.State,
		Address:    p.MailingAddress.SingleLine(),
		Active:     p.IsActive(),
	}
	if t := p.PrimaryTaxonomy(); t != nil {
		out.PrimaryTaxonomy = t.Code
	}
	return out
}

// parseEntityType accepts "1", "2", "individual" or "organization".
func parseEntityType(v string) (npdata.EntityType, bool) {
	switch strings.ToLower(v) {
	case "individual":
		return npdata.Individual, true
	case "organization":
		return npdata.Organization, true
	}
	return npdata.ParseEntityType(v)
}

// buildQuery translates query-string filters. It returns a message when a
// parameter is malformed.
func (s *Server) buildQuery(r *http.Request) (*npdata.Query, int, string) {
	v := r.URL.Query()
	q := s.ds.Query()
	if state := v.Get("state"); state != "" {
		q.StateIn(strings.Split(state, ",")...)
	}
	if code := v.Get("taxonomy"); code != "" {
		q.Taxonomy(code)
	}
	if spec := v.Get("specialty"); spec != "" {
		q.Specialty(spec)
	}
	if name := v.Get("name"); name != "" {
		needle := strings.ToLower(name)
		q.Where(func(p *npdata.Provider) bool {
			return strings.Contains(strings.ToLower(p.DisplayName()), needle)
		})
	}
	if et := v.Get("entity_type"); et != "" {
		e, ok := parseEntityType(et)
		if !ok {
			return nil, 0, "entity_type must be 1, 2, individual or organization"
		}
		q.EntityType(e)
	}
	if a := v.Get("active"); a != "" {
		active, err := strconv.ParseBool(a)
		if err != nil {
			return nil, 0, "active must be true or false"
		}
		if active {
			q.ActiveOnly()
		} else {
			q.InactiveOnly()
		}
	}
	limit := defaultLimit
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return nil, 0, "limit must be a positive integer"
		}
		limit = min(n, maxLimit)
	}
	return q, limit, ""
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	q, limit, msg := s.buildQuery(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	start := time.Now()
	total := q.Count()
	matches := q.Limit(limit).Execute()
	s.observe("providers", start)

	out := make([]providerSummary, len(matches))
	for i, p := range matches {
		out[i] = summarize(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"returned":  len(out),
		"providers": out,
	})
}

func (s *Server) getTaxonomy(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ref, ok := s.ds.GetTaxonomyDescription(code)
	if !ok {
		writeError(w, http.StatusNotFound, "taxonomy "+code+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"taxonomy":  ref,
		"providers": len(s.ds.GetByTaxonomy(code)),
	})
}

func topParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("top"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

func (s *Server) topStates(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows := s.ds.TopStates(topParam(r))
	s.observe("top_states", start)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) topTaxonomies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows := s.ds.TopTaxonomies(topParam(r))
	s.observe("top_taxonomies", start)
	writeJSON(w, http.StatusOK, rows)
}
