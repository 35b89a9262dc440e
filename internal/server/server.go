// Package server serves the rendered map and the cached block dataset over
// HTTP for local preview.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/render"
	"github.com/sells-group/lodes-map/internal/store"
	"github.com/sells-group/lodes-map/internal/transform"
)

var blockGEOIDRe = regexp.MustCompile(`^\d{15}$`)

// Server exposes the output directory and read-only JSON endpoints.
type Server struct {
	store     store.Store
	outputDir string
	router    chi.Router
}

// New builds the router. outputDir holds the rendered map document.
func New(st store.Store, outputDir string) *Server {
	s := &Server{store: st, outputDir: outputDir}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
		r.Get("/summary", s.summary)
		r.Get("/sectors", s.sectors)
		r.Get("/blocks.geojson", s.blocksGeoJSON)
		r.Get("/blocks/{geoid}", s.block)
	})

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/"+render.MapFile, http.StatusFound)
	})
	r.Handle("/*", http.FileServer(http.Dir(s.outputDir)))
	return r
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port), zap.String("output_dir", s.outputDir))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: store.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	run, err := s.run(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     run.ID,
		"total_jobs": run.TotalJobs,
		"blocks":     run.Blocks,
		"sectors":    run.Summary,
	})
}

type sectorInfo struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	CNS   string `json:"cns,omitempty"`
	Color string `json:"color"`
}

func (s *Server) sectors(w http.ResponseWriter, _ *http.Request) {
	out := make([]sectorInfo, 0, len(transform.Sectors)+1)
	for _, sec := range transform.Sectors {
		out = append(out, sectorInfo{Code: sec.Code, Name: sec.Name, CNS: sec.CNS, Color: sec.Color})
	}
	u := transform.Unclassified
	out = append(out, sectorInfo{Code: u.Code, Name: u.Name, Color: u.Color})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) blocksGeoJSON(w http.ResponseWriter, r *http.Request) {
	run, err := s.run(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	features, err := s.store.Features(r.Context(), run.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := render.EncodeGeoJSON(w, features, join.Shares(features)); err != nil {
		zap.L().Error("server: encode geojson", zap.String("run_id", run.ID), zap.Error(err))
	}
}

type blockResponse struct {
	GEOID       string                 `json:"geoid"`
	RunID       string                 `json:"run_id"`
	HasGeometry bool                   `json:"has_geometry"`
	Lat         float64                `json:"lat"`
	Lon         float64                `json:"lon"`
	Dropped     int                    `json:"dropped"`
	Properties  render.BlockProperties `json:"properties"`
}

func (s *Server) block(w http.ResponseWriter, r *http.Request) {
	geoid := transform.NormalizeBlockGEOID(chi.URLParam(r, "geoid"))
	if !blockGEOIDRe.MatchString(geoid) {
		writeError(w, http.StatusBadRequest, "geoid must be a 15-digit block identifier")
		return
	}
	run, err := s.run(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.store.Feature(r.Context(), run.ID, geoid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blockResponse{
		GEOID:       f.GEOID,
		RunID:       run.ID,
		HasGeometry: f.HasGeometry(),
		Lat:         f.Lat,
		Lon:         f.Lon,
		Dropped:     f.Dropped,
		Properties:  render.Properties(f, shareSource(run)),
	})
}

// run resolves ?run=<id>, defaulting to the latest completed run.
func (s *Server) run(r *http.Request) (*store.Run, error) {
	if id := r.URL.Query().Get("run"); id != "" {
		return s.store.GetRun(r.Context(), id)
	}
	return s.store.LatestRun(r.Context())
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("server: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
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

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// shareSource rebuilds county shares from a run's stored summary.
func shareSource(run *store.Run) aggregate.Shares {
	totals := make(map[string]int, len(run.Summary))
	for _, row := range run.Summary {
		totals[row.Code] = row.TotalJobs
	}
	return aggregate.SharesFromTotals(totals)
}
