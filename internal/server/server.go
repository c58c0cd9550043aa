// Package server provides the HTTP server for the handsign recognition service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/server/api"
	"github.com/ayusman/handsign/internal/speech"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "handsign"

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Speaker   *speech.Speaker

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// Server represents the HTTP server for the handsign application.
type Server struct {
	config Config
	router chi.Router
	stream *StreamHandler
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(s.config.CORSOrigins))
	r.Use(prometheusMetrics)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.config.RateLimitRequests, s.config.RateLimitWindow, s.config.RateLimitDisabled))

		r.Get("/health", s.handleHealth)

		if s.config.App != nil {
			samples := api.NewSamplesHandler(s.config.App)
			predict := api.NewPredictHandler(s.config.App)
			s.stream = NewStreamHandler(s.config.App, s.config.CORSOrigins)

			r.Get("/stats", s.handleStats)

			r.Route("/datasets/{owner}", func(r chi.Router) {
				r.Get("/samples", samples.List)
				r.Post("/samples", samples.Create)
				r.Delete("/samples", samples.Delete)
				r.Get("/labels", samples.Labels)
				r.Post("/predict", predict.Predict)
				r.Get("/settings", predict.GetSettings)
				r.Put("/settings", predict.PutSettings)
				r.Get("/stream", s.stream.ServeHTTP)
			})
		}

		r.Post("/speak", api.NewSpeakHandler(s.config.Speaker).Speak)
	})

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Uptime  string `json:"uptime"`
}

type statsResponse struct {
	Owners    int    `json:"owners"`
	Samples   int    `json:"samples"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: ServiceName,
		Uptime:  time.Since(s.start).Round(time.Second).String(),
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.config.App.Stats()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to load stats")
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to load stats", Code: api.CodeInternal})
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Owners:    st.Owners,
		Samples:   st.Samples,
		Uptime:    time.Since(s.start).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.stream != nil {
		s.stream.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
