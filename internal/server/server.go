// Package server exposes the analysis pipeline as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/export"
	"github.com/KaramelBytes/datalens/internal/store"
	"go.uber.org/zap"
)

// Narrator produces model-written text for a summary.
type Narrator interface {
	Summarize(ctx context.Context, s *analysis.Summary, question string) (string, error)
}

// Options configures a Server.
type Options struct {
	Parse          dataset.ParseOptions
	MaxUploadBytes int64
	// Narrator may be nil when no text-generation provider is configured.
	Narrator Narrator
}

// Server holds the handlers' collaborators. Each request parses its dataset
// from the store; nothing derived is cached between requests.
type Server struct {
	store      *store.Store
	serializer *export.Serializer
	opts       Options
	logger     *zap.Logger
}

// New builds a Server over st.
func New(st *store.Store, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	return &Server{
		store:      st,
		serializer: export.NewSerializer(),
		opts:       opts,
		logger:     logger.Named("server"),
	}
}

// RegisterRoutes registers every API route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/datasets"
	mux.HandleFunc("GET /health", s.Health)
	mux.HandleFunc("GET "+base, s.List)
	mux.HandleFunc("POST "+base, s.Upload)
	mux.HandleFunc("DELETE "+base+"/{id}", s.Delete)
	mux.HandleFunc("GET "+base+"/{id}/report", s.Report)
	mux.HandleFunc("GET "+base+"/{id}/summary", s.Summary)
	mux.HandleFunc("GET "+base+"/{id}/describe", s.Describe)
	mux.HandleFunc("GET "+base+"/{id}/correlation", s.Correlation)
	mux.HandleFunc("GET "+base+"/{id}/categories", s.Categories)
	mux.HandleFunc("GET "+base+"/{id}/export", s.Export)
	mux.HandleFunc("GET "+base+"/{id}/charts/histogram", s.HistogramChart)
	mux.HandleFunc("GET "+base+"/{id}/charts/box", s.BoxChart)
	mux.HandleFunc("GET "+base+"/{id}/charts/violin", s.ViolinChart)
	mux.HandleFunc("GET "+base+"/{id}/charts/categories", s.CategoryChart)
	mux.HandleFunc("GET "+base+"/{id}/charts/heatmap", s.HeatmapChart)
	mux.HandleFunc("POST "+base+"/{id}/narrative", s.Narrative)
}

// Handler returns the routed API wrapped with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panic", zap.Any("panic", p), zap.String("path", r.URL.Path))
				_ = ErrorResponse(rec, http.StatusInternalServerError, "internal_error", "internal error")
			}
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
