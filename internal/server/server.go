// Package server is the HTTP front end: it turns request parameters into
// resolutions and answers with JSON documents, redirects or the download page.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/clean-dependency-project/dlserver/internal/query"
	"github.com/clean-dependency-project/dlserver/internal/sitegen"
)

const shutdownTimeout = 10 * time.Second

// Resolver answers resolution requests.
type Resolver interface {
	ResolveOne(ctx context.Context, params url.Values) (*query.ResolvedRecord, error)
	ResolveAll(ctx context.Context, params url.Values) (query.AllResults, error)
	Releases(ctx context.Context) ([]string, error)
}

// Options configures the server.
type Options struct {
	// SourceURL returns the upstream download URL of an artifact.
	SourceURL func(artifactID string) string

	// BitstreamPath is the local prefix of download locators.
	BitstreamPath string

	// DownloadHostname prefixes links on the download page.
	DownloadHostname string

	// Ready reports whether the records store can be read.
	Ready func(ctx context.Context) error

	// Version is reported by /version.
	Version string
}

// Server serves the download endpoints.
type Server struct {
	resolver Resolver
	opts     Options
	logger   *slog.Logger
	router   *mux.Router
}

// New creates a server and registers its routes.
func New(resolver Resolver, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BitstreamPath == "" {
		opts.BitstreamPath = query.DefaultBitstreamPath
	}
	s := &Server{
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleDownloadPage).Methods(http.MethodGet)
	r.HandleFunc("/assets/style.css", s.handleStylesheet).Methods(http.MethodGet)
	r.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/find", s.handleFind).Methods(http.MethodGet)
	r.HandleFunc("/findall", s.handleFindAll).Methods(http.MethodGet)
	r.HandleFunc("/releases", s.handleReleases).Methods(http.MethodGet)
	r.HandleFunc(s.opts.BitstreamPath+"/{id}", s.handleBitstream).Methods(http.MethodGet)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "records store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
}

func (s *Server) handleDownloadPage(w http.ResponseWriter, r *http.Request) {
	results, err := s.resolver.ResolveAll(r.Context(), r.URL.Query())
	if err != nil {
		s.writeErrorPage(w, err)
		return
	}

	var buf bytes.Buffer
	if err := sitegen.RenderPage(&buf, sitegen.BuildPageModel(results, s.opts.DownloadHostname)); err != nil {
		s.logger.Error("failed to render download page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	css, err := sitegen.Stylesheet()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(css)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, err := s.resolver.ResolveOne(r.Context(), r.URL.Query())
	if err != nil {
		s.writeErrorPage(w, err)
		return
	}
	http.Redirect(w, r, rec.DownloadURL, http.StatusFound)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	rec, err := s.resolver.ResolveOne(r.Context(), r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFindAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.resolver.ResolveAll(r.Context(), r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.resolver.Releases(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if releases == nil {
		releases = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"releases": releases})
}

func (s *Server) handleBitstream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.opts.SourceURL == nil {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, s.opts.SourceURL(id), http.StatusFound)
}
