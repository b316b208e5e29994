// Package serve implements the HTTP API of the commander console: script
// execution as an NDJSON step stream, script storage, parameters, flow
// diagrams, summaries and project info.
package serve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
	"github.com/ormasoftchile/gcloud-commander/pkg/summarize"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Dependencies are the collaborators the server routes to.
type Dependencies struct {
	Engine     *runtime.Engine
	Scripts    *scripts.Store
	Summarizer *summarize.Summarizer
	// Projects runs the project info queries. Nil disables the endpoint.
	Projects providers.CommandExecutor
	Logger   *slog.Logger
}

// Server serves the API.
type Server struct {
	engine     *runtime.Engine
	scripts    *scripts.Store
	summarizer *summarize.Summarizer
	projects   providers.CommandExecutor
	log        *slog.Logger
}

// New creates a server. The engine and the script store are required.
func New(deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("serve: engine is required")
	}
	if deps.Scripts == nil {
		return nil, errors.New("serve: script store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		engine:     deps.Engine,
		scripts:    deps.Scripts,
		summarizer: deps.Summarizer,
		projects:   deps.Projects,
		log:        deps.Logger,
	}, nil
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/execute", s.handleExecute)

	mux.HandleFunc("GET /api/scripts", s.handleListScripts)
	mux.HandleFunc("POST /api/scripts", s.handleCreateScript)
	mux.HandleFunc("GET /api/scripts/{key}", s.handleGetScript)
	mux.HandleFunc("PUT /api/scripts/{key}", s.handleUpdateScript)
	mux.HandleFunc("DELETE /api/scripts/{key}", s.handleDeleteScript)
	mux.HandleFunc("GET /api/scripts/{key}/parameters", s.handleScriptParameters)
	mux.HandleFunc("GET /api/scripts/{key}/flow", s.handleScriptFlow)

	mux.HandleFunc("POST /api/parameters", s.handleParameters)
	mux.HandleFunc("POST /api/flow", s.handleFlow)
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("GET /api/projects/{project}/info", s.handleProjectInfo)

	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return logRequests(s.log, mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Streams in progress get shutdownGrace to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr, "mode", s.engine.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

const shutdownGrace = 30 * time.Second

// statusRecorder captures the response status for logging. It forwards
// Flush so streaming handlers keep working through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logRequests(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
