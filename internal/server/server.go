// Package server is the HTTP map viewer backend: saved and live maps as
// JSON and GeoJSON, engine status, command submission, and a websocket
// feed of per-tick snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
	"github.com/roverscan/rovermap/internal/engine"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	"github.com/roverscan/rovermap/internal/transport"
)

// CurrentMap names the live session in map routes.
const CurrentMap = "current"

const (
	readTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	submitTimeout   = 10 * time.Second
)

// Engine is the part of the engine the server reads and drives.
type Engine interface {
	transport.Commander
	Snapshot() session.Snapshot
	Document() (*session.Document, error)
	Subscribe(buffer int) (<-chan session.Snapshot, func())
}

// Server serves the map API for one engine.
type Server struct {
	engine   Engine
	store    storage.Backend
	ref      geo.Georeference
	log      *slog.Logger
	router   *mux.Router
	upgrader ws.Upgrader
	done     chan struct{}
}

// New builds the server and its routes. store may be nil, in which case
// only the live map is served.
func New(e Engine, store storage.Backend, ref geo.Georeference, log *slog.Logger) *Server {
	s := &Server{
		engine: e,
		store:  store,
		ref:    ref,
		log:    log.With("component", "server"),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthcheck", s.handleHealthcheck).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/maps", s.handleListMaps).Methods(http.MethodGet)
	r.HandleFunc("/maps/{name}", s.handleGetMap).Methods(http.MethodGet)
	r.HandleFunc("/maps/{name}/geojson", s.handleGetGeoJSON).Methods(http.MethodGet)
	r.HandleFunc("/live", s.handleLive)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully and closes live connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	close(s.done)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req transport.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", rover.ErrInvalidArgument, err))
		return
	}
	cmd, err := req.Command(s.engine.Defaults())
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	ack, err := s.engine.Submit(ctx, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []storage.MapInfo{})
		return
	}
	maps, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if maps == nil {
		maps = []storage.MapInfo{}
	}
	writeJSON(w, http.StatusOK, maps)
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	doc, err := s.document(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetGeoJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := s.document(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	fc, err := FeatureCollection(doc, s.ref)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.log.Warn("Failed to write GeoJSON", "error", err)
	}
}

// document returns the live session for CurrentMap, else a saved map.
func (s *Server) document(ctx context.Context, name string) (*session.Document, error) {
	if name == CurrentMap {
		return s.engine.Document()
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, name)
	}
	return s.store.Load(ctx, name)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusCode maps domain errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rover.ErrInvalidArgument), errors.Is(err, rover.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrCorruptState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), map[string]string{"error": err.Error()})
}
