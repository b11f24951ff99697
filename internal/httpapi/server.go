package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/chatbridge/internal/bridge"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// Config holds httpapi server configuration.
type Config struct {
	Addr        string
	RedactPaths bool
	CORSOrigins []string
}

// Server is C15's read-only operational HTTP surface.
type Server struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	mgr     *bridge.Manager
	hub     *Hub
}

// New builds a Server backed by mgr (for /sessions) and hub (for the
// per-session SSE stream).
func New(cfg Config, mgr *bridge.Manager, hub *Hub) *Server {
	s := &Server{cfg: cfg, router: chi.NewRouter(), mgr: mgr, hub: hub}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/sessions", s.listSessions)
	s.router.Get("/sessions/{sessionID}/events", s.sessionEvents)
}

// Router exposes the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start blocks serving HTTP on cfg.Addr until the server is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams never complete
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Snapshot(s.cfg.RedactPaths))
}

// sessionEvents streams decoded agent events for one session as they
// arrive, terminating when the client disconnects. It does not replay
// history — an operator joining mid-turn sees only what happens from here.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionID(chi.URLParam(r, "sessionID"))
	if _, ok := s.mgr.Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, errCodeNotFound, "no live session with that id")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events, cancel := s.hub.Subscribe(sessionID)
	defer cancel()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := sse.writeEvent(ev.Type, ev.Raw); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
