package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/analytics"
	"github.com/strideworks/stride/pkg/backup"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/syncqueue"
)

const maxBodyBytes = 1 << 20 // 1 MiB, snapshots included

// Server represents the API server.
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer creates an API server over the given components. queue may be
// nil when sync is not configured; its routes are omitted.
func NewServer(aggregator *analytics.Aggregator, manager *backup.Manager, queue *syncqueue.Queue,
	logger *observability.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger.WithField("component", "api"),
	}

	NewActivityHandlers(aggregator, queue).RegisterRoutes(s.router)
	NewBackupHandlers(manager, queue).RegisterRoutes(s.router)
	if queue != nil {
		NewSyncHandlers(queue).RegisterRoutes(s.router)
	}

	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
