package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/syncqueue"
)

// SyncHandlers provides sync queue inspection and control endpoints.
type SyncHandlers struct {
	queue *syncqueue.Queue
}

// NewSyncHandlers creates a new sync handlers instance.
func NewSyncHandlers(queue *syncqueue.Queue) *SyncHandlers {
	return &SyncHandlers{queue: queue}
}

// RegisterRoutes registers sync API routes.
func (h *SyncHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/sync/status", h.getStatus).Methods("GET")
	r.HandleFunc("/api/v1/sync/drain", h.drain).Methods("POST")
	r.HandleFunc("/api/v1/sync/online", h.setOnline).Methods("PUT")
}

// getStatus handles GET /api/v1/sync/status
func (h *SyncHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.queue.GetStatus())
}

// drain handles POST /api/v1/sync/drain
func (h *SyncHandlers) drain(w http.ResponseWriter, r *http.Request) {
	h.queue.Drain(r.Context())
	httputil.WriteSuccess(w, h.queue.GetStatus())
}

type onlineRequest struct {
	Online bool `json:"online"`
}

// setOnline handles PUT /api/v1/sync/online
func (h *SyncHandlers) setOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	h.queue.SetOnline(req.Online)
	httputil.WriteSuccess(w, h.queue.GetStatus())
}
