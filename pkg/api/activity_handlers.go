package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/analytics"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/store"
	"github.com/strideworks/stride/pkg/syncqueue"
)

// ActivityHandlers provides activity recording and analytics endpoints.
type ActivityHandlers struct {
	aggregator *analytics.Aggregator
	queue      *syncqueue.Queue
}

// NewActivityHandlers creates a new activity handlers instance. queue may
// be nil; mutations are then not replicated.
func NewActivityHandlers(aggregator *analytics.Aggregator, queue *syncqueue.Queue) *ActivityHandlers {
	return &ActivityHandlers{
		aggregator: aggregator,
		queue:      queue,
	}
}

// RegisterRoutes registers activity API routes.
func (h *ActivityHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/sessions", h.recordSession).Methods("POST")
	r.HandleFunc("/api/v1/exercises", h.recordExercise).Methods("POST")
	r.HandleFunc("/api/v1/analytics", h.getAnalytics).Methods("GET")
	r.HandleFunc("/api/v1/analytics/export", h.exportCSV).Methods("GET")
	r.HandleFunc("/api/v1/records", h.clearRecords).Methods("DELETE")
}

type exerciseRequest struct {
	Kind   store.ExerciseKind `json:"kind"`
	Amount int                `json:"amount"`
}

// recordSession handles POST /api/v1/sessions
func (h *ActivityHandlers) recordSession(w http.ResponseWriter, r *http.Request) {
	h.aggregator.RecordSessionStart(r.Context())
	h.enqueueRecordUpdate(r, map[string]interface{}{
		"date":    time.Now().UTC().Format(store.DateFormat),
		"session": true,
	})
	httputil.WriteNoContent(w)
}

// recordExercise handles POST /api/v1/exercises
func (h *ActivityHandlers) recordExercise(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.aggregator.RecordExercise(r.Context(), req.Kind, req.Amount); err != nil {
		if errors.Is(err, analytics.ErrUnknownKind) || errors.Is(err, analytics.ErrInvalidAmount) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.enqueueRecordUpdate(r, map[string]interface{}{
		"date":   time.Now().UTC().Format(store.DateFormat),
		"kind":   string(req.Kind),
		"amount": req.Amount,
	})
	httputil.WriteNoContent(w)
}

// getAnalytics handles GET /api/v1/analytics
func (h *ActivityHandlers) getAnalytics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.aggregator.GetAnalytics(r.Context()))
}

// exportCSV handles GET /api/v1/analytics/export
func (h *ActivityHandlers) exportCSV(w http.ResponseWriter, r *http.Request) {
	csv, err := h.aggregator.ExportCSV(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="stride-export.csv"`)
	w.Write([]byte(csv))
}

// clearRecords handles DELETE /api/v1/records
func (h *ActivityHandlers) clearRecords(w http.ResponseWriter, r *http.Request) {
	h.aggregator.Clear(r.Context())
	h.enqueueRecordUpdate(r, map[string]interface{}{"cleared": true})
	httputil.WriteNoContent(w)
}

func (h *ActivityHandlers) enqueueRecordUpdate(r *http.Request, payload map[string]interface{}) {
	if h.queue == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	action := syncqueue.ActionUpdate
	if _, ok := payload["cleared"]; ok {
		action = syncqueue.ActionDelete
	}
	h.queue.Enqueue(r.Context(), syncqueue.KindRecordUpdate, action, raw)
}
