package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/backup"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/syncqueue"
)

// BackupHandlers provides snapshot and restore endpoints.
type BackupHandlers struct {
	manager *backup.Manager
	queue   *syncqueue.Queue
}

// NewBackupHandlers creates a new backup handlers instance.
func NewBackupHandlers(manager *backup.Manager, queue *syncqueue.Queue) *BackupHandlers {
	return &BackupHandlers{
		manager: manager,
		queue:   queue,
	}
}

// RegisterRoutes registers backup API routes. The fixed paths register
// before the {key} route so they are not captured as keys.
func (h *BackupHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/backups", h.createBackup).Methods("POST")
	r.HandleFunc("/api/v1/backups", h.listBackups).Methods("GET")
	r.HandleFunc("/api/v1/backups/settings", h.getSettings).Methods("GET")
	r.HandleFunc("/api/v1/backups/settings", h.updateSettings).Methods("PUT")
	r.HandleFunc("/api/v1/backups/restore", h.restore).Methods("POST")
	r.HandleFunc("/api/v1/backups/{key}", h.getBackup).Methods("GET")
}

// createBackup handles POST /api/v1/backups
func (h *BackupHandlers) createBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.CreateSnapshot(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	key, err := h.manager.PersistSnapshotLocally(r.Context(), snap)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"key":       key,
		"createdAt": snap.CreatedAt,
		"summary":   snap.Summary,
	})
}

// listBackups handles GET /api/v1/backups
func (h *BackupHandlers) listBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := h.manager.ListLocalSnapshots()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if infos == nil {
		infos = []backup.SnapshotInfo{}
	}
	httputil.WriteSuccess(w, infos)
}

// getBackup handles GET /api/v1/backups/{key}
func (h *BackupHandlers) getBackup(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}

	snap, err := h.manager.LoadLocalSnapshot(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.WriteNotFoundError(w, "snapshot not found")
			return
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, snap)
}

type restoreRequest struct {
	// Key restores a snapshot from the local rotation set.
	Key string `json:"key,omitempty"`
	// Snapshot restores an uploaded snapshot document.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// restore handles POST /api/v1/backups/restore
func (h *BackupHandlers) restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var snap *backup.Snapshot
	var err error
	switch {
	case req.Key != "":
		snap, err = h.manager.LoadLocalSnapshot(req.Key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				httputil.WriteNotFoundError(w, "snapshot not found")
				return
			}
			httputil.WriteValidationError(w, err.Error())
			return
		}
	case len(req.Snapshot) > 0:
		snap, err = backup.ParseSnapshot(req.Snapshot)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
	default:
		httputil.WriteValidationError(w, "either key or snapshot is required")
		return
	}

	if err := h.manager.Restore(r.Context(), snap); err != nil {
		if errors.Is(err, backup.ErrUnsupportedFormat) || errors.Is(err, backup.ErrMissingData) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "restored"})
}

// getSettings handles GET /api/v1/backups/settings
func (h *BackupHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.Settings(r.Context()))
}

// updateSettings handles PUT /api/v1/backups/settings
func (h *BackupHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings backup.Settings
	if !httputil.ParseJSONOrError(w, r, &settings) {
		return
	}

	if err := h.manager.UpdateSettings(r.Context(), settings); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if h.queue != nil {
		if raw, err := json.Marshal(settings); err == nil {
			h.queue.Enqueue(r.Context(), syncqueue.KindSettingsUpdate, syncqueue.ActionUpdate, raw)
		}
	}
	httputil.WriteSuccess(w, h.manager.Settings(r.Context()))
}
