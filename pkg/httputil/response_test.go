package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stride/pkg/observability"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]int{"count": 3}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, errors.New("already exists"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"already exists"}`, rec.Body.String())
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, "amount must be positive")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestParseJSONOrError(t *testing.T) {
	var dest struct {
		Kind string `json:"kind"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"kind":"squats"}`))
	rec := httptest.NewRecorder()
	require.True(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, "squats", dest.Kind)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	assert.False(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/backups/{key}", func(w http.ResponseWriter, r *http.Request) {
		value, ok := ParsePathStringOrError(w, r, "key")
		if !ok {
			return
		}
		got = value
		WriteNoContent(w)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backups/snap-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "snap-1", got)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(observability.NopLogger())(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			panic("handler exploded")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrders(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mk("outer"), mk("inner"))(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
