package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "hello"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteJSON_KeepsCacheControl(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("Cache-Control", "private, max-age=60")

	require.NoError(t, WriteJSON(w, http.StatusOK, struct{}{}))
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "invalid input") }, http.StatusBadRequest, "invalid input"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid user id") }, http.StatusBadRequest, "invalid user id"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "authentication required") }, http.StatusUnauthorized, "authentication required"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "insufficient permissions") }, http.StatusForbidden, "insufficient permissions"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "role not found") }, http.StatusNotFound, "role not found"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "role already exists") }, http.StatusConflict, "role already exists"},
		{"too large", WriteTooLarge, http.StatusRequestEntityTooLarge, "file too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestWriteInternalError_HidesCause(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &logs)
	r := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	r = r.WithContext(observability.WithLogger(r.Context(), logger))
	w := httptest.NewRecorder()

	WriteInternalError(w, r, errors.New("pq: connection refused"), "User admin request failed")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	assert.Contains(t, logs.String(), "User admin request failed")
	assert.Contains(t, logs.String(), "pq: connection refused")
}

func TestSuccessWriters(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteOK(w))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]int{"id": 123}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":123}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]string{"status": "ok"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
