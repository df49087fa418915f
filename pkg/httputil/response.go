package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/agora/pkg/observability"
)

// ErrorBody is the JSON body of every failed API request
type ErrorBody struct {
	Error string `json:"error"`
}

// SuccessBody acknowledges a mutation that returns no resource
type SuccessBody struct {
	Success bool `json:"success"`
}

// WriteJSON writes data as JSON with the given status code. API responses
// carry per-user data and are never cached.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes {"error": message} with the given status code
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// WriteInternalError logs err on the request logger and answers 500 with a
// generic message. The cause never reaches the client.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	observability.FromContext(r.Context()).WithError(err).Error(msg)
	writeInternal(w)
}

func writeInternal(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
}

// WriteOK writes {"success": true}
func WriteOK(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusOK, SuccessBody{Success: true})
}

// WriteSuccess writes data with 200
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes data with 201
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes an empty 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteValidationError answers 400 for a request body that failed validation
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteBadRequest answers 400
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized answers 401; the caller has no usable session
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden answers 403; the session lacks a permission
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError answers 404
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict answers 409
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteTooLarge answers 413 for request bodies over the upload limit
func WriteTooLarge(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "file too large")
}
