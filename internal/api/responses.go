package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body. Code distinguishes
// error classes that share a status (e.g. the two upstream 502s) so
// clients can branch on retry-worthiness.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes for the upstream-failure taxonomy.
const (
	CodeTranscriptionFailed = "transcription_failed"
	CodeGenerationFailed    = "generation_failed"
)

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorCode writes a JSON error response with a machine-readable code.
func WriteErrorCode(w http.ResponseWriter, status int, msg, code string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
