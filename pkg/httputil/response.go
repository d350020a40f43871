package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in APIError.Code
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodePersistence  = "persistence_error"
	CodeConflict     = "conflict"
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal_error"
)

// APIError is the error object returned in JSON bodies
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAPIError writes apiErr wrapped in an ErrorResponse
func WriteAPIError(w http.ResponseWriter, status int, apiErr APIError) {
	_ = WriteJSON(w, status, ErrorResponse{Error: apiErr})
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteAPIError(w, status, APIError{Code: code, Message: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, CodeForbidden, message)
}

// WriteInternalError writes an internal server error (500) without details
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
