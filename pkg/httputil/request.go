package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParseJSON decodes a single JSON document from the request body into dest.
// Unknown fields are rejected so a misspelled command field is not silently
// dropped.
func ParseJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: trailing data after document")
	}
	return nil
}

// TenantID reads a tenant identifier from the route variable key. Tenant IDs
// are positive.
func TenantID(r *http.Request, key string) (int64, error) {
	raw, ok := mux.Vars(r)[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return id, nil
}

// TenantIDOrError is TenantID that answers 400 itself on failure
func TenantIDOrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := TenantID(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return id, true
}

// QueryInt returns the integer query parameter key, or def when absent
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer, got %q", key, raw)
	}
	return n, nil
}

// QueryBool returns the boolean query parameter key, or def when absent
func QueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("query parameter %s must be a boolean, got %q", key, raw)
	}
	return b, nil
}
