package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/menuboard/menuboard/pkg/scheduler"
)

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		field   string
		message string
	}{
		{
			name:    "validation",
			err:     billing.NewValidationError("amount", "must not be negative"),
			status:  http.StatusBadRequest,
			code:    httputil.CodeValidation,
			field:   "amount",
			message: "must not be negative",
		},
		{
			name:   "wrapped not found",
			err:    fmt.Errorf("extend: %w", &billing.NotFoundError{TenantID: 9}),
			status: http.StatusNotFound,
			code:   httputil.CodeNotFound,
		},
		{
			name:   "run in progress",
			err:    scheduler.ErrRunInProgress,
			status: http.StatusConflict,
			code:   httputil.CodeConflict,
		},
		{
			name:    "persistence hides cause",
			err:     &billing.PersistenceError{Op: "extend", Err: errors.New("password authentication failed")},
			status:  http.StatusInternalServerError,
			code:    httputil.CodePersistence,
			message: "failed to persist subscription change",
		},
		{
			name:    "unknown",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    httputil.CodeInternal,
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := ErrorFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.field, apiErr.Field)
			if tt.message != "" {
				assert.Equal(t, tt.message, apiErr.Message)
			}
		})
	}
}
