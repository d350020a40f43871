package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPITokens(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tokens, err := ParseAPITokens(" ops:super_admin:s3cret , cron:service:t0ken,")
		require.NoError(t, err)
		assert.Equal(t, []APIToken{
			{Name: "ops", Role: RoleSuperAdmin, Token: "s3cret"},
			{Name: "cron", Role: RoleService, Token: "t0ken"},
		}, tokens)
	})

	t.Run("empty", func(t *testing.T) {
		tokens, err := ParseAPITokens("")
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("malformed entry does not leak token", func(t *testing.T) {
		_, err := ParseAPITokens("ops:super_admin")
		require.Error(t, err)

		_, err = ParseAPITokens(":service:hunter2")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "hunter2")
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := ParseAPITokens("ops:root:abc")
		assert.ErrorContains(t, err, "invalid role")
	})
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator([]APIToken{
		{Name: "ops", Role: RoleSuperAdmin, Token: "admin-token"},
		{Name: "cron", Role: RoleService, Token: "service-token"},
	})
}

func TestAuthenticator_Handler(t *testing.T) {
	auth := newTestAuthenticator()

	var seen *contextkeys.Caller
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetCaller(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
		caller string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic admin-token", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"super admin", "Bearer admin-token", http.StatusOK, "ops"},
		{"service", "Bearer service-token", http.StatusOK, "cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.caller == "" {
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tt.caller, seen.Name)
		})
	}
}

func TestRequireRole(t *testing.T) {
	auth := newTestAuthenticator()
	handler := auth.Handler(RequireRole(RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	t.Run("allowed role", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer admin-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer service-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no caller is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireRole(RoleService)(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
