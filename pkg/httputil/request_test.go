package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type body struct {
		Action string `json:"action"`
	}

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"cancel"}`))
		var b body
		require.NoError(t, ParseJSON(r, &b))
		assert.Equal(t, "cancel", b.Action)
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"cancel","extra":1}`))
		var b body
		assert.Error(t, ParseJSON(r, &b))
	})

	t.Run("two documents", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"cancel"}{"action":"extend"}`))
		var b body
		assert.ErrorContains(t, ParseJSON(r, &b), "trailing data")
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var b body
		assert.Error(t, ParseJSON(r, &b))
	})
}

func TestTenantID(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr string
	}{
		{"valid", map[string]string{"tenant_id": "42"}, 42, ""},
		{"missing", map[string]string{}, 0, "missing path parameter"},
		{"not a number", map[string]string{"tenant_id": "abc"}, 0, "positive integer"},
		{"zero", map[string]string{"tenant_id": "0"}, 0, "positive integer"},
		{"negative", map[string]string{"tenant_id": "-3"}, 0, "positive integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := TenantID(r, "tenant_id")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	w := httptest.NewRecorder()
	_, ok := TenantIDOrError(w, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), nil), "tenant_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&bypass=true&bad=x", nil)

	limit, err := QueryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	limit, err = QueryInt(r, "missing", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)

	_, err = QueryInt(r, "bad", 0)
	assert.Error(t, err)

	bypass, err := QueryBool(r, "bypass", false)
	require.NoError(t, err)
	assert.True(t, bypass)

	_, err = QueryBool(r, "bad", false)
	assert.Error(t, err)
}
