package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newHealthyDB(t *testing.T) (*HealthChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHealthChecker(db, nil), mock
}

func TestHealthChecker_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("no dependencies", func(t *testing.T) {
		status := NewHealthChecker(nil, nil).Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("status = %s, want healthy", status.Status)
		}
		if len(status.Dependencies) != 0 {
			t.Errorf("dependencies = %v, want none", status.Dependencies)
		}
	})

	t.Run("database healthy", func(t *testing.T) {
		checker, mock := newHealthyDB(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		status := checker.Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("status = %s, want healthy", status.Status)
		}
		if status.Dependencies["database"].Status != StatusHealthy {
			t.Errorf("database = %+v", status.Dependencies["database"])
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("database ping fails", func(t *testing.T) {
		checker, mock := newHealthyDB(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		status := checker.Check(ctx)
		if status.Status != StatusUnhealthy {
			t.Errorf("status = %s, want unhealthy", status.Status)
		}
		if status.Dependencies["database"].Message != "connection refused" {
			t.Errorf("message = %q", status.Dependencies["database"].Message)
		}
	})

	t.Run("database query fails", func(t *testing.T) {
		checker, mock := newHealthyDB(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("read-only transaction"))

		status := checker.Check(ctx)
		if status.Status != StatusUnhealthy {
			t.Errorf("status = %s, want unhealthy", status.Status)
		}
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(nil, client).Check(ctx)
		if status.Status != StatusDegraded {
			t.Errorf("status = %s, want degraded", status.Status)
		}
		if status.Dependencies["redis"].Status != StatusUnhealthy {
			t.Errorf("redis = %+v", status.Dependencies["redis"])
		}
	})

	t.Run("redis healthy", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(nil, client).Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("status = %s, want healthy", status.Status)
		}
	})
}

func TestWorse(t *testing.T) {
	tests := []struct{ a, b, want string }{
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusUnhealthy, StatusDegraded, StatusUnhealthy},
		{StatusDegraded, StatusHealthy, StatusDegraded},
	}
	for _, tt := range tests {
		if got := worse(tt.a, tt.b); got != tt.want {
			t.Errorf("worse(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHealthRoutes(t *testing.T) {
	checker, mock := newHealthyDB(t)
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, checker)

	t.Run("liveness", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
		var body HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Status != StatusHealthy || body.Version == "" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("readiness unhealthy returns 503", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("down"))

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
	})
}
