//go:build integration

package billing

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresTestDB starts a PostgreSQL container with the tenants table
// and the billing migrations applied
func setupPostgresTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("billing_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	// tenants is owned by tenant management; create the minimal shape here
	_, err = db.ExecContext(ctx, `
		CREATE TABLE tenants (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)
	`)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, db, quietLogger()))

	cleanup := func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgresContainer.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func createTenant(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`INSERT INTO tenants (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestPostgresStoreIntegration(t *testing.T) {
	db, cleanup := setupPostgresTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	store := NewPostgresStore(db)
	svc := NewService(store, WithClock(clock), WithLogger(quietLogger()))

	tenantID := createTenant(t, db, "cafe")

	t.Run("unprovisioned tenant is not found", func(t *testing.T) {
		_, err := svc.Get(ctx, tenantID)
		assert.True(t, IsNotFound(err))
	})

	t.Run("full lifecycle", func(t *testing.T) {
		rec, err := svc.Provision(ctx, &ProvisionRequest{
			TenantID:  tenantID,
			Plan:      PlanMonthly,
			StartDate: start,
			EndDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			AutoRenew: true,
		})
		require.NoError(t, err)
		assert.True(t, rec.PendingPayment)

		clock.Advance(time.Hour)
		_, err = svc.MarkPaid(ctx, tenantID)
		require.NoError(t, err)

		clock.Advance(time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC).Sub(clock.Now()))
		ids, err := svc.RenewalCandidates(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, tenantID)

		outcome, err := svc.Renew(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRenewed, outcome)

		got, err := svc.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.True(t, got.EndDate.Equal(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)))
		assert.True(t, got.PendingPayment)

		entries, err := svc.Ledger(ctx, tenantID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.False(t, entries[0].IsPaid)
		assert.True(t, entries[1].IsPaid)
		assert.True(t, decimal.NewFromInt(750).Equal(entries[0].Amount))

		// A second renewal in the same window is a no-op
		outcome, err = svc.Renew(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkippedNotDue, outcome)

		clock.Advance(40 * 24 * time.Hour)
		result, err := svc.ExpireOverdue(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{tenantID}, result.TenantIDs)

		result, err = svc.ExpireOverdue(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Count)
	})

	t.Run("concurrent extend and renew advance once", func(t *testing.T) {
		id := createTenant(t, db, "bistro")
		clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC))
		svc := NewService(store, WithClock(clock), WithLogger(quietLogger()))

		_, err := svc.Provision(ctx, &ProvisionRequest{
			TenantID:  id,
			Plan:      PlanMonthly,
			StartDate: time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			AutoRenew: true,
			Amount:    &decimal.Zero,
		})
		require.NoError(t, err)
		_, err = svc.MarkPaid(ctx, id)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Renew(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Extend(ctx, id, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(750))
		}()
		wg.Wait()

		got, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.EndDate.Equal(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)))

		entries, err := svc.Ledger(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("deleting a tenant cascades to its ledger", func(t *testing.T) {
		id := createTenant(t, db, "diner")
		_, err := svc.Provision(ctx, &ProvisionRequest{TenantID: id, Plan: PlanYearly})
		require.NoError(t, err)

		_, err = db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM subscription_history WHERE tenant_id = $1`, id).Scan(&count))
		assert.Zero(t, count)
	})
}
