package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all billing migrations. The tenants table is owned by
// tenant management; these migrations only add the subscription columns.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Add subscription columns to tenants",
			SQL: `
				ALTER TABLE tenants
					ADD COLUMN IF NOT EXISTS subscription_plan VARCHAR(20),
					ADD COLUMN IF NOT EXISTS subscription_status VARCHAR(20) NOT NULL DEFAULT 'active',
					ADD COLUMN IF NOT EXISTS subscription_start TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS subscription_end TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
					ADD COLUMN IF NOT EXISTS is_pending_payment BOOLEAN NOT NULL DEFAULT FALSE,
					ADD COLUMN IF NOT EXISTS last_payment_date TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS is_active BOOLEAN NOT NULL DEFAULT TRUE;

				ALTER TABLE tenants
					ADD CONSTRAINT tenants_subscription_plan_check
						CHECK (subscription_plan IS NULL OR subscription_plan IN ('monthly', 'yearly', 'enterprise')),
					ADD CONSTRAINT tenants_subscription_status_check
						CHECK (subscription_status IN ('active', 'expired', 'cancelled')),
					ADD CONSTRAINT tenants_subscription_period_check
						CHECK (subscription_plan IS NULL OR subscription_end > subscription_start),
					ADD CONSTRAINT tenants_auto_renew_check
						CHECK (NOT auto_renew OR subscription_plan IN ('monthly', 'yearly'));

				CREATE INDEX IF NOT EXISTS idx_tenants_subscription_end
					ON tenants(subscription_status, subscription_end)
					WHERE subscription_plan IS NOT NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create subscription_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscription_history (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					plan VARCHAR(20) NOT NULL,
					period_start TIMESTAMPTZ NOT NULL,
					period_end TIMESTAMPTZ NOT NULL,
					amount NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
					is_paid BOOLEAN NOT NULL DEFAULT FALSE,
					paid_at TIMESTAMPTZ,
					notes TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_subscription_history_tenant_created
					ON subscription_history(tenant_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_subscription_history_unpaid
					ON subscription_history(tenant_id)
					WHERE is_paid = FALSE;
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS billing_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM billing_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		entry := log.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
		entry.Info("Running billing migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO billing_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		entry.Info("Billing migration completed")
	}

	return nil
}
