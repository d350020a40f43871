package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore implements Store on the tenants and subscription_history tables.
// Per-tenant serialization relies on SELECT ... FOR UPDATE of the tenant row.
type PostgresStore struct {
	db     *sql.DB
	reader func() *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	s := &PostgresStore{db: db}
	s.reader = func() *sql.DB { return s.db }
	return s
}

// WithReader routes GetRecord and ListLedger to the connection returned by
// reader, typically a replica picker. Those reads may lag the primary;
// locks, writes and batch selection stay on db.
func (s *PostgresStore) WithReader(reader func() *sql.DB) *PostgresStore {
	if reader != nil {
		s.reader = reader
	}
	return s
}

const recordColumns = `id, subscription_plan, subscription_status, subscription_start, subscription_end,
		       auto_renew, is_pending_payment, last_payment_date, is_active`

const entryColumns = `id, tenant_id, plan, period_start, period_end, amount, is_paid, paid_at, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var lastPayment sql.NullTime
	if err := row.Scan(
		&rec.TenantID, &rec.Plan, &rec.Status, &rec.StartDate, &rec.EndDate,
		&rec.AutoRenew, &rec.PendingPayment, &lastPayment, &rec.TenantActive,
	); err != nil {
		return nil, err
	}
	if lastPayment.Valid {
		t := lastPayment.Time
		rec.LastPaymentDate = &t
	}
	return rec, nil
}

func scanEntry(row rowScanner) (*LedgerEntry, error) {
	e := &LedgerEntry{}
	var paidAt sql.NullTime
	var notes sql.NullString
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.Plan, &e.PeriodStart, &e.PeriodEnd, &e.Amount,
		&e.IsPaid, &paidAt, &notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		e.PaidAt = &t
	}
	e.Notes = notes.String
	return e, nil
}

// GetRecord retrieves the subscription fields of a tenant
func (s *PostgresStore) GetRecord(ctx context.Context, tenantID int64) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM tenants
		WHERE id = $1 AND subscription_plan IS NOT NULL
	`
	rec, err := scanRecord(s.reader().QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{TenantID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return rec, nil
}

// ListLedger lists ledger entries for a tenant, newest first
func (s *PostgresStore) ListLedger(ctx context.Context, tenantID int64, limit int) ([]*LedgerEntry, error) {
	if _, err := s.GetRecord(ctx, tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + entryColumns + `
		FROM subscription_history
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return entries, nil
}

// ListRenewalCandidates returns active auto-renewing tenants ending in [from, to]
func (s *PostgresStore) ListRenewalCandidates(ctx context.Context, from, to time.Time) ([]int64, error) {
	query := `
		SELECT id FROM tenants
		WHERE subscription_plan IS NOT NULL
		  AND auto_renew = TRUE
		  AND subscription_status = $1
		  AND subscription_end BETWEEN $2 AND $3
		ORDER BY id
	`
	return s.queryIDs(ctx, "failed to list renewal candidates", query, SubscriptionStatusActive, from, to)
}

// ExpireOverdue expires every overdue active tenant in a single statement
func (s *PostgresStore) ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		UPDATE tenants
		SET subscription_status = $1, is_active = FALSE, auto_renew = FALSE
		WHERE subscription_plan IS NOT NULL
		  AND subscription_status = $2
		  AND subscription_end < $3
		RETURNING id
	`
	ids, err := s.queryIDs(ctx, "failed to expire subscriptions", query,
		SubscriptionStatusExpired, SubscriptionStatusActive, now)
	if err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, msg, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return ids, nil
}

// Provision attaches an initial subscription to an existing tenant row
func (s *PostgresStore) Provision(ctx context.Context, rec *Record, entry *LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT subscription_plan FROM tenants WHERE id = $1 FOR UPDATE`, rec.TenantID).
		Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{TenantID: rec.TenantID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	if existing.Valid {
		return NewValidationError("tenant_id", "tenant %d already has a subscription", rec.TenantID)
	}

	ptx := &postgresTx{ctx: ctx, tx: tx, tenantID: rec.TenantID}
	if err := ptx.SaveRecord(rec); err != nil {
		return err
	}
	if err := ptx.AppendEntry(entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithTenant runs fn inside a transaction holding the tenant row lock
func (s *PostgresStore) WithTenant(ctx context.Context, tenantID int64, fn func(tx TenantTx, rec *Record) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + recordColumns + `
		FROM tenants
		WHERE id = $1 AND subscription_plan IS NOT NULL
		FOR UPDATE
	`
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{TenantID: tenantID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock subscription: %w", err)
	}

	if err := fn(&postgresTx{ctx: ctx, tx: tx, tenantID: tenantID}, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	ctx      context.Context
	tx       *sql.Tx
	tenantID int64
}

func (t *postgresTx) SaveRecord(rec *Record) error {
	if rec.TenantID != t.tenantID {
		return fmt.Errorf("record belongs to tenant %d, not %d", rec.TenantID, t.tenantID)
	}
	query := `
		UPDATE tenants
		SET subscription_plan = $1, subscription_status = $2, subscription_start = $3,
		    subscription_end = $4, auto_renew = $5, is_pending_payment = $6,
		    last_payment_date = $7, is_active = $8
		WHERE id = $9
	`
	var lastPayment sql.NullTime
	if rec.LastPaymentDate != nil {
		lastPayment = sql.NullTime{Time: *rec.LastPaymentDate, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx, query,
		rec.Plan, rec.Status, rec.StartDate, rec.EndDate, rec.AutoRenew,
		rec.PendingPayment, lastPayment, rec.TenantActive, rec.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

func (t *postgresTx) AppendEntry(entry *LedgerEntry) error {
	if entry.TenantID != t.tenantID {
		return fmt.Errorf("ledger entry belongs to tenant %d, not %d", entry.TenantID, t.tenantID)
	}
	query := `
		INSERT INTO subscription_history (tenant_id, plan, period_start, period_end, amount, is_paid, paid_at, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var paidAt sql.NullTime
	if entry.PaidAt != nil {
		paidAt = sql.NullTime{Time: *entry.PaidAt, Valid: true}
	}
	err := t.tx.QueryRowContext(t.ctx, query,
		entry.TenantID, entry.Plan, entry.PeriodStart, entry.PeriodEnd, entry.Amount,
		entry.IsPaid, paidAt, entry.Notes, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (t *postgresTx) LatestUnpaidEntry() (*LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM subscription_history
		WHERE tenant_id = $1 AND is_paid = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	e, err := scanEntry(t.tx.QueryRowContext(t.ctx, query, t.tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unpaid ledger entry: %w", err)
	}
	return e, nil
}

func (t *postgresTx) MarkEntryPaid(entryID int64, paidAt time.Time) error {
	query := `UPDATE subscription_history SET is_paid = TRUE, paid_at = $1 WHERE id = $2 AND tenant_id = $3`
	result, err := t.tx.ExecContext(t.ctx, query, paidAt, entryID, t.tenantID)
	if err != nil {
		return fmt.Errorf("failed to mark ledger entry paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ledger entry %d not found", entryID)
	}
	return nil
}
