package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Plan represents a billing tier
type Plan string

const (
	PlanMonthly    Plan = "monthly"
	PlanYearly     Plan = "yearly"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	switch p {
	case PlanMonthly, PlanYearly, PlanEnterprise:
		return true
	}
	return false
}

// Renewable reports whether the plan can be renewed automatically.
// Enterprise plans are billed manually.
func (p Plan) Renewable() bool {
	return p == PlanMonthly || p == PlanYearly
}

// AddPeriod advances t by one billing period of the plan. Month and year
// arithmetic is calendar based and clamps to the last day of the target month,
// so Jan 31 + 1 month is Feb 28 (or 29) rather than Mar 3.
func (p Plan) AddPeriod(t time.Time) time.Time {
	switch p {
	case PlanMonthly:
		return addMonthsClamped(t, 1)
	case PlanYearly:
		return addMonthsClamped(t, 12)
	default:
		return t
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// SubscriptionStatus represents the status of a tenant subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return true
	}
	return false
}

// Record is the subscription state embedded in a tenant row
type Record struct {
	TenantID        int64              `json:"tenant_id"`
	Plan            Plan               `json:"plan"`
	Status          SubscriptionStatus `json:"status"`
	StartDate       time.Time          `json:"start_date"`
	EndDate         time.Time          `json:"end_date"`
	AutoRenew       bool               `json:"auto_renew"`
	PendingPayment  bool               `json:"is_pending_payment"`
	LastPaymentDate *time.Time         `json:"last_payment_date,omitempty"`
	TenantActive    bool               `json:"tenant_active"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastPaymentDate != nil {
		t := *r.LastPaymentDate
		c.LastPaymentDate = &t
	}
	return &c
}

// Validate checks the record invariants
func (r *Record) Validate() error {
	if !r.Plan.Valid() {
		return NewValidationError("plan", "unknown plan %q", r.Plan)
	}
	if !r.Status.Valid() {
		return NewValidationError("status", "unknown status %q", r.Status)
	}
	if !r.EndDate.After(r.StartDate) {
		return NewValidationError("end_date", "end date must be after start date")
	}
	if r.AutoRenew && !r.Plan.Renewable() {
		return NewValidationError("auto_renew", "auto renew is not available on the %s plan", r.Plan)
	}
	if r.TenantActive != (r.Status == SubscriptionStatusActive) {
		return NewValidationError("tenant_active", "tenant active flag must follow subscription status")
	}
	return nil
}

// setStatus keeps TenantActive in step with Status
func (r *Record) setStatus(status SubscriptionStatus) {
	r.Status = status
	r.TenantActive = status == SubscriptionStatusActive
}

// LedgerEntry is one billing period in a tenant's history. Entries are
// append-only; only IsPaid and PaidAt change after insert.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	Plan        Plan            `json:"plan"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Amount      decimal.Decimal `json:"amount"`
	IsPaid      bool            `json:"is_paid"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Ledger notes written by the service
const (
	NoteProvisioned     = "initial subscription"
	NoteAutoRenewal     = "auto renewal"
	NoteManualExtension = "manual extension"
	NoteManualUpdate    = "manual update"
)

// RenewalOutcome is the result of a single renewal attempt
type RenewalOutcome string

const (
	OutcomeRenewed               RenewalOutcome = "renewed"
	OutcomeSkippedPendingPayment RenewalOutcome = "skipped_pending_payment"
	OutcomeSkippedManualPlan     RenewalOutcome = "skipped_manual_plan"
	OutcomeSkippedNotDue         RenewalOutcome = "skipped_not_due"
	OutcomeFailed                RenewalOutcome = "failed"
)

// ExpirationResult lists the tenants moved to expired by ExpireOverdue
type ExpirationResult struct {
	Count     int     `json:"count"`
	TenantIDs []int64 `json:"tenant_ids"`
}

// ProvisionRequest represents the initial subscription of a new tenant
type ProvisionRequest struct {
	TenantID  int64            `json:"tenant_id"`
	Plan      Plan             `json:"plan"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	AutoRenew bool             `json:"auto_renew"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// ManualUpdateRequest represents an operator override of plan and dates
type ManualUpdateRequest struct {
	Plan      Plan            `json:"plan"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes,omitempty"`
	AutoRenew *bool           `json:"auto_renew,omitempty"`
}

// Service defines the subscription lifecycle operations. It is the only
// writer of subscription records and ledger entries.
type Service interface {
	// Lifecycle transitions
	Provision(ctx context.Context, req *ProvisionRequest) (*Record, error)
	Renew(ctx context.Context, tenantID int64) (RenewalOutcome, error)
	ExpireOverdue(ctx context.Context) (*ExpirationResult, error)
	MarkPaid(ctx context.Context, tenantID int64) (*Record, error)
	Extend(ctx context.Context, tenantID int64, newEndDate time.Time, amount decimal.Decimal) (*Record, error)
	ManualUpdate(ctx context.Context, tenantID int64, req *ManualUpdateRequest) (*Record, error)
	SetAutoRenew(ctx context.Context, tenantID int64, enabled bool) (*Record, error)
	Cancel(ctx context.Context, tenantID int64) (*Record, error)

	// Read model
	Get(ctx context.Context, tenantID int64) (*Record, error)
	Ledger(ctx context.Context, tenantID int64, limit int) ([]*LedgerEntry, error)
	RenewalCandidates(ctx context.Context) ([]int64, error)
}
