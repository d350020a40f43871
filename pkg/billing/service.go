package billing

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var serviceTracer = otel.Tracer("menuboard/billing/service")

// DefaultRenewalLookahead is how far ahead of the period end a tenant becomes
// eligible for renewal
const DefaultRenewalLookahead = 24 * time.Hour

// LifecycleService implements Service on top of a Store
type LifecycleService struct {
	store     Store
	clock     clockwork.Clock
	pricing   Pricing
	lookahead time.Duration
	log       *logrus.Logger
}

// Option configures a LifecycleService
type Option func(*LifecycleService)

// WithClock sets the clock used for every date computation
func WithClock(clock clockwork.Clock) Option {
	return func(s *LifecycleService) { s.clock = clock }
}

// WithPricing sets the plan price list
func WithPricing(pricing Pricing) Option {
	return func(s *LifecycleService) { s.pricing = pricing }
}

// WithLookahead sets the renewal window
func WithLookahead(d time.Duration) Option {
	return func(s *LifecycleService) { s.lookahead = d }
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(s *LifecycleService) { s.log = log }
}

// NewService creates a LifecycleService
func NewService(store Store, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		store:     store,
		clock:     clockwork.NewRealClock(),
		pricing:   DefaultPlanPricing(),
		lookahead: DefaultRenewalLookahead,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.lookahead <= 0 {
		s.lookahead = DefaultRenewalLookahead
	}
	return s
}

// Lookahead returns the configured renewal window
func (s *LifecycleService) Lookahead() time.Duration {
	return s.lookahead
}

func (s *LifecycleService) startSpan(ctx context.Context, name string, tenantID int64) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if tenantID != 0 {
		attrs = append(attrs, attribute.Int64("tenant_id", tenantID))
	}
	return serviceTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Provision creates the initial ACTIVE period and its first ledger entry.
// When EndDate is zero it defaults to one plan period after StartDate, and
// when Amount is nil the plan price is charged.
func (s *LifecycleService) Provision(ctx context.Context, req *ProvisionRequest) (rec *Record, err error) {
	ctx, span := s.startSpan(ctx, "Provision", req.TenantID)
	defer func() { endSpan(span, err) }()

	now := s.clock.Now()
	if req.TenantID <= 0 {
		return nil, NewValidationError("tenant_id", "tenant id is required")
	}
	if !req.Plan.Valid() {
		return nil, NewValidationError("plan", "unknown plan %q", req.Plan)
	}

	start := req.StartDate
	if start.IsZero() {
		start = now
	}
	end := req.EndDate
	if end.IsZero() {
		if !req.Plan.Renewable() {
			return nil, NewValidationError("end_date", "end date is required for the %s plan", req.Plan)
		}
		end = req.Plan.AddPeriod(start)
	}

	amount := s.pricing.Price(req.Plan)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.IsNegative() {
		return nil, NewValidationError("amount", "amount must not be negative")
	}

	rec = &Record{
		TenantID:  req.TenantID,
		Plan:      req.Plan,
		StartDate: start,
		EndDate:   end,
		AutoRenew: req.AutoRenew,
	}
	rec.setStatus(SubscriptionStatusActive)

	entry := &LedgerEntry{
		TenantID:    req.TenantID,
		Plan:        req.Plan,
		PeriodStart: start,
		PeriodEnd:   end,
		Amount:      amount,
		Notes:       NoteProvisioned,
		CreatedAt:   now,
	}
	openPeriod(rec, entry)

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Provision(ctx, rec, entry); err != nil {
		return nil, classify("provision subscription", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": rec.TenantID,
		"plan":      rec.Plan,
		"end_date":  rec.EndDate,
	}).Info("Subscription provisioned")
	return rec, nil
}

// Renew advances an eligible tenant by one plan period. Eligibility is
// re-checked under the tenant lock so a concurrent operator change is never
// renewed on top of.
func (s *LifecycleService) Renew(ctx context.Context, tenantID int64) (outcome RenewalOutcome, err error) {
	ctx, span := s.startSpan(ctx, "Renew", tenantID)
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		endSpan(span, err)
	}()

	now := s.clock.Now()
	log := s.log.WithField("tenant_id", tenantID)

	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		if rec.Plan == PlanEnterprise {
			outcome = OutcomeSkippedManualPlan
			return nil
		}
		if !s.dueForRenewal(rec, now) {
			outcome = OutcomeSkippedNotDue
			return nil
		}

		if rec.PendingPayment {
			rec.setStatus(SubscriptionStatusExpired)
			rec.AutoRenew = false
			if err := tx.SaveRecord(rec); err != nil {
				return err
			}
			outcome = OutcomeSkippedPendingPayment
			return nil
		}

		oldEnd := rec.EndDate
		rec.EndDate = rec.Plan.AddPeriod(oldEnd)
		rec.PendingPayment = true
		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		if err := tx.AppendEntry(&LedgerEntry{
			TenantID:    tenantID,
			Plan:        rec.Plan,
			PeriodStart: oldEnd,
			PeriodEnd:   rec.EndDate,
			Amount:      s.pricing.Price(rec.Plan),
			Notes:       NoteAutoRenewal,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		outcome = OutcomeRenewed
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Subscription renewal failed")
		return OutcomeFailed, classify("renew subscription", err)
	}

	switch outcome {
	case OutcomeRenewed:
		log.Info("Subscription renewed")
	case OutcomeSkippedPendingPayment:
		log.Warn("Subscription expired: previous period unpaid")
	default:
		log.WithField("outcome", outcome).Debug("Subscription renewal skipped")
	}
	return outcome, nil
}

func (s *LifecycleService) dueForRenewal(rec *Record, now time.Time) bool {
	if rec.Status != SubscriptionStatusActive || !rec.AutoRenew {
		return false
	}
	return !rec.EndDate.Before(now) && !rec.EndDate.After(now.Add(s.lookahead))
}

// ExpireOverdue expires every ACTIVE tenant whose period has ended
func (s *LifecycleService) ExpireOverdue(ctx context.Context) (result *ExpirationResult, err error) {
	ctx, span := s.startSpan(ctx, "ExpireOverdue", 0)
	defer func() { endSpan(span, err) }()

	ids, err := s.store.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return nil, classify("expire subscriptions", err)
	}
	if ids == nil {
		ids = []int64{}
	}

	span.SetAttributes(attribute.Int("expired", len(ids)))
	if len(ids) > 0 {
		s.log.WithFields(logrus.Fields{
			"count":      len(ids),
			"tenant_ids": ids,
		}).Info("Expired overdue subscriptions")
	}
	return &ExpirationResult{Count: len(ids), TenantIDs: ids}, nil
}

// MarkPaid clears the pending flag and settles the most recent unpaid ledger
// entry. A missing unpaid entry is tolerated.
func (s *LifecycleService) MarkPaid(ctx context.Context, tenantID int64) (out *Record, err error) {
	ctx, span := s.startSpan(ctx, "MarkPaid", tenantID)
	defer func() { endSpan(span, err) }()

	now := s.clock.Now()
	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		rec.PendingPayment = false
		rec.LastPaymentDate = &now

		entry, err := tx.LatestUnpaidEntry()
		if err != nil {
			return err
		}
		if entry == nil {
			s.log.WithField("tenant_id", tenantID).Warn("No unpaid ledger entry to settle")
		} else if err := tx.MarkEntryPaid(entry.ID, now); err != nil {
			return err
		}

		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, classify("mark subscription paid", err)
	}

	s.log.WithField("tenant_id", tenantID).Info("Subscription marked paid")
	return out, nil
}

// Extend moves the period end forward and reactivates the tenant
func (s *LifecycleService) Extend(ctx context.Context, tenantID int64, newEndDate time.Time, amount decimal.Decimal) (out *Record, err error) {
	ctx, span := s.startSpan(ctx, "Extend", tenantID)
	defer func() { endSpan(span, err) }()

	if amount.IsNegative() {
		return nil, NewValidationError("amount", "amount must not be negative")
	}
	if newEndDate.IsZero() {
		return nil, NewValidationError("new_end_date", "new end date is required")
	}

	now := s.clock.Now()
	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		if !newEndDate.After(rec.EndDate) {
			return NewValidationError("new_end_date", "new end date must be after current end date %s",
				rec.EndDate.Format(time.RFC3339))
		}

		entry := &LedgerEntry{
			TenantID:    tenantID,
			Plan:        rec.Plan,
			PeriodStart: rec.EndDate,
			PeriodEnd:   newEndDate,
			Amount:      amount,
			Notes:       NoteManualExtension,
			CreatedAt:   now,
		}
		rec.EndDate = newEndDate
		rec.setStatus(SubscriptionStatusActive)
		openPeriod(rec, entry)

		if err := rec.Validate(); err != nil {
			return err
		}
		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		if err := tx.AppendEntry(entry); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, classify("extend subscription", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"end_date":  newEndDate,
		"amount":    amount.String(),
	}).Info("Subscription extended")
	return out, nil
}

// ManualUpdate overrides plan and dates and reactivates the tenant
func (s *LifecycleService) ManualUpdate(ctx context.Context, tenantID int64, req *ManualUpdateRequest) (out *Record, err error) {
	ctx, span := s.startSpan(ctx, "ManualUpdate", tenantID)
	defer func() { endSpan(span, err) }()

	if !req.Plan.Valid() {
		return nil, NewValidationError("plan", "unknown plan %q", req.Plan)
	}
	if req.StartDate.IsZero() {
		return nil, NewValidationError("start_date", "start date is required")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, NewValidationError("end_date", "end date must be after start date")
	}
	if req.Amount.IsNegative() {
		return nil, NewValidationError("amount", "amount must not be negative")
	}
	if req.AutoRenew != nil && *req.AutoRenew && !req.Plan.Renewable() {
		return nil, NewValidationError("auto_renew", "auto renew is not available on the %s plan", req.Plan)
	}

	notes := req.Notes
	if notes == "" {
		notes = NoteManualUpdate
	}

	now := s.clock.Now()
	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		rec.Plan = req.Plan
		rec.StartDate = req.StartDate
		rec.EndDate = req.EndDate
		rec.setStatus(SubscriptionStatusActive)
		if req.AutoRenew != nil {
			rec.AutoRenew = *req.AutoRenew
		}
		if !rec.Plan.Renewable() {
			rec.AutoRenew = false
		}

		entry := &LedgerEntry{
			TenantID:    tenantID,
			Plan:        req.Plan,
			PeriodStart: req.StartDate,
			PeriodEnd:   req.EndDate,
			Amount:      req.Amount,
			Notes:       notes,
			CreatedAt:   now,
		}
		openPeriod(rec, entry)

		if err := rec.Validate(); err != nil {
			return err
		}
		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		if err := tx.AppendEntry(entry); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, classify("update subscription", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"plan":      req.Plan,
		"end_date":  req.EndDate,
	}).Info("Subscription updated manually")
	return out, nil
}

// openPeriod leaves the new period's entry unpaid and marks the record
// pending, whatever the amount. A zero-amount period still waits for
// MarkPaid, so a pending record always points at an open latest entry.
func openPeriod(rec *Record, entry *LedgerEntry) {
	entry.IsPaid = false
	entry.PaidAt = nil
	rec.PendingPayment = true
}

// SetAutoRenew toggles automatic renewal
func (s *LifecycleService) SetAutoRenew(ctx context.Context, tenantID int64, enabled bool) (out *Record, err error) {
	ctx, span := s.startSpan(ctx, "SetAutoRenew", tenantID)
	defer func() { endSpan(span, err) }()

	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		if enabled && !rec.Plan.Renewable() {
			return NewValidationError("enabled", "auto renew is not available on the %s plan", rec.Plan)
		}
		rec.AutoRenew = enabled
		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, classify("set auto renew", err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"auto_renew": enabled,
	}).Info("Subscription auto renew changed")
	return out, nil
}

// Cancel moves the tenant to CANCELLED. No ledger entry is written.
func (s *LifecycleService) Cancel(ctx context.Context, tenantID int64) (out *Record, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", tenantID)
	defer func() { endSpan(span, err) }()

	err = s.store.WithTenant(ctx, tenantID, func(tx TenantTx, rec *Record) error {
		rec.setStatus(SubscriptionStatusCancelled)
		rec.AutoRenew = false
		if err := tx.SaveRecord(rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, classify("cancel subscription", err)
	}

	s.log.WithField("tenant_id", tenantID).Info("Subscription cancelled")
	return out, nil
}

// Get returns the tenant's current record
func (s *LifecycleService) Get(ctx context.Context, tenantID int64) (*Record, error) {
	rec, err := s.store.GetRecord(ctx, tenantID)
	if err != nil {
		return nil, classify("get subscription", err)
	}
	return rec, nil
}

// Ledger returns up to limit ledger entries, newest first. limit <= 0 returns
// all entries.
func (s *LifecycleService) Ledger(ctx context.Context, tenantID int64, limit int) ([]*LedgerEntry, error) {
	entries, err := s.store.ListLedger(ctx, tenantID, limit)
	if err != nil {
		return nil, classify("list ledger", err)
	}
	if entries == nil {
		entries = []*LedgerEntry{}
	}
	return entries, nil
}

// RenewalCandidates returns the tenants eligible for renewal right now
func (s *LifecycleService) RenewalCandidates(ctx context.Context) ([]int64, error) {
	now := s.clock.Now()
	ids, err := s.store.ListRenewalCandidates(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return nil, classify("list renewal candidates", err)
	}
	return ids, nil
}

var _ Service = (*LifecycleService)(nil)
