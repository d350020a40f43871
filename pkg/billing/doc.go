// Package billing owns the tenant subscription lifecycle and its billing ledger.
//
// # Overview
//
// Every tenant carries one subscription Record (plan, status, period dates and
// payment flags) and an append-only list of LedgerEntry values, one per billed
// period. LifecycleService is the only writer of both. The renewal scheduler,
// the admin command surface and tenant provisioning all call into it.
//
// # Plans
//
// Monthly and yearly plans renew automatically when auto renew is enabled.
// Enterprise plans are billed manually and are never renewed by the scheduler.
// Periods are calendar based: a monthly renewal of a period ending on Jan 31
// ends on the last day of February.
//
// # State Machine
//
//	ACTIVE  -> ACTIVE     Renew (renewed), Extend, ManualUpdate
//	ACTIVE  -> EXPIRED    ExpireOverdue, Renew with an unpaid previous period
//	EXPIRED -> ACTIVE     Extend, ManualUpdate
//	any     -> CANCELLED  Cancel
//
// Transitions that move the period end write a ledger entry. ExpireOverdue,
// MarkPaid, SetAutoRenew and Cancel only change flags.
//
// # Usage Example
//
//	store := billing.NewPostgresStore(db)
//	svc := billing.NewService(store,
//		billing.WithClock(clockwork.NewRealClock()),
//		billing.WithLogger(log),
//	)
//
//	outcome, err := svc.Renew(ctx, tenantID)
//	if err != nil {
//		return err
//	}
//
//	rec, err := svc.Extend(ctx, tenantID, rec.EndDate.AddDate(0, 1, 0), decimal.NewFromInt(750))
//
// # Concurrency
//
// All single-tenant mutations run inside Store.WithTenant. PostgresStore locks
// the tenant row with SELECT ... FOR UPDATE; MemoryStore uses a mutex per
// tenant. Renew re-checks eligibility under that lock, so an operator
// extension racing a scheduler run cannot advance the period twice.
//
// # Amounts
//
// Amounts use shopspring/decimal and are stored as NUMERIC(12,2). A zero
// amount extension or update is recorded as an entry that is already paid and
// does not set the pending payment flag.
package billing
