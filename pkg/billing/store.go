package billing

import (
	"context"
	"sort"
	"time"
)

// Store persists subscription records and the billing ledger.
//
// Every mutation of a single tenant goes through WithTenant, which holds that
// tenant's lock for the duration of fn and commits the record update and all
// ledger writes together. Reads outside WithTenant take no locks.
type Store interface {
	// GetRecord returns the current record without locking
	GetRecord(ctx context.Context, tenantID int64) (*Record, error)

	// ListLedger returns ledger entries newest first
	ListLedger(ctx context.Context, tenantID int64, limit int) ([]*LedgerEntry, error)

	// ListRenewalCandidates returns active auto-renewing tenants whose period
	// ends within [from, to]
	ListRenewalCandidates(ctx context.Context, from, to time.Time) ([]int64, error)

	// ExpireOverdue expires every active tenant whose period ended before now
	ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error)

	// Provision writes the initial record and first ledger entry
	Provision(ctx context.Context, rec *Record, entry *LedgerEntry) error

	// WithTenant runs fn with the tenant locked. fn receives a copy of the
	// current record; changes are persisted only through tx and only if fn
	// returns nil.
	WithTenant(ctx context.Context, tenantID int64, fn func(tx TenantTx, rec *Record) error) error
}

// TenantTx is the write surface available inside Store.WithTenant
type TenantTx interface {
	SaveRecord(rec *Record) error
	AppendEntry(entry *LedgerEntry) error
	LatestUnpaidEntry() (*LedgerEntry, error)
	MarkEntryPaid(entryID int64, paidAt time.Time) error
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
