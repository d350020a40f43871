package billing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local development and tests.
// Per-tenant mutexes give the same serialization as row locks in Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Record
	ledger  map[int64][]*LedgerEntry
	locks   map[int64]*sync.Mutex
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. now stamps ledger CreatedAt;
// nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[int64]*Record),
		ledger:  make(map[int64][]*LedgerEntry),
		locks:   make(map[int64]*sync.Mutex),
		now:     now,
	}
}

func (s *MemoryStore) tenantLock(tenantID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenantID] = l
	}
	return l
}

// GetRecord returns a copy of the tenant record
func (s *MemoryStore) GetRecord(ctx context.Context, tenantID int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tenantID]
	if !ok {
		return nil, &NotFoundError{TenantID: tenantID}
	}
	return rec.Clone(), nil
}

// ListLedger returns copies of the tenant's entries, newest first
func (s *MemoryStore) ListLedger(ctx context.Context, tenantID int64, limit int) ([]*LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[tenantID]; !ok {
		return nil, &NotFoundError{TenantID: tenantID}
	}

	entries := s.ledger[tenantID]
	out := make([]*LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneEntry(entries[i]))
	}
	return out, nil
}

// ListRenewalCandidates returns matching tenant IDs in ascending order
func (s *MemoryStore) ListRenewalCandidates(ctx context.Context, from, to time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, rec := range s.records {
		if rec.Status != SubscriptionStatusActive || !rec.AutoRenew {
			continue
		}
		if rec.EndDate.Before(from) || rec.EndDate.After(to) {
			continue
		}
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

// ExpireOverdue expires overdue tenants one at a time under their own lock
func (s *MemoryStore) ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.RLock()
	candidates := make([]int64, 0)
	for id, rec := range s.records {
		if rec.Status == SubscriptionStatusActive && rec.EndDate.Before(now) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()
	sortIDs(candidates)

	var expired []int64
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		l := s.tenantLock(id)
		l.Lock()
		s.mu.Lock()
		// Re-check under the lock; an operator may have extended meanwhile.
		if rec, ok := s.records[id]; ok && rec.Status == SubscriptionStatusActive && rec.EndDate.Before(now) {
			rec.setStatus(SubscriptionStatusExpired)
			rec.AutoRenew = false
			expired = append(expired, id)
		}
		s.mu.Unlock()
		l.Unlock()
	}
	return expired, nil
}

// Provision stores the initial record and ledger entry
func (s *MemoryStore) Provision(ctx context.Context, rec *Record, entry *LedgerEntry) error {
	l := s.tenantLock(rec.TenantID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TenantID]; ok {
		return NewValidationError("tenant_id", "tenant %d already has a subscription", rec.TenantID)
	}
	s.records[rec.TenantID] = rec.Clone()
	s.appendLocked(cloneEntry(entry))
	*entry = *s.ledger[rec.TenantID][len(s.ledger[rec.TenantID])-1]
	return nil
}

// WithTenant stages changes in a memoryTx and applies them only when fn succeeds
func (s *MemoryStore) WithTenant(ctx context.Context, tenantID int64, fn func(tx TenantTx, rec *Record) error) error {
	l := s.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := s.GetRecord(ctx, tenantID)
	if err != nil {
		return err
	}

	tx := &memoryTx{store: s, tenantID: tenantID, paid: make(map[int64]time.Time)}
	if err := fn(tx, rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.record != nil {
		s.records[tenantID] = tx.record
	}
	for _, e := range s.ledger[tenantID] {
		if paidAt, ok := tx.paid[e.ID]; ok {
			e.IsPaid = true
			t := paidAt
			e.PaidAt = &t
		}
	}
	for _, e := range tx.appended {
		s.appendLocked(e)
	}
	return nil
}

// appendLocked assigns an ID and CreatedAt; callers hold s.mu
func (s *MemoryStore) appendLocked(e *LedgerEntry) {
	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.ledger[e.TenantID] = append(s.ledger[e.TenantID], e)
}

type memoryTx struct {
	store    *MemoryStore
	tenantID int64
	record   *Record
	appended []*LedgerEntry
	paid     map[int64]time.Time
}

func (tx *memoryTx) SaveRecord(rec *Record) error {
	if rec.TenantID != tx.tenantID {
		return fmt.Errorf("record belongs to tenant %d, not %d", rec.TenantID, tx.tenantID)
	}
	tx.record = rec.Clone()
	return nil
}

func (tx *memoryTx) AppendEntry(entry *LedgerEntry) error {
	if entry.TenantID != tx.tenantID {
		return fmt.Errorf("ledger entry belongs to tenant %d, not %d", entry.TenantID, tx.tenantID)
	}
	tx.appended = append(tx.appended, cloneEntry(entry))
	return nil
}

// LatestUnpaidEntry only sees committed entries; entries appended in the same
// transaction are never settled by it.
func (tx *memoryTx) LatestUnpaidEntry() (*LedgerEntry, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	var latest *LedgerEntry
	for _, e := range tx.store.ledger[tx.tenantID] {
		if e.IsPaid {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			latest = e
		}
	}
	return cloneEntry(latest), nil
}

func (tx *memoryTx) MarkEntryPaid(entryID int64, paidAt time.Time) error {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, e := range tx.store.ledger[tx.tenantID] {
		if e.ID == entryID {
			tx.paid[entryID] = paidAt
			return nil
		}
	}
	return fmt.Errorf("ledger entry %d not found", entryID)
}

func cloneEntry(e *LedgerEntry) *LedgerEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.PaidAt != nil {
		t := *e.PaidAt
		c.PaidAt = &t
	}
	return &c
}
