// Package scheduler runs the daily renewal and expiration batches.
//
// A renewal run selects the tenants due for renewal, renews each one in its
// own bounded transaction and records the outcome, then expires every tenant
// whose period has lapsed. A failure on one tenant never aborts the batch and
// is not retried within the run; the tenant is still eligible next time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var schedulerTracer = otel.Tracer("menuboard/scheduler")

// Job names, also used as run lock keys and metric labels
const (
	JobRenewals    = "renewals"
	JobExpirations = "expirations"
)

// ErrRunInProgress is returned when a run of the same job is already active
var ErrRunInProgress = errors.New("scheduler run already in progress")

// TenantFailure describes one tenant that could not be processed
type TenantFailure struct {
	TenantID int64  `json:"tenant_id"`
	Error    string `json:"error"`
}

// PartialBatchFailure is returned alongside a complete summary when at least
// one tenant failed
type PartialBatchFailure struct {
	Job      string
	Failures []TenantFailure
}

func (e *PartialBatchFailure) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, fmt.Sprintf("%d", f.TenantID))
	}
	return fmt.Sprintf("%s run failed for %d tenant(s): %s", e.Job, len(e.Failures), strings.Join(ids, ", "))
}

// RenewalSummary reports the result of a renewal run
type RenewalSummary struct {
	Renewed               []int64         `json:"renewed"`
	SkippedPendingPayment []int64         `json:"skipped_pending_payment"`
	SkippedManualPlan     []int64         `json:"skipped_manual_plan"`
	SkippedNotDue         []int64         `json:"skipped_not_due"`
	Failed                []TenantFailure `json:"failed"`
	Expired               []int64         `json:"expired"`
	// Errors lists run steps that failed as a whole (candidate listing,
	// expiration). Per-tenant failures are in Failed.
	Errors                []string        `json:"errors"`
	StartedAt             time.Time       `json:"started_at"`
	FinishedAt            time.Time       `json:"finished_at"`
}

// Incomplete reports whether a whole run step failed
func (s *RenewalSummary) Incomplete() bool {
	return len(s.Errors) > 0
}

func newRenewalSummary(start time.Time) *RenewalSummary {
	return &RenewalSummary{
		Renewed:               []int64{},
		SkippedPendingPayment: []int64{},
		SkippedManualPlan:     []int64{},
		SkippedNotDue:         []int64{},
		Failed:                []TenantFailure{},
		Expired:               []int64{},
		Errors:                []string{},
		StartedAt:             start,
	}
}

func (s *RenewalSummary) add(tenantID int64, outcome billing.RenewalOutcome, err error) {
	switch outcome {
	case billing.OutcomeRenewed:
		s.Renewed = append(s.Renewed, tenantID)
	case billing.OutcomeSkippedPendingPayment:
		s.SkippedPendingPayment = append(s.SkippedPendingPayment, tenantID)
	case billing.OutcomeSkippedManualPlan:
		s.SkippedManualPlan = append(s.SkippedManualPlan, tenantID)
	case billing.OutcomeSkippedNotDue:
		s.SkippedNotDue = append(s.SkippedNotDue, tenantID)
	default:
		msg := "unknown renewal outcome"
		if err != nil {
			msg = err.Error()
		}
		s.Failed = append(s.Failed, TenantFailure{TenantID: tenantID, Error: msg})
	}
}

func (s *RenewalSummary) sort() {
	for _, ids := range [][]int64{s.Renewed, s.SkippedPendingPayment, s.SkippedManualPlan, s.SkippedNotDue, s.Expired} {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	sort.Slice(s.Failed, func(i, j int) bool { return s.Failed[i].TenantID < s.Failed[j].TenantID })
}

// ExpirationSummary reports the result of an expiration run
type ExpirationSummary struct {
	Expired    []int64   `json:"expired"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Renewer is the part of billing.Service the scheduler drives
type Renewer interface {
	RenewalCandidates(ctx context.Context) ([]int64, error)
	Renew(ctx context.Context, tenantID int64) (billing.RenewalOutcome, error)
	ExpireOverdue(ctx context.Context) (*billing.ExpirationResult, error)
}

// Recorder receives scheduler metrics
type Recorder interface {
	RecordRenewal(outcome string)
	RecordExpirations(count int)
	ObserveSchedulerRun(job string, duration time.Duration)
}

// Config configures a Scheduler
type Config struct {
	// Concurrency bounds how many tenants are renewed at once
	Concurrency int
	// TenantTimeout bounds a single tenant's renewal
	TenantTimeout time.Duration
	// LockTTL is how long a run lock survives a crashed holder
	LockTTL time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:   8,
		TenantTimeout: 30 * time.Second,
		LockTTL:       30 * time.Minute,
	}
}

// Scheduler runs renewal and expiration batches
type Scheduler struct {
	service  Renewer
	lock     RunLock
	clock    clockwork.Clock
	config   Config
	recorder Recorder
	log      *logrus.Logger
}

// New creates a Scheduler. A nil lock means a LocalLock; clock, recorder and
// log may be nil.
func New(service Renewer, lock RunLock, config Config, clock clockwork.Clock, recorder Recorder, log *logrus.Logger) *Scheduler {
	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.TenantTimeout <= 0 {
		config.TenantTimeout = defaults.TenantTimeout
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if lock == nil {
		lock = NewLocalLock()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		service:  service,
		lock:     lock,
		clock:    clock,
		config:   config,
		recorder: recorder,
		log:      log,
	}
}

// RunRenewals renews every eligible tenant, then expires overdue tenants.
// Expiration runs even when the candidate listing fails. Once the lock is
// held a summary is always returned; the error joins a *PartialBatchFailure
// for failed tenants with any failed run step.
func (s *Scheduler) RunRenewals(ctx context.Context) (*RenewalSummary, error) {
	ctx, span := schedulerTracer.Start(ctx, "RunRenewals")
	defer span.End()

	release, err := s.lock.Acquire(ctx, JobRenewals, s.config.LockTTL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	summary := newRenewalSummary(s.clock.Now())
	log := s.log.WithField("job", JobRenewals)

	var candidateErr error
	candidates, err := s.service.RenewalCandidates(ctx)
	if err != nil {
		candidateErr = fmt.Errorf("failed to list renewal candidates: %w", err)
		summary.Errors = append(summary.Errors, candidateErr.Error())
		log.WithError(err).Error("Candidate listing failed, skipping renewals")
	}
	log.WithField("candidates", len(candidates)).Info("Starting renewal run")

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(s.config.Concurrency)

	for _, tenantID := range candidates {
		tenantID := tenantID
		eg.Go(func() error {
			outcome, err := s.renewOne(ctx, tenantID)
			if err != nil {
				log.WithError(err).WithField("tenant_id", tenantID).Warn("Tenant renewal failed")
			}
			s.recordRenewal(outcome)

			mu.Lock()
			summary.add(tenantID, outcome, err)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	// Expiration runs regardless of renewal failures
	var expireErr error
	result, err := s.service.ExpireOverdue(ctx)
	if err != nil {
		expireErr = fmt.Errorf("failed to expire overdue subscriptions: %w", err)
		summary.Errors = append(summary.Errors, expireErr.Error())
		log.WithError(err).Error("Expiration step failed")
	} else {
		summary.Expired = append(summary.Expired, result.TenantIDs...)
		s.recordExpirations(result.Count)
	}

	summary.FinishedAt = s.clock.Now()
	summary.sort()
	s.observeRun(JobRenewals, summary.FinishedAt.Sub(summary.StartedAt))

	span.SetAttributes(
		attribute.Int("renewed", len(summary.Renewed)),
		attribute.Int("failed", len(summary.Failed)),
		attribute.Int("expired", len(summary.Expired)),
	)
	log.WithFields(logrus.Fields{
		"renewed":                 len(summary.Renewed),
		"skipped_pending_payment": len(summary.SkippedPendingPayment),
		"skipped_manual_plan":     len(summary.SkippedManualPlan),
		"skipped_not_due":         len(summary.SkippedNotDue),
		"failed":                  len(summary.Failed),
		"expired":                 len(summary.Expired),
	}).Info("Renewal run completed")

	var runErr error
	if len(summary.Failed) > 0 {
		runErr = &PartialBatchFailure{Job: JobRenewals, Failures: summary.Failed}
	}
	if err := errors.Join(candidateErr, runErr, expireErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "renewal run incomplete")
		return summary, err
	}
	return summary, nil
}

// renewOne renews a single tenant under its own timeout and turns a panic into
// a failure
func (s *Scheduler) renewOne(ctx context.Context, tenantID int64) (outcome billing.RenewalOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = billing.OutcomeFailed
			err = fmt.Errorf("panic during renewal: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return billing.OutcomeFailed, err
	}

	tctx, cancel := context.WithTimeout(ctx, s.config.TenantTimeout)
	defer cancel()

	outcome, err = s.service.Renew(tctx, tenantID)
	if err != nil {
		return billing.OutcomeFailed, err
	}
	return outcome, nil
}

// RunExpirations expires every overdue tenant
func (s *Scheduler) RunExpirations(ctx context.Context) (*ExpirationSummary, error) {
	ctx, span := schedulerTracer.Start(ctx, "RunExpirations")
	defer span.End()

	release, err := s.lock.Acquire(ctx, JobExpirations, s.config.LockTTL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	summary := &ExpirationSummary{Expired: []int64{}, StartedAt: s.clock.Now()}
	result, err := s.service.ExpireOverdue(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to expire subscriptions")
		return nil, fmt.Errorf("failed to expire overdue subscriptions: %w", err)
	}

	summary.Expired = append(summary.Expired, result.TenantIDs...)
	summary.FinishedAt = s.clock.Now()
	s.recordExpirations(result.Count)
	s.observeRun(JobExpirations, summary.FinishedAt.Sub(summary.StartedAt))

	s.log.WithFields(logrus.Fields{
		"job":     JobExpirations,
		"expired": len(summary.Expired),
	}).Info("Expiration run completed")
	return summary, nil
}

func (s *Scheduler) recordRenewal(outcome billing.RenewalOutcome) {
	if s.recorder != nil {
		s.recorder.RecordRenewal(string(outcome))
	}
}

func (s *Scheduler) recordExpirations(count int) {
	if s.recorder != nil {
		s.recorder.RecordExpirations(count)
	}
}

func (s *Scheduler) observeRun(job string, d time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveSchedulerRun(job, d)
	}
}
