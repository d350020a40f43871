// Package access turns a tenant's subscription state into an allow or deny
// decision for protected dashboard routes.
package access

import (
	"context"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var gateTracer = otel.Tracer("menuboard/access/gate")

// Decision results reported to the DecisionRecorder
const (
	ResultAllowed  = "allowed"
	ResultWarned   = "warned"
	ResultDenied   = "denied"
	ResultBypassed = "bypassed"
	ResultError    = "error"
)

// RecordReader loads a tenant's subscription record
type RecordReader interface {
	Get(ctx context.Context, tenantID int64) (*billing.Record, error)
}

// DecisionRecorder receives one result per decision
type DecisionRecorder interface {
	RecordAccessDecision(result string)
}

// Decision is the outcome of an access check
type Decision struct {
	Allowed  bool                       `json:"allowed"`
	DaysLeft int                        `json:"days_left"`
	Warn     bool                       `json:"warn"`
	Status   billing.SubscriptionStatus `json:"status,omitempty"`
	EndDate  *time.Time                 `json:"end_date,omitempty"`
}

// Config configures a Gate
type Config struct {
	// ExpiringSoonDays is the days-left threshold at which Warn is set
	ExpiringSoonDays int
	// CacheTTL is how long a loaded record is reused. Zero disables caching.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached records
	CacheSize int
}

// DefaultConfig returns the default gate configuration
func DefaultConfig() Config {
	return Config{
		ExpiringSoonDays: 7,
		CacheTTL:         5 * time.Second,
		CacheSize:        10000,
	}
}

// Gate answers access checks. It never writes subscription state.
type Gate struct {
	reader   RecordReader
	clock    clockwork.Clock
	config   Config
	cache    *lru.LRU[int64, *billing.Record]
	recorder DecisionRecorder
	log      *logrus.Logger
}

// NewGate creates a Gate. clock, recorder and log may be nil.
func NewGate(reader RecordReader, config Config, clock clockwork.Clock, recorder DecisionRecorder, log *logrus.Logger) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	if config.ExpiringSoonDays <= 0 {
		config.ExpiringSoonDays = DefaultConfig().ExpiringSoonDays
	}

	g := &Gate{
		reader:   reader,
		clock:    clock,
		config:   config,
		recorder: recorder,
		log:      log,
	}
	if config.CacheTTL > 0 {
		size := config.CacheSize
		if size <= 0 {
			size = DefaultConfig().CacheSize
		}
		g.cache = lru.NewLRU[int64, *billing.Record](size, nil, config.CacheTTL)
	}
	return g
}

// Decide evaluates access for a tenant. With bypass set the record is not
// read and access is always allowed; callers set it for operator
// impersonation.
func (g *Gate) Decide(ctx context.Context, tenantID int64, bypass bool) (decision *Decision, err error) {
	ctx, span := gateTracer.Start(ctx, "Decide", trace.WithAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Bool("bypass", bypass),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if bypass {
		g.record(ResultBypassed)
		return &Decision{Allowed: true}, nil
	}

	rec, err := g.load(ctx, tenantID)
	if err != nil {
		g.record(ResultError)
		return nil, err
	}

	decision = Evaluate(rec, g.clock.Now(), g.config.ExpiringSoonDays)
	switch {
	case !decision.Allowed:
		g.record(ResultDenied)
		g.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"status":    rec.Status,
			"end_date":  rec.EndDate,
		}).Debug("Access denied")
	case decision.Warn:
		g.record(ResultWarned)
	default:
		g.record(ResultAllowed)
	}

	span.SetAttributes(
		attribute.Bool("allowed", decision.Allowed),
		attribute.Int("days_left", decision.DaysLeft),
	)
	return decision, nil
}

// Evaluate applies the access rule to a record at a point in time
func Evaluate(rec *billing.Record, now time.Time, expiringSoonDays int) *Decision {
	end := rec.EndDate
	d := &Decision{
		DaysLeft: DaysLeft(end, now),
		Status:   rec.Status,
		EndDate:  &end,
	}
	if rec.Status != billing.SubscriptionStatusActive || end.Before(now) {
		return d
	}
	d.Allowed = true
	d.Warn = d.DaysLeft <= expiringSoonDays
	return d
}

// DaysLeft returns the whole days remaining until end, rounded up and never
// negative
func DaysLeft(end, now time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(24*time.Hour)))
}

// Invalidate drops any cached record for the tenant
func (g *Gate) Invalidate(tenantID int64) {
	if g.cache != nil {
		g.cache.Remove(tenantID)
	}
}

func (g *Gate) load(ctx context.Context, tenantID int64) (*billing.Record, error) {
	if g.cache != nil {
		if rec, ok := g.cache.Get(tenantID); ok {
			return rec, nil
		}
	}

	rec, err := g.reader.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Add(tenantID, rec)
	}
	return rec, nil
}

func (g *Gate) record(result string) {
	if g.recorder != nil {
		g.recorder.RecordAccessDecision(result)
	}
}
