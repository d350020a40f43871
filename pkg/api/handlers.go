package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/access"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/menuboard/menuboard/pkg/middleware"
	"github.com/menuboard/menuboard/pkg/scheduler"
)

const defaultLedgerLimit = 50

// AccessGate answers access checks and drops cached state after a mutation
type AccessGate interface {
	Decide(ctx context.Context, tenantID int64, bypass bool) (*access.Decision, error)
	Invalidate(tenantID int64)
}

// JobRunner runs the scheduled batches on demand
type JobRunner interface {
	RunRenewals(ctx context.Context) (*scheduler.RenewalSummary, error)
	RunExpirations(ctx context.Context) (*scheduler.ExpirationSummary, error)
}

// CommandRecorder counts admin commands by action and result
type CommandRecorder interface {
	RecordCommand(action, result string)
}

// Options configures Handlers. Recorder and Log may be nil.
type Options struct {
	Service    billing.Service
	Gate       AccessGate
	Jobs       JobRunner
	Recorder   CommandRecorder
	GateConfig middleware.GateConfig
	Log        *logrus.Logger
}

// Handlers serves the subscription admin, access and job endpoints
type Handlers struct {
	service    billing.Service
	gate       AccessGate
	jobs       JobRunner
	recorder   CommandRecorder
	gateConfig middleware.GateConfig
	log        *logrus.Logger
}

// NewHandlers creates a new Handlers
func NewHandlers(opts Options) *Handlers {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	return &Handlers{
		service:    opts.Service,
		gate:       opts.Gate,
		jobs:       opts.Jobs,
		recorder:   opts.Recorder,
		gateConfig: opts.GateConfig,
		log:        log,
	}
}

// RegisterRoutes registers all routes. Callers are expected to run the
// authenticator before the router so that role checks see a caller.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Operator surface
	admin := router.PathPrefix("/admin/subscriptions").Subrouter()
	admin.Use(middleware.RequireRole(middleware.RoleSuperAdmin))
	admin.HandleFunc("/commands", h.HandleCommand).Methods("POST")
	admin.HandleFunc("/{tenant_id}", h.GetSubscription).Methods("GET")
	admin.HandleFunc("/{tenant_id}/ledger", h.GetLedger).Methods("GET")

	// Read model for the session layer
	tenants := router.PathPrefix("/tenants").Subrouter()
	tenants.Use(middleware.RequireRole(middleware.RoleService, middleware.RoleSuperAdmin))
	tenants.HandleFunc("/{tenant_id}/access", h.GetAccess).Methods("GET")
	gated := middleware.SubscriptionGate(h.gate, h.gateConfig, h.log)
	tenants.Handle("/{tenant_id}/gate", gated(http.HandlerFunc(h.GateAllowed))).Methods("GET")

	// Scheduled invocation
	jobs := router.PathPrefix("/internal/jobs").Subrouter()
	jobs.Use(middleware.RequireRole(middleware.RoleService))
	jobs.HandleFunc("/renewals", h.RunRenewals).Methods("POST")
	jobs.HandleFunc("/expirations", h.RunExpirations).Methods("POST")
}

// GetSubscription returns a tenant's subscription record
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.TenantIDOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	rec, err := h.service.Get(r.Context(), tenantID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, rec)
}

// GetLedger lists a tenant's ledger entries, newest first
func (h *Handlers) GetLedger(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.TenantIDOrError(w, r, "tenant_id")
	if !ok {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultLedgerLimit)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "limit must be a non-negative integer")
		return
	}

	entries, err := h.service.Ledger(r.Context(), tenantID, limit)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	if entries == nil {
		entries = []*billing.LedgerEntry{}
	}
	_ = httputil.WriteJSON(w, http.StatusOK, LedgerResponse{TenantID: tenantID, Entries: entries})
}

// GetAccess answers whether a tenant may use the dashboard
func (h *Handlers) GetAccess(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.TenantIDOrError(w, r, "tenant_id")
	if !ok {
		return
	}
	bypass, err := httputil.QueryBool(r, "bypass", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.gate.Decide(r.Context(), tenantID, bypass)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, decision)
}

// GateAllowed is reached only when SubscriptionGate let the request through
func (h *Handlers) GateAllowed(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeError(r *http.Request, w http.ResponseWriter, err error) {
	status, apiErr := ErrorFor(err)
	if status >= http.StatusInternalServerError {
		h.logger(r).WithError(err).Error("Request failed")
	}
	httputil.WriteAPIError(w, status, apiErr)
}
