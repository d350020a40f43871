package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/menuboard/menuboard/pkg/observability"
)

// HandleCommand dispatches an operator command to the subscription service
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.writeCommandResult(w, r, &req, nil, billing.NewValidationError("body", "%s", err.Error()))
		return
	}

	rec, err := h.dispatch(r.Context(), &req)
	h.writeCommandResult(w, r, &req, rec, err)
}

func (h *Handlers) dispatch(ctx context.Context, req *CommandRequest) (*billing.Record, error) {
	if req.Action == "" {
		return nil, billing.NewValidationError("action", "action is required")
	}
	if req.TenantID <= 0 {
		return nil, billing.NewValidationError("tenant_id", "tenant_id must be a positive integer")
	}

	switch req.Action {
	case ActionProvision:
		return h.service.Provision(ctx, &billing.ProvisionRequest{
			TenantID:  req.TenantID,
			Plan:      req.Plan,
			StartDate: req.StartDate.value(),
			EndDate:   req.EndDate.value(),
			AutoRenew: req.AutoRenew != nil && *req.AutoRenew,
			Amount:    req.Amount,
		})

	case ActionExtend:
		if req.NewEndDate == nil {
			return nil, billing.NewValidationError("new_end_date", "new_end_date is required")
		}
		return h.service.Extend(ctx, req.TenantID, req.NewEndDate.Time, amountOrZero(req.Amount))

	case ActionMarkPaid:
		return h.service.MarkPaid(ctx, req.TenantID)

	case ActionUpdate:
		if req.EndDate == nil {
			return nil, billing.NewValidationError("end_date", "end_date is required")
		}
		return h.service.ManualUpdate(ctx, req.TenantID, &billing.ManualUpdateRequest{
			Plan:      req.Plan,
			StartDate: req.StartDate.value(),
			EndDate:   req.EndDate.Time,
			Amount:    amountOrZero(req.Amount),
			Notes:     req.Notes,
			AutoRenew: req.AutoRenew,
		})

	case ActionSetAutoRenew:
		if req.Enabled == nil {
			return nil, billing.NewValidationError("enabled", "enabled is required")
		}
		return h.service.SetAutoRenew(ctx, req.TenantID, *req.Enabled)

	case ActionCancel:
		return h.service.Cancel(ctx, req.TenantID)

	default:
		return nil, billing.NewValidationError("action", "unknown action %q", req.Action)
	}
}

// A blank amount is a zero-amount (goodwill) change
func amountOrZero(amount *decimal.Decimal) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return *amount
}

func (h *Handlers) writeCommandResult(w http.ResponseWriter, r *http.Request, req *CommandRequest, rec *billing.Record, err error) {
	entry := h.logger(r).WithFields(logrus.Fields{
		"action":    req.Action,
		"tenant_id": req.TenantID,
	})
	if caller := contextkeys.GetCaller(r.Context()); caller != nil {
		entry = entry.WithField("caller", caller.Name)
	}

	if err == nil {
		if h.gate != nil {
			h.gate.Invalidate(req.TenantID)
		}
		h.recordCommand(req.Action, resultOK)
		entry.Info("Subscription command applied")
		_ = httputil.WriteJSON(w, http.StatusOK, CommandResponse{Success: true, Record: rec})
		return
	}

	status, apiErr := ErrorFor(err)
	switch {
	case status == http.StatusBadRequest:
		h.recordCommand(req.Action, resultInvalid)
		entry.WithError(err).Info("Subscription command rejected")
	case status == http.StatusNotFound:
		h.recordCommand(req.Action, resultNotFound)
		entry.WithError(err).Info("Subscription command for unknown tenant")
	default:
		h.recordCommand(req.Action, resultError)
		entry.WithError(err).Error("Subscription command failed")
	}
	_ = httputil.WriteJSON(w, status, CommandResponse{Success: false, Error: &apiErr})
}

func (h *Handlers) recordCommand(action, result string) {
	if h.recorder == nil {
		return
	}
	if !knownAction(action) {
		action = "unknown"
	}
	h.recorder.RecordCommand(action, result)
}

func knownAction(action string) bool {
	switch action {
	case ActionProvision, ActionExtend, ActionMarkPaid, ActionUpdate, ActionSetAutoRenew, ActionCancel:
		return true
	}
	return false
}

func (h *Handlers) logger(r *http.Request) *logrus.Entry {
	return observability.FromContext(r.Context(), h.log)
}
