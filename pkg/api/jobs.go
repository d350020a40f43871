package api

import (
	"net/http"

	"github.com/menuboard/menuboard/pkg/httputil"
)

// RunRenewals runs the renewal batch and always answers with the summary
// once the run started. Per-tenant failures are listed in failed and keep
// the request at 200; a failed run step (candidate listing, expiration) is
// listed in errors and answers 500.
func (h *Handlers) RunRenewals(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.RunRenewals(r.Context())
	if summary == nil {
		h.writeError(r, w, err)
		return
	}

	status := http.StatusOK
	if err != nil && len(summary.Errors) == 0 && len(summary.Failed) == 0 {
		summary.Errors = append(summary.Errors, err.Error())
	}
	switch {
	case summary.Incomplete():
		status = http.StatusInternalServerError
		h.logger(r).WithError(err).Error("Renewal run incomplete")
	case err != nil:
		h.logger(r).WithError(err).Warn("Renewal run finished with failures")
	}
	_ = httputil.WriteJSON(w, status, summary)
}

// RunExpirations runs the expiration batch
func (h *Handlers) RunExpirations(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.RunExpirations(r.Context())
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, summary)
}
