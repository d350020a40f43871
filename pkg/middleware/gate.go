package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/menuboard/menuboard/pkg/access"
	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/sirupsen/logrus"
)

// Headers exchanged with the session layer
const (
	HeaderImpersonating = "X-Impersonating"
	HeaderDaysLeft      = "X-Subscription-Days-Left"
	HeaderExpiringSoon  = "X-Subscription-Expiring-Soon"
	HeaderStatus        = "X-Subscription-Status"
)

// Decider answers access checks
type Decider interface {
	Decide(ctx context.Context, tenantID int64, bypass bool) (*access.Decision, error)
}

// GateConfig configures SubscriptionGate
type GateConfig struct {
	// BlockedURL is where browsers are sent when access is denied. Empty
	// means always answer 402 with a JSON body.
	BlockedURL string
	// TenantVar is the mux path variable holding the tenant ID
	TenantVar string
}

// SubscriptionGate blocks requests for tenants whose subscription does not
// grant access. Allowed requests carry the days-left headers downstream.
func SubscriptionGate(decider Decider, config GateConfig, log *logrus.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logrus.New()
	}
	if config.TenantVar == "" {
		config.TenantVar = "tenant_id"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := httputil.TenantIDOrError(w, r, config.TenantVar)
			if !ok {
				return
			}

			impersonating, _ := strconv.ParseBool(r.Header.Get(HeaderImpersonating))
			ctx := contextkeys.WithImpersonating(r.Context(), impersonating)

			decision, err := decider.Decide(ctx, tenantID, impersonating)
			if err != nil {
				log.WithError(err).WithField("tenant_id", tenantID).Warn("Access check failed")
				if billing.IsNotFound(err) {
					httputil.WriteErrorMessage(w, http.StatusNotFound, httputil.CodeNotFound, err.Error())
					return
				}
				httputil.WriteInternalError(w)
				return
			}

			w.Header().Set(HeaderDaysLeft, strconv.Itoa(decision.DaysLeft))
			w.Header().Set(HeaderExpiringSoon, strconv.FormatBool(decision.Warn))
			if decision.Status != "" {
				w.Header().Set(HeaderStatus, string(decision.Status))
			}

			if decision.Allowed {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if config.BlockedURL != "" && wantsHTML(r) {
				http.Redirect(w, r, config.BlockedURL, http.StatusSeeOther)
				return
			}
			_ = httputil.WriteJSON(w, http.StatusPaymentRequired, decision)
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
