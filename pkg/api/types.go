package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/menuboard/menuboard/pkg/billing"
	"github.com/menuboard/menuboard/pkg/httputil"
)

// Command actions accepted by the command endpoint
const (
	ActionProvision    = "provision"
	ActionExtend       = "extend"
	ActionMarkPaid     = "markPaid"
	ActionUpdate       = "update"
	ActionSetAutoRenew = "setAutoRenew"
	ActionCancel       = "cancel"
)

// Command results reported to the metrics recorder
const (
	resultOK       = "ok"
	resultInvalid  = "invalid"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Date is a calendar date or timestamp in a JSON body. It accepts
// "2006-01-02" (midnight UTC) and RFC 3339.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t.UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	d.Time = t.UTC()
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.Format(time.RFC3339))
}

func (d *Date) value() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// CommandRequest is the body of POST /admin/subscriptions/commands. Only the
// fields relevant to Action are read.
type CommandRequest struct {
	Action   string `json:"action"`
	TenantID int64  `json:"tenant_id"`

	// extend
	NewEndDate *Date `json:"new_end_date,omitempty"`

	// extend, update, provision
	Amount *decimal.Decimal `json:"amount,omitempty"`

	// update, provision
	Plan      billing.Plan `json:"plan,omitempty"`
	StartDate *Date        `json:"start_date,omitempty"`
	EndDate   *Date        `json:"end_date,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	AutoRenew *bool        `json:"auto_renew,omitempty"`

	// setAutoRenew
	Enabled *bool `json:"enabled,omitempty"`
}

// CommandResponse is the result of a command
type CommandResponse struct {
	Success bool               `json:"success"`
	Record  *billing.Record    `json:"record,omitempty"`
	Error   *httputil.APIError `json:"error,omitempty"`
}

// LedgerResponse lists a tenant's ledger entries, newest first
type LedgerResponse struct {
	TenantID int64                  `json:"tenant_id"`
	Entries  []*billing.LedgerEntry `json:"entries"`
}
