package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestPlans(t *testing.T) {
	assert.Equal(t, Plan("monthly"), PlanMonthly)
	assert.Equal(t, Plan("yearly"), PlanYearly)
	assert.Equal(t, Plan("enterprise"), PlanEnterprise)

	assert.True(t, PlanMonthly.Valid())
	assert.True(t, PlanEnterprise.Valid())
	assert.False(t, Plan("weekly").Valid())

	assert.True(t, PlanMonthly.Renewable())
	assert.True(t, PlanYearly.Renewable())
	assert.False(t, PlanEnterprise.Renewable())
}

func TestSubscriptionStatuses(t *testing.T) {
	assert.Equal(t, SubscriptionStatus("active"), SubscriptionStatusActive)
	assert.Equal(t, SubscriptionStatus("expired"), SubscriptionStatusExpired)
	assert.Equal(t, SubscriptionStatus("cancelled"), SubscriptionStatusCancelled)
	assert.False(t, SubscriptionStatus("past_due").Valid())
}

func TestAddPeriod(t *testing.T) {
	tests := []struct {
		name     string
		plan     Plan
		from     time.Time
		expected time.Time
	}{
		{"monthly", PlanMonthly, date(2025, 1, 10), date(2025, 2, 10)},
		{"monthly across year", PlanMonthly, date(2024, 12, 15), date(2025, 1, 15)},
		{"monthly clamps to end of february", PlanMonthly, date(2025, 1, 31), date(2025, 2, 28)},
		{"monthly clamps in leap year", PlanMonthly, date(2024, 1, 31), date(2024, 2, 29)},
		{"monthly clamps to 30 day month", PlanMonthly, date(2025, 3, 31), date(2025, 4, 30)},
		{"yearly", PlanYearly, date(2025, 6, 1), date(2026, 6, 1)},
		{"yearly from leap day", PlanYearly, date(2024, 2, 29), date(2025, 2, 28)},
		{"enterprise does not move", PlanEnterprise, date(2025, 6, 1), date(2025, 6, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.plan.AddPeriod(tt.from))
		})
	}

	t.Run("keeps time of day", func(t *testing.T) {
		from := time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC), PlanMonthly.AddPeriod(from))
	})
}

func validRecord() *Record {
	return &Record{
		TenantID:     1,
		Plan:         PlanMonthly,
		Status:       SubscriptionStatusActive,
		StartDate:    date(2025, 1, 1),
		EndDate:      date(2025, 2, 1),
		AutoRenew:    true,
		TenantActive: true,
	}
}

func TestRecordValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validRecord().Validate())
	})

	tests := []struct {
		name   string
		mutate func(r *Record)
		field  string
	}{
		{"unknown plan", func(r *Record) { r.Plan = "weekly" }, "plan"},
		{"unknown status", func(r *Record) { r.Status = "paused" }, "status"},
		{"end before start", func(r *Record) { r.EndDate = r.StartDate.Add(-time.Hour) }, "end_date"},
		{"end equals start", func(r *Record) { r.EndDate = r.StartDate }, "end_date"},
		{"auto renew on enterprise", func(r *Record) { r.Plan = PlanEnterprise }, "auto_renew"},
		{"active flag out of step", func(r *Record) { r.TenantActive = false }, "tenant_active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)

			err := rec.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRecordSetStatus(t *testing.T) {
	rec := validRecord()

	rec.setStatus(SubscriptionStatusExpired)
	assert.False(t, rec.TenantActive)

	rec.setStatus(SubscriptionStatusActive)
	assert.True(t, rec.TenantActive)

	rec.setStatus(SubscriptionStatusCancelled)
	assert.False(t, rec.TenantActive)
}

func TestRecordClone(t *testing.T) {
	paid := date(2025, 1, 5)
	rec := validRecord()
	rec.LastPaymentDate = &paid

	c := rec.Clone()
	require.Equal(t, rec, c)

	*c.LastPaymentDate = date(2030, 1, 1)
	assert.Equal(t, date(2025, 1, 5), *rec.LastPaymentDate)

	var nilRec *Record
	assert.Nil(t, nilRec.Clone())
}

func TestErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := &NotFoundError{TenantID: 7}
		assert.True(t, IsNotFound(err))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "7")
		assert.False(t, IsValidation(err))
	})

	t.Run("validation", func(t *testing.T) {
		err := NewValidationError("amount", "must be at least %d", 0)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "amount: must be at least 0", err.Error())
		assert.Equal(t, "plain", (&ValidationError{Message: "plain"}).Error())
	})

	t.Run("classify wraps unknown errors", func(t *testing.T) {
		err := classify("renew subscription", assert.AnError)
		assert.True(t, IsPersistence(err))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "renew subscription")
	})

	t.Run("classify keeps domain errors", func(t *testing.T) {
		nf := &NotFoundError{TenantID: 1}
		assert.Same(t, nf, classify("op", nf))

		ve := NewValidationError("plan", "bad")
		assert.Same(t, ve, classify("op", ve))

		assert.NoError(t, classify("op", nil))
	})
}
