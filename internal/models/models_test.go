package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractTransitions(t *testing.T) {
	assert.True(t, ContractStatusPending.CanTransitionTo(ContractStatusApproved))
	assert.True(t, ContractStatusPending.CanTransitionTo(ContractStatusRejected))
	assert.True(t, ContractStatusRejected.CanTransitionTo(ContractStatusApproved))
	assert.True(t, ContractStatusApproved.CanTransitionTo(ContractStatusExpired))
	assert.False(t, ContractStatusExpired.CanTransitionTo(ContractStatusApproved))
	assert.False(t, ContractStatusPending.CanTransitionTo(ContractStatusExpired))
	assert.False(t, ContractStatus("bogus").Valid())
}

func TestRoyaltyTransitionsNeverRegress(t *testing.T) {
	assert.True(t, RoyaltyStatusDraft.CanTransitionTo(RoyaltyStatusDraft))
	assert.True(t, RoyaltyStatusDraft.CanTransitionTo(RoyaltyStatusFinalized))
	assert.True(t, RoyaltyStatusFinalized.CanTransitionTo(RoyaltyStatusPaid))
	assert.False(t, RoyaltyStatusDraft.CanTransitionTo(RoyaltyStatusPaid))
	assert.False(t, RoyaltyStatusFinalized.CanTransitionTo(RoyaltyStatusDraft))
	assert.False(t, RoyaltyStatusPaid.CanTransitionTo(RoyaltyStatusFinalized))
	assert.True(t, RoyaltyStatusPaid.IsClosed())
	assert.False(t, RoyaltyStatusDraft.IsClosed())

	assert.True(t, PaymentStatusUnpaid.CanTransitionTo(PaymentStatusPaid))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusUnpaid))
	assert.True(t, ImportStatusProcessing.CanTransitionTo(ImportStatusFailed))
	assert.False(t, ImportStatusCompleted.CanTransitionTo(ImportStatusFailed))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, "202402", p.Compact())

	for _, bad := range []string{"2024-13", "2024/02", "24-02", ""} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}

func TestRoyaltyAmount(t *testing.T) {
	cases := []struct {
		qty   int
		price string
		pct   string
		want  string
	}{
		{5, "10000", "10", "5000.00"},
		{3, "19999.99", "10", "6000.00"},
		{1, "0.05", "10", "0.01"},
		{7, "12.34", "0", "0.00"},
		{2, "99.99", "100", "199.98"},
	}
	for _, tc := range cases {
		got := RoyaltyAmount(tc.qty, decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.pct))
		assert.Equal(t, tc.want, got.StringFixed(2), "%d x %s x %s%%", tc.qty, tc.price, tc.pct)
	}
}

func TestContractCoverage(t *testing.T) {
	c := Contract{
		StartDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, c.Covers("2026-01"))
	assert.True(t, c.Covers("2026-02"))
	assert.True(t, c.Covers("2026-03"))
	assert.False(t, c.Covers("2025-12"))
	assert.False(t, c.Covers("2026-04"))

	assert.True(t, c.Overlaps(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, c.Overlaps(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestJSONBRoundTrip(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"old":"1.00"}`)))
	assert.Equal(t, "1.00", j["old"])

	v, err := JSONB{"k": "v"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, v)
}
