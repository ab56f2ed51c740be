package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingPeriod_ExplicitMonth(t *testing.T) {
	tests := []struct {
		month string
		start string
		end   string
	}{
		{"2024-02", "2024-02-01", "2024-02-29"},
		{"2025-02", "2025-02-01", "2025-02-28"},
		{"2000-02", "2000-02-01", "2000-02-29"},
		{"1900-02", "1900-02-01", "1900-02-28"},
		{"2026-04", "2026-04-01", "2026-04-30"},
		{"2026-01", "2026-01-01", "2026-01-31"},
		{"2025-12", "2025-12-01", "2025-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			p, err := BillingPeriod(tt.month, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.start, p.StartDate())
			assert.Equal(t, tt.end, p.EndDate())
		})
	}
}

func TestBillingPeriod_DefaultsToPreviousMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	p, err := BillingPeriod("", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", p.StartDate())
	assert.Equal(t, "2026-02-28", p.EndDate())

	again, err := BillingPeriod("", now)
	require.NoError(t, err)
	assert.Equal(t, p, again)

	p, err = BillingPeriod("", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", p.StartDate())
	assert.Equal(t, "2025-12-31", p.EndDate())
}

func TestBillingPeriod_RejectsMalformedMonth(t *testing.T) {
	for _, month := range []string{"2026-13", "2026-00", "2026-1", "26-01", "2026/01", "January", "2026-01-01", " 2026-01"} {
		t.Run(month, func(t *testing.T) {
			_, err := BillingPeriod(month, time.Now())
			assert.ErrorIs(t, err, ErrInvalidMonth)
		})
	}
}

func TestPeriod_MonthsLabelContains(t *testing.T) {
	p := NewPeriod(date("2025-11-01"), date("2026-01-31"))
	assert.Equal(t, 3, p.Months())
	assert.Equal(t, "Nov-2025 - Jan-2026", p.Label())
	assert.True(t, p.Contains(time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(date("2026-02-01")))

	jan, err := BillingPeriod("2026-01", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, jan.Months())
	assert.Equal(t, "Jan-2026", jan.Label())
}
