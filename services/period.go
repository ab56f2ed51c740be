package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

var ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")

// Period is an inclusive range of calendar dates. Start and End are
// midnight UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// BillingPeriod returns the calendar month named by month ("YYYY-MM"), or
// the month before now's month when month is empty.
func BillingPeriod(month string, now time.Time) (Period, error) {
	var start time.Time

	if month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil || len(month) != len("2006-01") {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
		}
		start = t
	} else {
		start = time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	}

	// Day 28 exists in every month and 4 days later is always next month.
	nextMonth := time.Date(start.Year(), start.Month(), 28, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 4)
	firstOfNext := time.Date(nextMonth.Year(), nextMonth.Month(), 1, 0, 0, 0, 0, time.UTC)

	return Period{Start: start, End: firstOfNext.AddDate(0, 0, -1)}, nil
}

// NewPeriod builds a period from two dates, dropping time of day.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: dateOnly(start), End: dateOnly(end)}
}

func (p Period) StartDate() string { return p.Start.Format(models.DateLayout) }
func (p Period) EndDate() string   { return p.End.Format(models.DateLayout) }

// Contains reports whether the calendar date of t lies in the period.
func (p Period) Contains(t time.Time) bool {
	d := dateOnly(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Months counts the calendar months the period touches.
func (p Period) Months() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return (p.End.Year()-p.Start.Year())*12 + int(p.End.Month()-p.Start.Month()) + 1
}

// Label is "Jan-2026" for a single month and "Nov-2025 - Jan-2026" otherwise.
func (p Period) Label() string {
	if p.Months() <= 1 {
		return MonthLabel(p.Start)
	}
	return MonthLabel(p.Start) + " - " + MonthLabel(p.End)
}

func MonthLabel(t time.Time) string {
	return t.Format("Jan-2006")
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
