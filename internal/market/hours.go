// Package market answers "is the exchange open right now" and defines the
// trading-day boundary used for daily P&L bookkeeping. The boundary is
// exchange-local midnight: all day-scoped state resets when the calendar
// date in the exchange timezone changes.
package market

import (
	"fmt"
	"time"
)

// DefaultTimezone is the NYSE exchange timezone.
const DefaultTimezone = "America/New_York"

// Calendar reports exchange session state for one timezone. The clock is
// injectable so tests can pin time.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a Calendar for the given IANA timezone name. An empty
// name selects the NYSE timezone.
func NewCalendar(timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("market: load timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy of the Calendar that reads time from now instead
// of the wall clock. Used by tests.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

// IsOpen reports whether the regular NYSE session (09:30-16:00 local,
// weekdays, non-holiday) is in progress.
func (c *Calendar) IsOpen() bool {
	now := c.now().In(c.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	if nyseHolidays[now.Format(dateLayout)] {
		return false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, c.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, c.loc)
	return !now.Before(open) && !now.After(close)
}

// TradingDay returns the exchange-local calendar date key for day-rollover
// bookkeeping.
func (c *Calendar) TradingDay() string {
	return c.now().In(c.loc).Format(dateLayout)
}

const dateLayout = "2006-01-02"

// nyseHolidays lists observed full-day NYSE closures. Half days are treated
// as regular sessions; the risk gate, not the calendar, decides when to
// stop trading early.
var nyseHolidays = map[string]bool{
	// 2025
	"2025-01-01": true, "2025-01-09": true, "2025-01-20": true,
	"2025-02-17": true, "2025-04-18": true, "2025-05-26": true,
	"2025-06-19": true, "2025-07-04": true, "2025-09-01": true,
	"2025-11-27": true, "2025-12-25": true,
	// 2026
	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true,
	"2026-04-03": true, "2026-05-25": true, "2026-06-19": true,
	"2026-07-03": true, "2026-09-07": true, "2026-11-26": true,
	"2026-12-25": true,
	// 2027
	"2027-01-01": true, "2027-01-18": true, "2027-02-15": true,
	"2027-03-26": true, "2027-05-31": true, "2027-06-18": true,
	"2027-07-05": true, "2027-09-06": true, "2027-11-25": true,
	"2027-12-24": true,
}
