package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinned(t *testing.T, value string) *Calendar {
	t.Helper()
	cal, err := NewCalendar("")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, cal.loc)
	require.NoError(t, err)
	return cal.WithClock(func() time.Time { return ts })
}

func TestIsOpen(t *testing.T) {
	tests := []struct {
		name string
		at   string // exchange-local
		open bool
	}{
		{"mid-session weekday", "2026-08-26 11:00", true},
		{"right at open", "2026-08-26 09:30", true},
		{"right at close", "2026-08-26 16:00", true},
		{"before open", "2026-08-26 09:29", false},
		{"after close", "2026-08-26 16:01", false},
		{"saturday", "2026-08-29 11:00", false},
		{"sunday", "2026-08-30 11:00", false},
		{"christmas", "2026-12-25 11:00", false},
		{"independence day observed", "2026-07-03 11:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, pinned(t, tt.at).IsOpen())
		})
	}
}

func TestTradingDayUsesExchangeLocalDate(t *testing.T) {
	cal, err := NewCalendar("")
	require.NoError(t, err)

	// 01:00 UTC is still the previous calendar day in New York.
	utc := time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)
	got := cal.WithClock(func() time.Time { return utc }).TradingDay()
	assert.Equal(t, "2026-08-26", got)
}

func TestNewCalendarRejectsBadTimezone(t *testing.T) {
	_, err := NewCalendar("Not/AZone")
	assert.Error(t, err)
}
