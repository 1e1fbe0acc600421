// Package risk implements the daily P&L gate. Evaluate is a pure function of
// its four inputs so the decision can always be re-derived (and property
// tested) from the persisted values alone.
package risk

// Decision is the action directive produced by the gate.
type Decision int

const (
	// Continue means the bot may keep trading this day.
	Continue Decision = iota
	// Halt means a daily threshold fired: flatten the position and stop
	// trading until the next day-boundary reset.
	Halt
)

func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "continue"
}

// DailyReturn computes the day-relative fractional return. A zero or
// negative day-start baseline yields 0 because no meaningful return exists.
func DailyReturn(current, dayStart float64) float64 {
	if dayStart <= 0 {
		return 0
	}
	return (current - dayStart) / dayStart
}

// Evaluate decides whether daily trading should halt. lossLimit is a
// negative fraction (e.g. -0.05), gainTarget a positive fraction (e.g.
// 0.10). When dayStart is zero or absent the gate cannot evaluate and
// returns Continue.
func Evaluate(current, dayStart, lossLimit, gainTarget float64) Decision {
	if dayStart == 0 {
		return Continue
	}
	r := (current - dayStart) / dayStart
	if r <= lossLimit || r >= gainTarget {
		return Halt
	}
	return Continue
}
