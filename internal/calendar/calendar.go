// Package calendar models the Saturday availability calendar: the per-day state cycle and
// the generation of upcoming Saturdays shown to users.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWindowMonths is how far ahead the calendar reaches.
const DefaultWindowMonths = 3

// State is a user's status for a single day. The empty State means no record exists.
type State string

const (
	// StateUnset is the default; it is never stored.
	StateUnset State = ""
	// StateAvailable marks the user as free to pregame on the day.
	StateAvailable State = "available"
	// StatePlanned marks the day as already committed.
	StatePlanned State = "planned"
)

// ErrInvalidState is returned for values outside the stored states.
var ErrInvalidState = errors.New("calendar: invalid state")

// ParseState parses a stored state. "unset" and "" are not accepted because unset days have
// no record.
func ParseState(value string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(value))) {
	case StateAvailable:
		return StateAvailable, nil
	case StatePlanned:
		return StatePlanned, nil
	}
	return StateUnset, fmt.Errorf("%w: %q", ErrInvalidState, value)
}

// Stored reports whether the state is persisted as a record.
func (s State) Stored() bool {
	return s == StateAvailable || s == StatePlanned
}

// Next returns the state following s in the cycle unset → available → planned → unset.
// Unknown values restart the cycle at available.
func (s State) Next() State {
	switch s {
	case StateUnset:
		return StateAvailable
	case StateAvailable:
		return StatePlanned
	case StatePlanned:
		return StateUnset
	}
	return StateAvailable
}

// String returns "unset" for the empty state.
func (s State) String() string {
	if s == StateUnset {
		return "unset"
	}
	return string(s)
}

// Weekdays returns every day between start and end inclusive that falls on wd, in
// ascending order.
func Weekdays(start, end Date, wd time.Weekday) []Date {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil
	}
	offset := (int(wd) - int(start.Weekday()) + 7) % 7
	first := start.AddDays(offset)

	var days []Date
	for d := first; !d.After(end); d = d.AddDays(7) {
		days = append(days, d)
	}
	return days
}

// Saturdays returns every Saturday in [start, end] that is not before today.
func Saturdays(start, end, today Date) []Date {
	if start.Before(today) {
		start = today
	}
	return Weekdays(start, end, time.Saturday)
}

// UpcomingSaturdays returns the Saturdays from today (inclusive when today is a Saturday)
// through the end of a window of months, evaluated in now's location.
func UpcomingSaturdays(now time.Time, months int) []Date {
	if months <= 0 {
		months = DefaultWindowMonths
	}
	today := DateOf(now)
	return Saturdays(today, today.AddMonths(months), today)
}

// DefaultRange returns the listing bounds used when a caller supplies none.
func DefaultRange(now time.Time) (Date, Date) {
	today := DateOf(now)
	return today, today.AddMonths(DefaultWindowMonths)
}
