package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format shared by the NeoWs API and the cache keys.
const DateLayout = "2006-01-02"

// WindowDays is the number of calendar days fetched and served, today included.
const WindowDays = 7

// Window is the ascending run of WindowDays contiguous dates starting today.
type Window [WindowDays]string

// ComputeWindow returns the dates today through today+6 in DateLayout. The
// calendar date is taken in today's own location, so the result does not
// depend on the time of day or DST transitions.
func ComputeWindow(today time.Time) Window {
	y, m, d := today.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var w Window
	for i := range w {
		w[i] = base.AddDate(0, 0, i).Format(DateLayout)
	}
	return w
}

// Start is the first date of the window, used as start_date and as the cache lower bound.
func (w Window) Start() string { return w[0] }

// End is the last date of the window, used as end_date.
func (w Window) End() string { return w[len(w)-1] }

// Contains reports whether date is one of the window's entries.
func (w Window) Contains(date string) bool {
	for _, d := range w {
		if d == date {
			return true
		}
	}
	return false
}

// FormatDate renders t's calendar date in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a DateLayout string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// IsDate reports whether s is a valid calendar date in DateLayout.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
