// Package schedule evaluates the worker's availability windows. Evaluation
// is a pure function of the schedule and a timestamp so tests can drive it
// with fixed clocks.
package schedule

import (
	"strings"
	"time"
)

// Rule is one availability window: a set of days plus a [start,end) time-of-day
// range, both interpreted in the schedule's timezone.
type Rule struct {
	// Days are lowercase three-letter day names ("mon" .. "sun").
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"` // "HH:MM"
	EndTime   string   `json:"end_time"`   // "HH:MM"
}

// Schedule is the server-pushed availability schedule. The zero value is
// disabled, which means the worker is always eligible.
type Schedule struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone"`
	Rules    []Rule `json:"rules"`
}

// Location resolves the schedule's timezone, falling back to UTC when the
// name is absent or unknown.
func (s Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Eligible reports whether the worker may accept work at the given instant.
// A disabled or empty schedule is always eligible. Overlapping rules are a
// union: any matching window grants eligibility.
func (s Schedule) Eligible(now time.Time) bool {
	if !s.Enabled || len(s.Rules) == 0 {
		return true
	}

	local := now.In(s.Location())
	day := strings.ToLower(local.Weekday().String()[:3])
	minute := local.Hour()*60 + local.Minute()

	for _, rule := range s.Rules {
		if rule.matches(day, minute) {
			return true
		}
	}
	return false
}

// matches checks one rule against a day name and minute-of-day.
// Windows are half-open: start <= t < end.
func (r Rule) matches(day string, minute int) bool {
	start, ok := parseMinutes(r.StartTime)
	if !ok {
		return false
	}
	end, ok := parseMinutes(r.EndTime)
	if !ok {
		return false
	}

	if minute < start || minute >= end {
		return false
	}

	for _, d := range r.Days {
		if strings.ToLower(d) == day {
			return true
		}
	}
	return false
}

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(v string) (int, bool) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
