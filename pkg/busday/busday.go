package busday

import "time"

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AddBusinessDays offsets t by |n| weekday increments in the sign direction
// of n. The walk advances one calendar day at a time and only consumes a
// step on Mon-Fri, so weekends are skipped rather than counted. n = 0
// returns t unchanged. Calendar-date arithmetic only, no timezone handling.
func AddBusinessDays(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	step := 1
	remaining := n
	if n < 0 {
		step = -1
		remaining = -n
	}
	out := t
	for remaining > 0 {
		out = out.AddDate(0, 0, step)
		if isWeekday(out) {
			remaining--
		}
	}
	return out
}

// Between counts business days from `from` (exclusive) to `to` (inclusive).
// Returns 0 when to is on or before from.
func Between(from, to time.Time) int {
	from = truncateToDate(from)
	to = truncateToDate(to)
	if !to.After(from) {
		return 0
	}
	count := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if isWeekday(d) {
			count++
		}
	}
	return count
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
