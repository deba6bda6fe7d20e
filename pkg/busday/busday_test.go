package busday

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddBusinessDays(t *testing.T) {
	cases := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"zero returns input", date(2024, time.January, 15), 0, date(2024, time.January, 15)},
		{"forward within week", date(2024, time.January, 15), 3, date(2024, time.January, 18)},
		{"forward over weekend", date(2024, time.January, 18), 2, date(2024, time.January, 22)},
		{"forward from friday", date(2024, time.January, 12), 1, date(2024, time.January, 15)},
		{"forward from saturday", date(2024, time.January, 13), 1, date(2024, time.January, 15)},
		{"back five weekdays", date(2024, time.January, 15), -5, date(2024, time.January, 8)},
		{"back over weekend", date(2024, time.January, 22), -1, date(2024, time.January, 19)},
		{"two weeks forward", date(2024, time.January, 15), 10, date(2024, time.January, 29)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddBusinessDays(tc.from, tc.n)
			if !got.Equal(tc.want) {
				t.Fatalf("got=%s want=%s", got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestAddBusinessDays_NeverLandsOnWeekend(t *testing.T) {
	start := date(2024, time.March, 4) // Monday
	for n := 1; n <= 30; n++ {
		fwd := AddBusinessDays(start, n)
		if wd := fwd.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("n=%d landed on %s", n, wd)
		}
		back := AddBusinessDays(start, -n)
		if wd := back.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("n=%d landed on %s", -n, wd)
		}
	}
}

func TestAddBusinessDays_Symmetry(t *testing.T) {
	// Round trip returns to the origin for any weekday start.
	starts := []time.Time{
		date(2024, time.January, 8),  // Mon
		date(2024, time.January, 10), // Wed
		date(2024, time.January, 12), // Fri
	}
	for _, start := range starts {
		for n := 1; n <= 25; n++ {
			got := AddBusinessDays(AddBusinessDays(start, n), -n)
			if !got.Equal(start) {
				t.Fatalf("start=%s n=%d got=%s", start.Format("2006-01-02"), n, got.Format("2006-01-02"))
			}
		}
	}
}

func TestBetween(t *testing.T) {
	cases := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", date(2024, time.January, 15), date(2024, time.January, 15), 0},
		{"to before from", date(2024, time.January, 15), date(2024, time.January, 10), 0},
		{"mon to fri", date(2024, time.January, 15), date(2024, time.January, 19), 4},
		{"fri to mon", date(2024, time.January, 12), date(2024, time.January, 15), 1},
		{"two full weeks", date(2024, time.January, 15), date(2024, time.January, 29), 10},
		{"over single weekend", date(2024, time.January, 18), date(2024, time.January, 23), 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Between(tc.from, tc.to); got != tc.want {
				t.Fatalf("got=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestBetween_IgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2024, time.January, 15, 23, 59, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 19, 0, 1, 0, 0, time.UTC)
	if got := Between(from, to); got != 4 {
		t.Fatalf("got=%d", got)
	}
}
