package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression (minute hour day-of-month
// month day-of-week, all UTC). Grounded on pkg/cleanup/service.go's
// ticker-loop shape, generalized from "run every interval" to "compute
// next fire time" for the five fixed schedules in spec §6, since no
// cron library appears anywhere in the retrieved pack.
type Schedule struct {
	minute, hour, dom, month, dow field
}

// field is one cron field: either "every N units starting at the field's
// minimum" (step,
// with step 1 meaning "*") or an exact set of allowed values.
type field struct {
	step   int // 0 means "exact set", not a step field
	values map[int]bool
}

// ParseSchedule parses a standard 5-field cron expression. Supports "*",
// exact integers, and "*/N" step syntax per field; comma lists and
// ranges are not needed by any of the five schedules this engine runs
// and are rejected.
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return Schedule{}, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return Schedule{}, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return Schedule{}, fmt.Errorf("day-of-month field: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return Schedule{}, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return Schedule{}, fmt.Errorf("day-of-week field: %w", err)
	}

	return Schedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

// MustParseSchedule parses expr and panics on error, for use with
// compile-time-constant schedules built from validated config.
func MustParseSchedule(expr string) Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func parseField(raw string, min, max int) (field, error) {
	if raw == "*" {
		return field{step: 1}, nil
	}
	if strings.HasPrefix(raw, "*/") {
		n, err := strconv.Atoi(strings.TrimPrefix(raw, "*/"))
		if err != nil || n <= 0 {
			return field{}, fmt.Errorf("invalid step %q", raw)
		}
		return field{step: n}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return field{}, fmt.Errorf("invalid value %q, want %d-%d", raw, min, max)
	}
	return field{values: map[int]bool{n: true}}, nil
}

func (f field) matches(v, min int) bool {
	if f.step > 0 {
		return (v-min)%f.step == 0
	}
	return f.values[v]
}

// maxSearchMinutes bounds the next-fire search so a schedule that never
// matches (e.g. Feb 30) stops after a year instead of looping forever; Next
// then returns the instant where the search stopped, without an error.
const maxSearchMinutes = 366 * 24 * 60

// Next returns the first instant strictly after from (truncated to
// minute resolution) that satisfies the schedule, in UTC. Day-of-month
// and day-of-week are ORed per standard cron semantics when both are
// restricted; since every schedule this engine runs leaves at least one
// of them as "*", that distinction is moot in practice here.
func (s Schedule) Next(from time.Time) time.Time {
	from = from.UTC()
	t := from.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < maxSearchMinutes; i++ {
		if s.matchesInstant(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}

func (s Schedule) matchesInstant(t time.Time) bool {
	if !s.minute.matches(t.Minute(), 0) {
		return false
	}
	if !s.hour.matches(t.Hour(), 0) {
		return false
	}
	if !s.month.matches(int(t.Month()), 1) {
		return false
	}

	domRestricted := s.dom.step == 0
	dowRestricted := s.dow.step == 0
	domOK := s.dom.matches(t.Day(), 1)
	dowOK := s.dow.matches(int(t.Weekday()), 0)

	switch {
	case domRestricted && dowRestricted:
		return domOK || dowOK
	case domRestricted:
		return domOK
	case dowRestricted:
		return dowOK
	default:
		return true
	}
}
