package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSchedule accepts either "@every <duration>" or a standard 5-field
// cron expression (minute hour day-of-month month day-of-week).
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive: %s", d)
		}
		return Every(d), nil
	}
	return ParseCron(spec)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed 5-field cron expression.
// Examples:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 6 * * *"    - every day at 06:00
//   - "0 9 * * 1-5"  - weekdays at 09:00
type CronSchedule struct {
	raw     string
	minute  fieldSet
	hour    fieldSet
	dom     fieldSet
	month   fieldSet
	weekday fieldSet
}

// fieldSet is a bitmask of allowed values for one cron field.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

type fieldBounds struct {
	name     string
	min, max int
}

var cronFields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCron parses a cron expression. Each field accepts *, n, n-m, with an
// optional /step, and comma-separated lists of those.
func ParseCron(expr string) (*CronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	var sets [5]fieldSet
	for i, p := range parts {
		set, err := parseCronField(p, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:     expr,
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		weekday: sets[4],
	}, nil
}

// MustParseCron parses a cron expression or panics. Use for constants only.
func MustParseCron(expr string) *CronSchedule {
	c, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func parseCronField(field string, b fieldBounds) (fieldSet, error) {
	var set fieldSet
	for _, item := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(item, "/")

		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%s: invalid step %q", b.name, stepStr)
			}
			step = n
		}

		lo, hi := b.min, b.max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, z, _ := strings.Cut(rng, "-")
			var err error
			if lo, err = atoiInRange(a, b); err != nil {
				return 0, err
			}
			if hi, err = atoiInRange(z, b); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("%s: empty range %q", b.name, rng)
			}
		default:
			v, err := atoiInRange(rng, b)
			if err != nil {
				return 0, err
			}
			lo = v
			if !hasStep {
				hi = v
			}
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func atoiInRange(s string, b fieldBounds) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", b.name, s)
	}
	if v < b.min || v > b.max {
		return 0, fmt.Errorf("%s: %d out of range [%d-%d]", b.name, v, b.min, b.max)
	}
	return v, nil
}

// Next returns the first matching minute strictly after t, or the zero time
// if nothing matches within a year.
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(1, 0, 0)

	for next.Before(limit) {
		switch {
		case !c.month.has(int(next.Month())):
			next = time.Date(next.Year(), next.Month()+1, 1, 0, 0, 0, 0, next.Location())
		case !c.dom.has(next.Day()) || !c.weekday.has(int(next.Weekday())):
			next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, next.Location())
		case !c.hour.has(next.Hour()):
			next = next.Truncate(time.Hour).Add(time.Hour)
		case !c.minute.has(next.Minute()):
			next = next.Add(time.Minute)
		default:
			return next
		}
	}
	return time.Time{}
}

func (c *CronSchedule) String() string {
	return c.raw
}
