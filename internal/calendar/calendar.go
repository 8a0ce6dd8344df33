// Package calendar implements business-day arithmetic with weekend and
// holiday rules for the markets the harness simulates.
package calendar

import (
	"fmt"
	"time"

	"github.com/aristath/tradelab/internal/errs"
)

type ymd struct {
	y int
	m time.Month
	d int
}

type monthDay struct {
	m time.Month
	d int
}

func dateOf(t time.Time) ymd {
	y, m, d := t.Date()
	return ymd{y, m, d}
}

func (a ymd) before(b ymd) bool {
	if a.y != b.y {
		return a.y < b.y
	}
	if a.m != b.m {
		return a.m < b.m
	}
	return a.d < b.d
}

// Calendar answers business-day questions for one market. Membership tests
// are O(1); instances are immutable after construction and safe for
// concurrent use.
type Calendar struct {
	name      string
	explicit  map[ymd]struct{}
	recurring map[monthDay]struct{}
}

// Option configures a Calendar at construction.
type Option func(*Calendar)

// WithHolidays adds explicit holiday dates (compared by calendar day).
func WithHolidays(dates ...time.Time) Option {
	return func(c *Calendar) {
		for _, d := range dates {
			c.explicit[dateOf(d)] = struct{}{}
		}
	}
}

// WithRecurringHoliday adds a holiday that repeats every year on the given
// month and day.
func WithRecurringHoliday(m time.Month, day int) Option {
	return func(c *Calendar) {
		c.recurring[monthDay{m, day}] = struct{}{}
	}
}

// New creates a calendar with no holidays beyond the supplied options.
func New(name string, opts ...Option) *Calendar {
	c := &Calendar{
		name:      name,
		explicit:  make(map[ymd]struct{}),
		recurring: make(map[monthDay]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NYSE returns a calendar with the New York recurring holidays
// (Jan 1, Jul 4, Dec 25). Explicit-date holidays are caller-supplied.
func NYSE(opts ...Option) *Calendar {
	base := []Option{
		WithRecurringHoliday(time.January, 1),
		WithRecurringHoliday(time.July, 4),
		WithRecurringHoliday(time.December, 25),
	}
	return New("NYSE", append(base, opts...)...)
}

// LSE returns a calendar with the London recurring holidays
// (Jan 1, Dec 25, Dec 26).
func LSE(opts ...Option) *Calendar {
	base := []Option{
		WithRecurringHoliday(time.January, 1),
		WithRecurringHoliday(time.December, 25),
		WithRecurringHoliday(time.December, 26),
	}
	return New("LSE", append(base, opts...)...)
}

// TSE returns a calendar with the Tokyo recurring holidays
// (Jan 1-3, Dec 31).
func TSE(opts ...Option) *Calendar {
	base := []Option{
		WithRecurringHoliday(time.January, 1),
		WithRecurringHoliday(time.January, 2),
		WithRecurringHoliday(time.January, 3),
		WithRecurringHoliday(time.December, 31),
	}
	return New("TSE", append(base, opts...)...)
}

// Preset returns the named preset calendar, or a holiday-free calendar when
// the name is not one of NYSE, LSE, TSE.
func Preset(name string, opts ...Option) *Calendar {
	switch name {
	case "NYSE":
		return NYSE(opts...)
	case "LSE":
		return LSE(opts...)
	case "TSE":
		return TSE(opts...)
	default:
		return New(name, opts...)
	}
}

// Name returns the market name.
func (c *Calendar) Name() string { return c.name }

// IsBusinessDay reports whether d is neither a weekend day nor a holiday.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, ok := c.explicit[dateOf(d)]; ok {
		return false
	}
	_, ok := c.recurring[monthDay{d.Month(), d.Day()}]
	return !ok
}

// AddBusinessDays advances d by n business days, skipping weekends and
// holidays. n must be >= 0; n == 0 returns d unchanged.
func (c *Calendar) AddBusinessDays(d time.Time, n int) (time.Time, error) {
	if n < 0 {
		return time.Time{}, fmt.Errorf("add business days: n must be >= 0, got %d: %w", n, errs.ErrInvalidParameter)
	}
	cur := d
	for added := 0; added < n; {
		cur = cur.AddDate(0, 0, 1)
		if c.IsBusinessDay(cur) {
			added++
		}
	}
	return cur, nil
}

// BusinessDaysBetween counts the business days in (a, b]. It fails when b is
// an earlier calendar day than a.
func (c *Calendar) BusinessDaysBetween(a, b time.Time) (int, error) {
	from, to := dateOf(a), dateOf(b)
	if to.before(from) {
		return 0, fmt.Errorf("business days between %v and %v: %w", from, to, errs.ErrInvalidRange)
	}
	count := 0
	cur := a
	for {
		cur = cur.AddDate(0, 0, 1)
		if to.before(dateOf(cur)) {
			break
		}
		if c.IsBusinessDay(cur) {
			count++
		}
	}
	return count, nil
}
