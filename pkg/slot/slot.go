// Package slot converts calendar slots (a resource-local date plus an
// on-the-hour start time) into absolute instants.
package slot

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultDuration = 60 * time.Minute
)

var (
	dateRegex = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])$`)
	hourRegex = regexp.MustCompile(`^([01]\d|2[0-3]):00$`)
)

// Clock turns (date, time) pairs into [start, end) windows in a fixed location.
type Clock struct {
	Location *time.Location
	Duration time.Duration
}

func NewClock(loc *time.Location, duration time.Duration) Clock {
	if loc == nil {
		loc = time.UTC
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Clock{Location: loc, Duration: duration}
}

// Window returns the absolute [start, end) of the slot.
func (c Clock) Window(date, tod string) (time.Time, time.Time, error) {
	start, err := c.Start(date, tod)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(c.Duration), nil
}

func (c Clock) Start(date, tod string) (time.Time, error) {
	if !ValidDate(date) {
		return time.Time{}, fmt.Errorf("invalid slot date %q, expected YYYY-MM-DD", date)
	}
	if !ValidTime(tod) {
		return time.Time{}, fmt.Errorf("invalid slot time %q, expected HH:00", tod)
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+tod, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %s %s: %w", date, tod, err)
	}
	return start, nil
}

// Hours lists the on-the-hour slot times from open (inclusive) to close (exclusive).
func Hours(open, close int) []string {
	if open < 0 {
		open = 0
	}
	if close > 24 {
		close = 24
	}
	hours := make([]string, 0, max(close-open, 0))
	for h := open; h < close; h++ {
		hours = append(hours, fmt.Sprintf("%02d:00", h))
	}
	return hours
}

// Key identifies a slot for atomic claiming.
func Key(resourceID, date, tod string) string {
	return strings.Join([]string{resourceID, date, tod}, "|")
}

// ValidDate also rejects impossible days such as 2026-02-30.
func ValidDate(s string) bool {
	if !dateRegex.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func ValidTime(s string) bool {
	return hourRegex.MatchString(s)
}

// FormatDate renders 2026-01-16 as "Friday, January 16, 2026". Unparseable
// input is returned unchanged.
func FormatDate(date string) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2, 2006")
}

// FormatTime renders 14:00 as "2:00 PM".
func FormatTime(tod string) string {
	t, err := time.Parse(TimeLayout, tod)
	if err != nil {
		return tod
	}
	return t.Format("3:04 PM")
}
