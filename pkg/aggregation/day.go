package aggregation

import (
	"fmt"
	"strings"
	"time"
)

// Day is a calendar date, independent of time of day and zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// Time returns midnight of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// dateOnlyLayouts carry no time, so they name a calendar date directly.
var dateOnlyLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// zonedLayouts carry an instant that is converted into the reporting location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	time.RFC1123Z,
	time.RFC1123,
}

// localLayouts carry a wall-clock time without a zone, read in the reporting location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateTime,
}

// ParseDay reads a ledger payment date into a calendar date in loc.
func ParseDay(value string, loc *time.Location) (Day, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Day{}, false
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return DayOf(t, loc), true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return DayOf(t, loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return DayOf(t, loc), true
		}
	}
	return Day{}, false
}
