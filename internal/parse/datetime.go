package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// YearPolicyNearestFuture names the rule used for dates written without a
// year: resolve to the current year, unless that day ended more than
// pastGraceDays before "now", in which case resolve to the next year.
// Seminar listings mix upcoming talks with a few weeks of history, so the
// recent past stays in the current year while anything older is read as
// next year's occurrence.
const YearPolicyNearestFuture = "nearest-future"

const pastGraceDays = 60

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2006-01-02",
}

var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
}

// parseDate turns the listing's date text into midnight of that civil day
// in loc.
func parseDate(text string, now time.Time, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return resolveYear(t, now, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

// resolveYear applies YearPolicyNearestFuture to a parsed month/day.
func resolveYear(monthDay time.Time, now time.Time, loc *time.Location) time.Time {
	d := time.Date(now.Year(), monthDay.Month(), monthDay.Day(), 0, 0, 0, 0, loc)
	cutoff := now.AddDate(0, 0, -pastGraceDays)
	if d.AddDate(0, 0, 1).Before(cutoff) {
		d = d.AddDate(1, 0, 0)
	}
	return d
}

// clock is a parsed time of day. meridiem is "", "am" or "pm"; hour is
// as written (1-12 with a meridiem, 0-23 without).
type clock struct {
	hour, min int
	meridiem  string
}

var meridiemGlued = regexp.MustCompile(`(\d)(am|pm)\b`)

// parseClock accepts the forms the page actually uses: "10:30 am",
// "10:30am", "12:00 nn", "12 noon", "2 pm", and plain 24-hour "14:00".
func parseClock(s string) (clock, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(s))
	// The page writes noon as "nn" or "noon"; both mean 12 pm.
	s = strings.ReplaceAll(s, "noon", "pm")
	s = strings.ReplaceAll(s, "nn", "pm")
	s = meridiemGlued.ReplaceAllString(s, "$1 $2")

	var c clock
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return c, fmt.Errorf("empty time %q", orig)
	}
	if last := fields[len(fields)-1]; last == "am" || last == "pm" {
		c.meridiem = last
		fields = fields[:len(fields)-1]
	}
	if len(fields) != 1 {
		return c, fmt.Errorf("unrecognized time %q", orig)
	}

	hh, mm, ok := strings.Cut(fields[0], ":")
	var err error
	if c.hour, err = strconv.Atoi(hh); err != nil {
		return c, fmt.Errorf("unrecognized time %q", orig)
	}
	if ok {
		if c.min, err = strconv.Atoi(mm); err != nil {
			return c, fmt.Errorf("unrecognized time %q", orig)
		}
	}

	maxHour := 23
	if c.meridiem != "" {
		maxHour = 12
		if c.hour < 1 {
			return c, fmt.Errorf("hour out of range in %q", orig)
		}
	}
	if c.hour > maxHour || c.min < 0 || c.min > 59 {
		return c, fmt.Errorf("time out of range in %q", orig)
	}
	return c, nil
}

// hour24 converts the written hour to 0-23.
func (c clock) hour24() int {
	switch c.meridiem {
	case "pm":
		if c.hour < 12 {
			return c.hour + 12
		}
		return 12
	case "am":
		if c.hour == 12 {
			return 0
		}
		return c.hour
	default:
		return c.hour
	}
}

var rangeSeparators = []string{"–", "—", " to "}

// parseTimeRange resolves the listing's time text against the civil day.
// Missing text falls back to the configured default slot; a missing end
// time falls back to start + defaultDur. An end that parses at or before
// the start is corrected the way the page intends: am-am ranges crossing
// noon gain 12 hours, pm-am ranges roll to the next day.
func parseTimeRange(text string, day time.Time, defaultStart string, defaultDur time.Duration) (time.Time, time.Time, error) {
	loc := day.Location()
	text = strings.TrimSpace(text)

	if text == "" {
		c, err := parseClock(defaultStart)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), c.hour24(), c.min, 0, 0, loc)
		return start, start.Add(defaultDur), nil
	}

	// Normalize the range separator to "-" before splitting.
	for _, sep := range rangeSeparators {
		text = strings.ReplaceAll(text, sep, "-")
	}
	parts := strings.Split(text, "-")
	if len(parts) > 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("unexpected time range %q", text)
	}

	startClock, err := parseClock(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if len(parts) == 1 {
		start := time.Date(day.Year(), day.Month(), day.Day(), startClock.hour24(), startClock.min, 0, 0, loc)
		return start, start.Add(defaultDur), nil
	}

	endClock, err := parseClock(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	// "10:30 - 11:30 am": a bare start inherits the end's meridiem.
	if startClock.meridiem == "" && endClock.meridiem != "" && startClock.hour >= 1 && startClock.hour <= 12 {
		startClock.meridiem = endClock.meridiem
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), startClock.hour24(), startClock.min, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), endClock.hour24(), endClock.min, 0, 0, loc)

	if !end.After(start) {
		switch {
		case startClock.meridiem == "am" && endClock.meridiem == "am":
			end = end.Add(12 * time.Hour)
		case startClock.meridiem == "pm" && endClock.meridiem == "am":
			end = end.AddDate(0, 0, 1)
		default:
			end = end.Add(12 * time.Hour)
		}
	}
	return start, end, nil
}
