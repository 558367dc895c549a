package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// moscow is UTC+3, fixed since October 2014.
var moscow = time.FixedZone("MSK", 3*60*60)

// middayOffset places date-only values at noon of their day.
const middayOffset = 12 * time.Hour

var (
	ruTextDateExpr    = regexp.MustCompile(`(\d{1,2})\s+([А-Яа-яЁё]+)\s+(\d{4})(?:\D{1,10}(\d{1,2}):(\d{2}))?`)
	ruNumericDateExpr = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})(?:\D{1,10}(\d{1,2}):(\d{2}))?`)
	enDayExpr         = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
)

// ruMonths is ordered so that "март" is tested before the shorter "ма" stem.
var ruMonths = []struct {
	stem  string
	month time.Month
}{
	{"январ", time.January},
	{"феврал", time.February},
	{"март", time.March},
	{"апрел", time.April},
	{"ма", time.May},
	{"июн", time.June},
	{"июл", time.July},
	{"август", time.August},
	{"сентябр", time.September},
	{"октябр", time.October},
	{"ноябр", time.November},
	{"декабр", time.December},
}

func ruMonth(word string) (time.Month, bool) {
	word = strings.ToLower(word)
	for _, m := range ruMonths {
		if strings.HasPrefix(word, m.stem) {
			return m.month, true
		}
	}
	return 0, false
}

// parseRussianDate reads "14 октября 2026", "14 октября 2026, 15:30" or
// "14.10.2026 15:30" in loc. Values without a clock time get the midday shift.
func parseRussianDate(text string, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)

	var (
		day, year int
		month     time.Month
		clock     []string
	)

	if m := ruTextDateExpr.FindStringSubmatch(text); m != nil {
		mon, ok := ruMonth(m[2])
		if !ok {
			return time.Time{}, fmt.Errorf("unknown month %q", m[2])
		}
		day, _ = strconv.Atoi(m[1])
		year, _ = strconv.Atoi(m[3])
		month = mon
		clock = m[4:6]
	} else if m := ruNumericDateExpr.FindStringSubmatch(text); m != nil {
		day, _ = strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
		month = time.Month(mon)
		clock = m[4:6]
	} else {
		return time.Time{}, fmt.Errorf("no date in %q", text)
	}

	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid date in %q", text)
	}

	base := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if base.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date in %q", text)
	}

	if clock[0] == "" {
		return base.Add(middayOffset), nil
	}

	hour, _ := strconv.Atoi(clock[0])
	minute, _ := strconv.Atoi(clock[1])
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time in %q", text)
	}
	return base.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

// parseEnglishDay finds "8 Nov 2025" inside text and returns midday UTC.
func parseEnglishDay(text string) (time.Time, error) {
	match := enDayExpr.FindString(text)
	if match == "" {
		return time.Time{}, fmt.Errorf("no date in %q", strings.TrimSpace(text))
	}

	day, err := time.Parse("2 Jan 2006", match)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", match, err)
	}
	return day.Add(middayOffset), nil
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseISOTime accepts the machine-readable forms found in HTML metadata.
// Date-only values get the midday shift in UTC.
func parseISOTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.Add(middayOffset)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time %q", value)
}
