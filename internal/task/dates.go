package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the calendar-date form used for every date tag value.
const ISODate = "2006-01-02"

var relativePattern = regexp.MustCompile(`^in (\d+) (days?|weeks?)$`)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// monthDayLayouts are tried for dates without an explicit year. A date that
// would land in the past is bumped to next year.
var monthDayLayouts = []string{"January 2", "Jan 2", "1/2", "1-2"}

// fullLayouts are tried for dates with an explicit year.
var fullLayouts = []string{ISODate, "January 2, 2006", "Jan 2, 2006"}

// ParseDate resolves a date expression to ISO 8601 (YYYY-MM-DD) relative to
// the current day. Accepts ISO dates, natural language ("today", "tomorrow",
// "Friday", "next monday", "in 3 days", "in 2 weeks"), prose prefixes
// ("before", "by", "due", "on"), and urgency words ("asap", "now").
func ParseDate(input string) (string, error) {
	return ParseDateAt(input, time.Now())
}

// ParseDateAt is ParseDate with an explicit reference time.
func ParseDateAt(input string, now time.Time) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	lower := strings.ToLower(s)

	switch lower {
	case "asap", "immediately", "urgent", "now", "today":
		return today.Format(ISODate), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format(ISODate), nil
	}

	for _, prefix := range []string{"before ", "by ", "due ", "on "} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			lower = strings.ToLower(s)
			break
		}
	}

	for _, layout := range fullLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format(ISODate), nil
		}
	}

	for _, layout := range monthDayLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			candidate := time.Date(today.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
			if candidate.Before(today) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate.Format(ISODate), nil
		}
	}

	isNext := strings.HasPrefix(lower, "next ")
	dayName := strings.TrimSpace(strings.TrimPrefix(lower, "next "))
	if wd, ok := weekdayNames[dayName]; ok {
		ahead := int(wd) - int(today.Weekday())
		if ahead <= 0 || isNext {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead).Format(ISODate), nil
	}

	if m := relativePattern.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.Atoi(m[1])
		days := amount
		if strings.HasPrefix(m[2], "week") {
			days = amount * 7
		}
		return today.AddDate(0, 0, days).Format(ISODate), nil
	}

	return "", fmt.Errorf("unrecognized date %q", input)
}

var (
	daysPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:d|days?)`)
	hoursPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:h|hours?)`)
	minutesPattern = regexp.MustCompile(`(\d+)\s*(?:m|mins?|minutes?)`)
)

// DurationMinutes parses a compact or prose duration ("2h30m", "2.5h",
// "1d4h", "45 minutes") into total minutes.
func DurationMinutes(input string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	total := 0
	if m := daysPattern.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		total += int(f * 24 * 60)
	}
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		total += int(f * 60)
	}
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n
	}

	if total <= 0 {
		return 0, fmt.Errorf("unrecognized duration %q", input)
	}
	return total, nil
}

// FormatMinutes renders minutes as a compact duration string ("2h30m", "3d").
func FormatMinutes(total int) string {
	if total <= 0 {
		return ""
	}
	days := total / (24 * 60)
	rem := total % (24 * 60)
	hours := rem / 60
	mins := rem % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if mins > 0 {
		fmt.Fprintf(&b, "%dm", mins)
	}
	return b.String()
}

// NormalizeDuration parses a duration and re-renders it in canonical compact
// form: "2 hours 30 minutes" → "2h30m".
func NormalizeDuration(input string) (string, error) {
	total, err := DurationMinutes(input)
	if err != nil {
		return "", err
	}
	return FormatMinutes(total), nil
}
