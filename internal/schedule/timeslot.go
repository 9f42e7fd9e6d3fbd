// Package schedule applies day-of-week and time-of-day price rules.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	slotStartRegex = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)
	slotSeparators = []string{" to ", "–", "—", "-"}
)

// ParseSlotStart returns the start of a time slot in minutes since midnight.
// It accepts "9:00 AM", "9am - 10am", "14:30-15:30" and similar forms.
func ParseSlotStart(slot string) (int, error) {
	start := strings.ToLower(strings.TrimSpace(slot))
	for _, sep := range slotSeparators {
		if before, _, found := strings.Cut(start, sep); found {
			start = strings.TrimSpace(before)
			break
		}
	}
	if start == "" {
		return 0, fmt.Errorf("time slot is empty")
	}

	m := slotStartRegex.FindStringSubmatch(start)
	if m == nil {
		return 0, fmt.Errorf("unrecognized time slot %q", slot)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return 0, fmt.Errorf("invalid minutes in time slot %q", slot)
	}

	switch strings.ReplaceAll(m[3], ".", "") {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid hour in time slot %q", slot)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid hour in time slot %q", slot)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, fmt.Errorf("invalid hour in time slot %q", slot)
		}
	}
	return hour*60 + minute, nil
}

// ParseClock parses an "HH:MM" rule time into minutes since midnight.
func ParseClock(value string) (int, error) {
	hh, mm, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, fmt.Errorf("time %q must be formatted HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", value)
	}
	return hour*60 + minute, nil
}

// windowContains reports whether minute falls in [start, end). A window
// whose end is before its start wraps past midnight; equal bounds are empty.
func windowContains(start, end, minute int) bool {
	switch {
	case start < end:
		return minute >= start && minute < end
	case start > end:
		return minute >= start || minute < end
	}
	return false
}
