package slurm

import (
	"strconv"
	"strings"
)

// ParseTimeLimitHours converts a workload-manager time limit into fractional
// hours. Accepted shapes are D-HH:MM:SS, HH:MM:SS, and MM:SS; seconds are
// ignored. Anything unparsable, UNLIMITED, or non-positive yields 1.0 so one
// broken row cannot zero out queue-pressure estimates.
func ParseTimeLimitHours(limit string) float64 {
	const fallbackHours = 1.0

	s := strings.TrimSpace(limit)
	if s == "" {
		return fallbackHours
	}

	days := 0
	if strings.Contains(s, "-") {
		dayParts := strings.Split(s, "-")
		if len(dayParts) != 2 {
			return fallbackHours
		}
		d, err := strconv.Atoi(dayParts[0])
		if err != nil {
			return fallbackHours
		}
		days = d
		s = dayParts[1]
	}

	parts := strings.Split(s, ":")
	var hours, minutes int
	switch len(parts) {
	case 3:
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return fallbackHours
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil {
			return fallbackHours
		}
		hours, minutes = h, m
	case 2:
		m, err := strconv.Atoi(parts[0])
		if err != nil {
			return fallbackHours
		}
		minutes = m
	default:
		return fallbackHours
	}

	total := float64(days)*24 + float64(hours) + float64(minutes)/60.0
	if total <= 0 {
		return fallbackHours
	}
	return total
}
