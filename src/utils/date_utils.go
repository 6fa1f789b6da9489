package utils

import (
	"log"
	"time"
)

const ISODateFormat = "2006-01-02"

// ParseISODate parses an ISO 8601 calendar date.
// Logs an error and returns zero time if parsing fails.
func ParseISODate(dateStr string) time.Time {
	t, err := time.Parse(ISODateFormat, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' with format '%s': %v. Returning zero time.", dateStr, ISODateFormat, err)
		return time.Time{}
	}
	return t
}

// FormatISODate renders a time as an ISO 8601 calendar date. Zero times
// render as the empty string.
func FormatISODate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ISODateFormat)
}

// DateOnly truncates a timestamp to midnight UTC so that dates from
// different sources compare equal regardless of the reported wall clock.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WithinDays reports whether a and b are at most n calendar days apart.
// Zero times never match anything.
func WithinDays(a, b time.Time, n int) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	d := DateOnly(a).Sub(DateOnly(b))
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(n)*24*time.Hour
}
