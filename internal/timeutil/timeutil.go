// Package timeutil converts between Unix timestamps and the ISO-8601
// date strings used by the image catalog and the HTTP API.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var layouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseISO parses an ISO-8601 date string into a UTC time.
// Accepts a trailing Z, fractional seconds, and a space separator.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	// Last resort: full RFC3339 with offset
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date string %q", s)
}

// FormatISO formats a time as an ISO-8601 UTC string without
// fractional seconds.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// FormatFilename formats a time for use inside generated filenames.
func FormatFilename(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}

// RoundSec rounds a fractional Unix timestamp to the nearest second.
func RoundSec(ts float64) int64 {
	return int64(math.Round(ts))
}
