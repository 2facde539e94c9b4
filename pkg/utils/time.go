package utils

import "time"

// TimestampLayout is a fixed-width RFC3339 layout; fixed width keeps lexical
// order equal to chronological order when timestamps are used in sort keys.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders a stored timestamp in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
