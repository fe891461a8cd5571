package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateBucketLayout is the layout of a report date bucket.
const DateBucketLayout = "2006-01-02"

// DateBucket returns the UTC calendar day of t as "2006-01-02".
func DateBucket(t time.Time) string {
	return t.UTC().Format(DateBucketLayout)
}

// ParseDateBucket parses a "2006-01-02" bucket as a UTC date.
func ParseDateBucket(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateBucketLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date bucket %q: %w", s, err)
	}
	return t, nil
}

// providerDateLayouts are the timestamp shapes returned by upstream APIs.
var providerDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"20060102T150405",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseProviderDate parses a timestamp in any layout seen from providers.
// It returns the zero time when nothing matches.
func ParseProviderDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range providerDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// FormatDateTimeUTC formats a time.Time to "2006-01-02 15:04:05 UTC".
func FormatDateTimeUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
