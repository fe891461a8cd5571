package utils

import (
	"testing"
	"time"
)

func TestDateBucketIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	ts := time.Date(2024, 3, 5, 8, 0, 0, 0, loc) // 2024-03-04 22:00 UTC
	if got := DateBucket(ts); got != "2024-03-04" {
		t.Errorf("DateBucket = %s, want 2024-03-04", got)
	}
}

func TestParseDateBucket(t *testing.T) {
	d, err := ParseDateBucket("2024-03-04")
	if err != nil {
		t.Fatal(err)
	}
	if DateBucket(d) != "2024-03-04" {
		t.Errorf("round trip = %s", DateBucket(d))
	}
	if _, err := ParseDateBucket("04/03/2024"); err == nil {
		t.Error("expected error for malformed bucket")
	}
}

func TestParseProviderDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-04T10:20:30Z", time.Date(2024, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"20240304T102030", time.Date(2024, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"2024-03-04", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"Mon, 04 Mar 2024 10:20:30 +0000", time.Date(2024, 3, 4, 10, 20, 30, 0, time.UTC)},
		{"not a date", time.Time{}},
	}
	for _, tt := range tests {
		if got := ParseProviderDate(tt.input); !got.Equal(tt.want) {
			t.Errorf("ParseProviderDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
