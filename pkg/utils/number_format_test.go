package utils

import "testing"

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		input    string
		indian   bool
		expected string
	}{
		{"0", false, "0"},
		{"100", false, "100"},
		{"1000", false, "1,000"},
		{"1234567", false, "1,234,567"},
		{"2850000000000", false, "2,850,000,000,000"},
		{"123456", true, "1,23,456"},
		{"1234567", true, "12,34,567"},
		{"10000000", true, "1,00,00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := GroupDigits(tt.input, ",", tt.indian)
			if result != tt.expected {
				t.Errorf("GroupDigits(%s, indian=%v) = %s, want %s", tt.input, tt.indian, result, tt.expected)
			}
		})
	}
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{500, "500"},
		{1500, "1.5K"},
		{2500000, "2.5M"},
		{3400000000, "3.4B"},
		{2850000000000, "2.85T"},
		{-1200000, "-1.2M"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatCompact(tt.input)
			if result != tt.expected {
				t.Errorf("FormatCompact(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(2.45); got != "+2.45%" {
		t.Errorf("FormatPct(2.45) = %s", got)
	}
	if got := FormatPct(-1.234); got != "-1.23%" {
		t.Errorf("FormatPct(-1.234) = %s", got)
	}
}

func TestTrimDecimals(t *testing.T) {
	tests := map[float64]string{
		1:       "1",
		1.5:     "1.5",
		1.25:    "1.25",
		1.255:   "1.25",
		100.001: "100",
		-0.001:  "0",
	}
	for in, want := range tests {
		if got := TrimDecimals(in); got != want {
			t.Errorf("TrimDecimals(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"1234.5", 1234.5, true},
		{"$1,234.50", 1234.5, true},
		{"USD 2,850,000,000,000", 2850000000000, true},
		{"-42", -42, true},
		{"1.2.3", 1.2, true},
		{"abc", 0, false},
		{"", 0, false},
		{"--", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNumber(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseFloatOrZero(t *testing.T) {
	tests := map[string]float64{
		"2850000000000": 2850000000000,
		"0.245":         0.245,
		"1.5%":          1.5,
		"None":          0,
		"-":             0,
		"":              0,
		"garbage":       0,
	}
	for in, want := range tests {
		if got := ParseFloatOrZero(in); got != want {
			t.Errorf("ParseFloatOrZero(%q) = %v, want %v", in, got, want)
		}
	}
}
