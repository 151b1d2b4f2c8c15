package cli

import "testing"

func TestFormatTokens(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1.0K"},
		{1_999, "1.9K"},
		{12_345, "12.3K"},
		{1_234_567, "1.2M"},
		{1_234_567_890, "1.2B"},
	}
	for _, tc := range cases {
		if got := FormatTokens(tc.in); got != tc.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{9.876, "$9.88"},
		{42.4, "$42.4"},
		{123.4, "$123"},
		{1234.5, "$1,235"},
	}
	for _, tc := range cases {
		if got := FormatCost(tc.in); got != tc.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatActiveDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{-5, "0s"},
		{0, "0s"},
		{45_000, "45s"},
		{125_000, "2m 5s"},
		{3_725_000, "1h 2m 5s"},
		{90_000_000, "1d 1h 0m"},
	}
	for _, tc := range cases {
		if got := FormatActiveDuration(tc.ms); got != tc.want {
			t.Errorf("FormatActiveDuration(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1,000"},
		{1_234_567, "1,234,567"},
	}
	for _, tc := range cases {
		if got := FormatNumber(tc.in); got != tc.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate("2024-06-03"); got != "Jun 03, 2024" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDate("garbage"); got != "garbage" {
		t.Errorf("unparseable key should pass through, got %q", got)
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline(nil); got != "" {
		t.Errorf("empty sparkline = %q", got)
	}
	got := RenderSparkline([]float64{0, 50, 100})
	runes := []rune(got)
	if len(runes) != 3 {
		t.Fatalf("sparkline length = %d, want 3", len(runes))
	}
	if runes[0] != '▁' || runes[2] != '█' {
		t.Errorf("sparkline = %q", got)
	}
}
