package rates

import "testing"

func TestFormatINR(t *testing.T) {
	cases := []struct {
		in     string
		places int
		want   string
	}{
		{"0", 0, "₹0"},
		{"999", 2, "₹999.00"},
		{"72100", 0, "₹72,100"},
		{"1234567.891", 2, "₹12,34,567.89"},
		{"123456789", 1, "₹12,34,56,789.0"},
		{"-515", 0, "-₹515"},
		{"-0.001", 2, "₹0.00"},
		{"72100.5", 5, "₹72,100.50"},
	}
	for _, tc := range cases {
		if got := FormatINR(dec(tc.in), tc.places); got != tc.want {
			t.Fatalf("FormatINR(%s, %d) = %q, want %q", tc.in, tc.places, got, tc.want)
		}
	}
}

func TestRound(t *testing.T) {
	if got := Round(dec("72203.456"), 1); !got.Equal(dec("72203.5")) {
		t.Fatalf("Round 错误: %s", got)
	}
	if got := Round(dec("72203.456"), -1); !got.Equal(dec("72203")) {
		t.Fatalf("负小数位应按 0 处理: %s", got)
	}
}
