package rates

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Round rounds a price for display. Places outside 0..2 are clamped.
func Round(d decimal.Decimal, places int) decimal.Decimal {
	return d.Round(clampPlaces(places))
}

// FormatINR renders a price in Indian grouping (₹1,23,456.78).
func FormatINR(d decimal.Decimal, places int) string {
	rounded := Round(d, places)
	fixed := rounded.Abs().StringFixed(clampPlaces(places))

	intPart, fracPart := fixed, ""
	if idx := strings.IndexByte(fixed, '.'); idx >= 0 {
		intPart, fracPart = fixed[:idx], fixed[idx:]
	}

	out := "₹" + groupIndian(intPart) + fracPart
	if rounded.IsNegative() {
		return "-" + out
	}
	return out
}

// groupIndian keeps the last three digits together, then groups by two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}

func clampPlaces(places int) int32 {
	switch {
	case places < 0:
		return 0
	case places > 2:
		return 2
	default:
		return int32(places)
	}
}
