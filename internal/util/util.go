// Package util provides small string helpers shared by command handlers and forms.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg normalizes one command argument: surrounding whitespace and quotes
// are removed and doubled quotes are unescaped.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// ParseInt parses a base-10 integer argument.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(CleanArg(s))
}

// Blank reports whether s is empty after trimming whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// AnyBlank reports whether any of the values is blank.
func AnyBlank(values ...string) bool {
	for _, v := range values {
		if Blank(v) {
			return true
		}
	}
	return false
}

// TripLabel builds the display label of a trip.
func TripLabel(pickup, destination string) string {
	return fmt.Sprintf("Trip from %s to %s", strings.TrimSpace(pickup), strings.TrimSpace(destination))
}

// FormatDistance renders meters as kilometers with one decimal, or meters below 1 km.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds as minutes, rounding up partial minutes.
func FormatDuration(seconds float64) string {
	mins := int((seconds + 59) / 60)
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d h %d min", mins/60, mins%60)
}
