// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		// Truncating keeps 1999 at "1.9K" rather than rounding up a
		// magnitude.
		return fmt.Sprintf("%d.%dK", n/1_000, n%1_000/100)
	default:
		return strconv.FormatUint(n, 10)
	}
}

// FormatCost formats a USD cost value.
func FormatCost(cost float64) string {
	if cost >= 1000 {
		return "$" + FormatNumber(uint64(math.Round(cost)))
	}
	if cost >= 100 {
		return fmt.Sprintf("$%.0f", cost)
	}
	if cost >= 10 {
		return fmt.Sprintf("$%.1f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// FormatActiveDuration formats an active-time span in milliseconds.
// e.g., 3725000 -> "1h 2m 5s", 125000 -> "2m 5s", 45000 -> "45s"
func FormatActiveDuration(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	total := ms / 1000
	days := total / 86400
	hours := (total % 86400) / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-100 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f)
}

// FormatDate renders a "2006-01-02" day key as "Jun 03, 2024". Keys
// that do not parse come back unchanged.
func FormatDate(dayKey string) string {
	t, err := time.Parse("2006-01-02", dayKey)
	if err != nil {
		return dayKey
	}
	return t.Format("Jan 02, 2006")
}

// FormatDiffs renders added/deleted line counts as "+N -M".
func FormatDiffs(additions, deletions uint64) string {
	return fmt.Sprintf("+%s -%s", FormatNumber(additions), FormatNumber(deletions))
}
