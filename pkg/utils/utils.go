// Package utils provides small parsing and formatting helpers shared by the
// API server and the command line tools.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order by ParseTime
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses an RFC3339 timestamp or a plain date (UTC).
// An empty string yields def.
func ParseTime(s string, def time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
}

// ParseLookback parses a lookback window such as "90m", "12h", "30d", "2w", "6mo" or "1y".
func ParseLookback(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid lookback: %q", s)
	}

	value := 0
	for i, c := range s {
		if c >= '0' && c <= '9' {
			value = value*10 + int(c-'0')
			continue
		}
		if i == 0 {
			return 0, fmt.Errorf("invalid lookback: %q", s)
		}
		switch unit := s[i:]; unit {
		case "m", "min", "minute", "minutes":
			return time.Duration(value) * time.Minute, nil
		case "h", "hr", "hour", "hours":
			return time.Duration(value) * time.Hour, nil
		case "d", "day", "days":
			return time.Duration(value) * 24 * time.Hour, nil
		case "w", "week", "weeks":
			return time.Duration(value) * 7 * 24 * time.Hour, nil
		case "mo", "month", "months":
			return time.Duration(value) * 30 * 24 * time.Hour, nil
		case "y", "year", "years":
			return time.Duration(value) * 365 * 24 * time.Hour, nil
		default:
			return 0, fmt.Errorf("unknown lookback unit: %s", unit)
		}
	}

	return 0, fmt.Errorf("invalid lookback: %q", s)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, int(d.Seconds())%60)
	}
	return d.Round(time.Millisecond).String()
}

// FormatMoney formats an amount in the given asset.
func FormatMoney(d decimal.Decimal, asset string) string {
	switch strings.ToUpper(asset) {
	case "USD", "USDT", "USDC", "BUSD":
		return "$" + d.StringFixed(2)
	case "BTC":
		return d.StringFixed(8) + " BTC"
	case "ETH":
		return d.StringFixed(6) + " ETH"
	case "BNB":
		return d.StringFixed(4) + " BNB"
	default:
		return d.String() + " " + asset
	}
}

// MinDecimal returns the minimum of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
