// Package format renders incident values for display.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Frequency renders a recorder frequency field as MHz with four decimals
// ("482.9625 MHz"). Values in Hz or kHz are scaled down. Anything that is not
// a number is returned trimmed and unchanged.
func Frequency(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "MHz"), "mhz")
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return strings.TrimSpace(raw)
	}
	switch {
	case f >= 1e6:
		f /= 1e6
	case f >= 1e4:
		f /= 1e3
	}
	return fmt.Sprintf("%.4f MHz", f)
}

// Duration converts seconds to "M:SS" or "H:MM:SS" display format.
func Duration(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Currency renders an assessed value in whole dollars ("$1,234,500").
func Currency(v *int64) string {
	if v == nil {
		return ""
	}
	return "$" + humanize.Comma(*v)
}

// Ago renders t relative to now ("3 minutes ago"). Zero times render empty.
func Ago(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// Confidence renders a 0..1 score as a whole percentage.
func Confidence(c *float64) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", *c*100)
}

// Truncate returns s truncated to max runes with "..." suffix.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
