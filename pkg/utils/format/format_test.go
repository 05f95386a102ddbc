package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrequency(t *testing.T) {
	cases := map[string]string{
		"482.9625":     "482.9625 MHz",
		"482.9625 MHz": "482.9625 MHz",
		"482962500":    "482.9625 MHz",
		"482962.5":     "482.9625 MHz",
		"154.19":       "154.1900 MHz",
		" P25 ":        "P25",
		"":             "",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, Frequency(in))
		})
	}
}

func TestDuration(t *testing.T) {
	require.Equal(t, "0:07", Duration(7.3))
	require.Equal(t, "1:05", Duration(65))
	require.Equal(t, "1:01:01", Duration(3661))
	require.Equal(t, "0:00", Duration(-1))
}

func TestCurrencyAndConfidence(t *testing.T) {
	v := int64(1234500)
	require.Equal(t, "$1,234,500", Currency(&v))
	require.Empty(t, Currency(nil))

	c := 0.914
	require.Equal(t, "91%", Confidence(&c))
	require.Empty(t, Confidence(nil))
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.Empty(t, Ago(nil, now))
	require.Empty(t, Ago(&time.Time{}, now))
	past := now.Add(-3 * time.Minute)
	require.Equal(t, "3 minutes ago", Ago(&past, now))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "engine ...", Truncate("engine two responding", 10))
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  units   clear ", "units clear"},
		{"<b>Boylston St</b> & Arlington St", "Boylston St & Arlington St"},
		{"it's <script>alert(1)</script>fine", "it's fine"},
		{"line\nbreak", "line break"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
