package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseIntervalDuration(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseIntervalDurationErrors(t *testing.T) {
	for _, in := range []string{"", "m", "1x", "xm", "0m", "-5m"} {
		_, err := ParseIntervalDuration(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "1m", FormatInterval(time.Minute))
	assert.Equal(t, "5m", FormatInterval(5*time.Minute))
	assert.Equal(t, "1h", FormatInterval(time.Hour))
	assert.Equal(t, "30s", FormatInterval(30*time.Second))
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour} {
		parsed, err := ParseIntervalDuration(FormatInterval(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
}
