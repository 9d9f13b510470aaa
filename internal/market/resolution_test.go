package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	cases := []struct {
		in   string
		want Resolution
		ok   bool
	}{
		{"1m", Res1m, true},
		{" 5M ", Res5m, true},
		{"1H", Res1h, true},
		{"1d", Res1d, true},
		{"1M", Res1M, true},
		{"1w", Res1w, true},
		{"7m", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseResolution(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got, tc.in)
		} else {
			assert.Error(t, err, tc.in)
		}
	}
}

// "1M"（月）大小写敏感，其余周期不敏感；"5M" 只能是 5 分钟
func TestParseResolutionMonthCaseSensitive(t *testing.T) {
	got, err := ParseResolution("5M")
	require.NoError(t, err)
	assert.Equal(t, Res5m, got)

	got, err = ParseResolution("1M")
	require.NoError(t, err)
	assert.Equal(t, Res1M, got)
}

func TestTTLMonotonicWithDuration(t *testing.T) {
	ordered := []Resolution{Res1m, Res5m, Res15m, Res30m, Res1h, Res4h, Res1d, Res1w, Res1M}
	for i := 1; i < len(ordered); i++ {
		assert.GreaterOrEqual(t, int64(ordered[i].TTL()), int64(ordered[i-1].TTL()),
			"TTL(%s) < TTL(%s)", ordered[i], ordered[i-1])
		assert.Greater(t, int64(ordered[i].Duration()), int64(ordered[i-1].Duration()))
	}
}

func TestEncodeTimeByResolution(t *testing.T) {
	ts := int64(1_700_000_000) // 2023-11-14 UTC

	assert.Equal(t, ts, Res1m.EncodeTime(ts))
	assert.Equal(t, ts, Res4h.EncodeTime(ts))
	assert.Equal(t, "2023-11-14", Res1d.EncodeTime(ts))
	assert.Equal(t, "2023-11-14", Res1M.EncodeTime(ts))
}

func TestIntraday(t *testing.T) {
	assert.True(t, Res1m.Intraday())
	assert.True(t, Res4h.Intraday())
	assert.False(t, Res1d.Intraday())
	assert.False(t, Resolution("bogus").Intraday())
}

func TestCandlesHelpers(t *testing.T) {
	cs := Candles{
		{Time: 1, Close: 10},
		{Time: 2, Close: 20},
		{Time: 3, Close: 30},
	}
	assert.Equal(t, []float64{10, 20, 30}, cs.Closes())
	assert.Equal(t, []int64{1, 2, 3}, cs.Times())
	assert.True(t, cs.StrictlyOrdered())

	dup := Candles{{Time: 1}, {Time: 1}}
	assert.False(t, dup.StrictlyOrdered())
	outOfOrder := Candles{{Time: 2}, {Time: 1}}
	assert.False(t, outOfOrder.StrictlyOrdered())
	assert.True(t, Candles{}.StrictlyOrdered())
}

func TestDefaultTTLFallback(t *testing.T) {
	assert.Equal(t, time.Minute, Resolution("bogus").TTL())
}
