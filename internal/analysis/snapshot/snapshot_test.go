package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartcore/internal/market"
)

func trendingCandles(n int, up bool) market.Candles {
	out := make(market.Candles, n)
	base := int64(1_700_000_000)
	for i := range out {
		var price float64
		if up {
			price = 100 + float64(i)
		} else {
			price = 100 + float64(n) - float64(i)
		}
		out[i] = market.Candle{
			Time:   base + int64(i)*3600,
			Open:   price,
			High:   price + 1.5,
			Low:    price - 1.5,
			Close:  price,
			Volume: float64(50 + i),
		}
	}
	return out
}

func TestBuildUptrendReport(t *testing.T) {
	candles := trendingCandles(120, true)
	rep, err := Build("BTCUSDT", market.Res1h, candles, Settings{})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", rep.Symbol)
	assert.Equal(t, market.Res1h, rep.Resolution)
	assert.Equal(t, 120, rep.Count)
	assert.Equal(t, candles[len(candles)-1].Close, rep.LastClose)

	rsi, ok := rep.Values["rsi"]
	require.True(t, ok)
	// 单调上涨：RSI 顶满
	assert.Equal(t, "overbought", rsi.State)
	assert.InDelta(t, 100, rsi.Latest, 1)

	macd, ok := rep.Values["macd"]
	require.True(t, ok)
	assert.Equal(t, "bullish", macd.State)

	roc, ok := rep.Values["roc"]
	require.True(t, ok)
	assert.Equal(t, "positive", roc.State)

	assert.Contains(t, rep.Values, "atr")
	assert.Contains(t, rep.Values, "williams_r")
	assert.Contains(t, rep.Values, "obv")
}

func TestBuildDowntrendStates(t *testing.T) {
	rep, err := Build("ETHUSDT", market.Res4h, trendingCandles(120, false), Settings{})
	require.NoError(t, err)

	assert.Equal(t, "oversold", rep.Values["rsi"].State)
	assert.Equal(t, "bearish", rep.Values["macd"].State)
	assert.Equal(t, "negative", rep.Values["roc"].State)
}

func TestBuildEmptyCandles(t *testing.T) {
	_, err := Build("BTCUSDT", market.Res1h, nil, Settings{})
	assert.Error(t, err)
}

func TestBuildShortSeriesPartialReport(t *testing.T) {
	// 10 根不够 MACD(12,26,9)，但 ROC(9) 可算
	rep, err := Build("BTCUSDT", market.Res1h, trendingCandles(12, true), Settings{})
	require.NoError(t, err)
	assert.NotContains(t, rep.Values, "macd")
	assert.Contains(t, rep.Values, "roc")
}

func TestCustomPeriods(t *testing.T) {
	rep, err := Build("BTCUSDT", market.Res1h, trendingCandles(60, true), Settings{RSIPeriod: 7, ROCPeriod: 3})
	require.NoError(t, err)
	assert.Equal(t, "period=7", rep.Values["rsi"].Note)
	assert.Equal(t, "period=3", rep.Values["roc"].Note)
}

func TestLastValidSkipsTrailingNaN(t *testing.T) {
	assert.Equal(t, 2.5, lastValid([]float64{1, 2.5, math.NaN()}))
	assert.True(t, math.IsNaN(lastValid([]float64{0, math.NaN()})))
	assert.True(t, math.IsNaN(lastValid(nil)))
}
