package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartcore/internal/market"
)

const baseTime = int64(1_700_000_000)

func candlesFromCloses(closes ...float64) market.Candles {
	out := make(market.Candles, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Time:   baseTime + int64(i)*3600,
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100 + float64(i),
		}
	}
	return out
}

func increasingCloses(n int) market.Candles {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	return candlesFromCloses(closes...)
}

func constantCloses(n int, v float64) market.Candles {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = v
	}
	return candlesFromCloses(closes...)
}

func TestOutputLengths(t *testing.T) {
	cs := increasingCloses(60)
	n := len(cs)

	t.Run("sma", func(t *testing.T) {
		assert.Len(t, SMA(cs, 10), n-10+1)
	})
	t.Run("ema", func(t *testing.T) {
		assert.Len(t, EMA(cs, 10), n-10+1)
	})
	t.Run("bollinger", func(t *testing.T) {
		b := Bollinger(cs, 20, 2)
		assert.Len(t, b.Middle, n-20+1)
		assert.Len(t, b.Upper, n-20+1)
		assert.Len(t, b.Lower, n-20+1)
	})
	t.Run("rsi", func(t *testing.T) {
		assert.Len(t, RSI(cs, 14), n-(14+1)+1)
	})
	t.Run("macd", func(t *testing.T) {
		m := MACD(cs, 12, 26, 9)
		assert.Len(t, m.MACD, n-26+1)
		assert.Len(t, m.Signal, n-(26+9)+1)
		assert.Len(t, m.Histogram, n-(26+9)+1)
	})
	t.Run("stochastic", func(t *testing.T) {
		s := Stochastic(cs, 14, 3)
		assert.Len(t, s.K, n-14+1)
		assert.Len(t, s.D, n-(14+3-1)+1)
	})
	t.Run("atr", func(t *testing.T) {
		assert.Len(t, ATR(cs, 14), n-(14+1)+1)
	})
	t.Run("momentum", func(t *testing.T) {
		assert.Len(t, Momentum(cs, []int{5, 10}), n-(10+1)+1)
	})
	t.Run("volume", func(t *testing.T) {
		assert.Len(t, Volume(cs), n)
	})
}

func TestInsufficientDataYieldsEmpty(t *testing.T) {
	cs := increasingCloses(5)
	assert.Empty(t, SMA(cs, 10))
	assert.Empty(t, EMA(cs, 10))
	assert.Empty(t, Bollinger(cs, 10, 2).Middle)
	assert.Empty(t, RSI(cs, 14))
	assert.Empty(t, MACD(cs, 12, 26, 9).MACD)
	assert.Empty(t, Stochastic(cs, 14, 3).K)
	assert.Empty(t, ATR(cs, 14))
	assert.Empty(t, ATRPercent(cs, 14))
	assert.Empty(t, Momentum(cs, []int{10}))
}

func TestInputNotMutated(t *testing.T) {
	cs := increasingCloses(40)
	snapshot := make(market.Candles, len(cs))
	copy(snapshot, cs)
	SMA(cs, 10)
	EMA(cs, 10)
	Bollinger(cs, 10, 2)
	RSI(cs, 14)
	MACD(cs, 12, 26, 9)
	Stochastic(cs, 14, 3)
	ATR(cs, 14)
	Momentum(cs, []int{5, 10})
	Volume(cs)
	assert.Equal(t, snapshot, cs)
}

func TestTimeAlignment(t *testing.T) {
	cs := increasingCloses(30)
	sma := SMA(cs, 10)
	require.NotEmpty(t, sma)
	// 每个输出点的时间等于窗口最后一根 K 线的时间
	for i, p := range sma {
		assert.Equal(t, cs[10-1+i].Time, p.Time)
	}
	assert.Equal(t, cs[len(cs)-1].Time, sma[len(sma)-1].Time)
}

func TestSMAGoldenIncreasing(t *testing.T) {
	cs := increasingCloses(30)
	sma := SMA(cs, 10)
	require.Len(t, sma, 21)
	// closes 1..30：首个窗口均值 5.5，每步 +1
	assert.InDelta(t, 5.5, sma[0].Value, 1e-12)
	assert.InDelta(t, 14.5, sma[9].Value, 1e-12)
	assert.InDelta(t, 25.5, sma[20].Value, 1e-12)
	for i := 1; i < len(sma); i++ {
		assert.Greater(t, sma[i].Value, sma[i-1].Value)
	}
}

func TestConstantPriceSMAEqualsEMA(t *testing.T) {
	cs := constantCloses(40, 42.5)
	sma := SMA(cs, 10)
	ema := EMA(cs, 10)
	require.Len(t, ema, len(sma))
	for i := range sma {
		assert.InDelta(t, 42.5, sma[i].Value, 1e-9)
		assert.InDelta(t, 42.5, ema[i].Value, 1e-9)
	}
}

func TestRSIBoundsAndAllGains(t *testing.T) {
	t.Run("bounded", func(t *testing.T) {
		closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.1, 46.0,
			45.8, 46.4, 46.2, 45.6, 46.2, 46.3, 46.0, 46.0, 46.4, 46.2}
		rsi := RSI(candlesFromCloses(closes...), 14)
		require.NotEmpty(t, rsi)
		for _, p := range rsi {
			assert.GreaterOrEqual(t, p.Value, 0.0)
			assert.LessOrEqual(t, p.Value, 100.0)
		}
	})
	t.Run("all gains pins 100", func(t *testing.T) {
		rsi := RSI(increasingCloses(20), 14)
		require.NotEmpty(t, rsi)
		for _, p := range rsi {
			assert.Equal(t, 100.0, p.Value)
		}
	})
}

func TestMACDHistogramIdentity(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		// 非平凡但确定的价格路径
		closes[i] = 100 + float64(i%7)*1.5 - float64(i%3)
	}
	m := MACD(candlesFromCloses(closes...), 12, 26, 9)
	require.NotEmpty(t, m.Histogram)
	macdByTime := make(map[int64]float64, len(m.MACD))
	for _, p := range m.MACD {
		macdByTime[p.Time] = p.Value
	}
	for i, h := range m.Histogram {
		sig := m.Signal[i]
		assert.Equal(t, sig.Time, h.Time)
		mv, ok := macdByTime[h.Time]
		require.True(t, ok)
		assert.InDelta(t, mv-sig.Value, h.Value, 1e-12)
	}
}

func TestStochasticBoundsAndFlatWindow(t *testing.T) {
	t.Run("bounded", func(t *testing.T) {
		s := Stochastic(increasingCloses(30), 14, 3)
		for _, p := range s.K {
			assert.GreaterOrEqual(t, p.Value, 0.0)
			assert.LessOrEqual(t, p.Value, 100.0)
		}
	})
	t.Run("zero range pins 50", func(t *testing.T) {
		flat := make(market.Candles, 20)
		for i := range flat {
			flat[i] = market.Candle{Time: baseTime + int64(i)*60, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1}
		}
		s := Stochastic(flat, 14, 3)
		require.NotEmpty(t, s.K)
		for _, p := range s.K {
			assert.Equal(t, 50.0, p.Value)
		}
	})
}

func TestATRPercentRoundTrip(t *testing.T) {
	closes := []float64{50, 51, 49.5, 52, 53, 52.5, 54, 55, 54.5, 56,
		57, 56.5, 58, 59, 58.5, 60, 61, 60.5, 62, 63}
	cs := candlesFromCloses(closes...)
	atr := ATR(cs, 14)
	pct := ATRPercent(cs, 14)
	require.Len(t, pct, len(atr))
	offset := len(cs) - len(atr)
	for i := range atr {
		reconstructed := pct[i].Value * cs[offset+i].Close / 100
		assert.InDelta(t, atr[i].Value, reconstructed, 1e-9)
	}
}

func TestVolumeTags(t *testing.T) {
	cs := market.Candles{
		{Time: baseTime, Open: 10, High: 11, Low: 9, Close: 11, Volume: 100},
		{Time: baseTime + 60, Open: 11, High: 12, Low: 10, Close: 10, Volume: 200},
		{Time: baseTime + 120, Open: 10, High: 10, Low: 10, Close: 10, Volume: 50},
	}
	vol := Volume(cs)
	require.Len(t, vol, 3)
	assert.Equal(t, ColorUp, vol[0].Color)
	assert.Equal(t, ColorDown, vol[1].Color)
	// 平盘按上涨着色
	assert.Equal(t, ColorUp, vol[2].Color)
	assert.Equal(t, 200.0, vol[1].Value)
}

func TestComputeDispatch(t *testing.T) {
	cs := increasingCloses(60)

	t.Run("single series under value key", func(t *testing.T) {
		res, err := Compute(cs, Config{ID: "x", Type: TypeSMA, Params: SMAParams{Period: 10}, Enabled: true, Overlay: true})
		require.NoError(t, err)
		assert.Len(t, res[KeyValue], 51)
	})
	t.Run("bundled result keys", func(t *testing.T) {
		res, err := Compute(cs, Config{ID: "x", Type: TypeMACD, Params: MACDParams{Fast: 12, Slow: 26, Signal: 9}})
		require.NoError(t, err)
		assert.Contains(t, res, KeyMACD)
		assert.Contains(t, res, KeySignal)
		assert.Contains(t, res, KeyHistogram)
	})
	t.Run("missing params is a caller error", func(t *testing.T) {
		_, err := Compute(cs, Config{ID: "x", Type: TypeSMA})
		assert.Error(t, err)
	})
	t.Run("mismatched params is a caller error", func(t *testing.T) {
		_, err := Compute(cs, Config{ID: "x", Type: TypeSMA, Params: RSIParams{Period: 14}})
		assert.Error(t, err)
	})
}

func TestDecodeParams(t *testing.T) {
	t.Run("weakly typed input", func(t *testing.T) {
		p, err := DecodeParams(TypeBollinger, map[string]any{"period": "20", "std_dev": 2})
		require.NoError(t, err)
		assert.Equal(t, BollingerParams{Period: 20, StdDev: 2}, p)
	})
	t.Run("edit time validation", func(t *testing.T) {
		_, err := DecodeParams(TypeSMA, map[string]any{"period": -3})
		assert.Error(t, err)
		_, err = DecodeParams(TypeMACD, map[string]any{"fast": 26, "slow": 12, "signal": 9})
		assert.Error(t, err)
	})
	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeParams(Type("vwap"), nil)
		assert.Error(t, err)
	})
}
