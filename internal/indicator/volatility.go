package indicator

import (
	"math"

	"chartcore/internal/market"
)

// ATR 真实波幅 = max(high−low, |high−prevClose|, |low−prevClose|)；
// 种子为前 period 个真实波幅的简单均值，其后 Wilder 平滑。
func ATR(candles market.Candles, period int) Series {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	out := make(Series, 0, len(candles)-period)
	seed := 0.0
	for i := 1; i <= period; i++ {
		seed += trueRange(candles[i], candles[i-1].Close)
	}
	atr := seed / float64(period)
	out = append(out, Point{Time: candles[period].Time, Value: atr})
	p := float64(period)
	for i := period + 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1].Close)
		atr = (atr*(p-1) + tr) / p
		out = append(out, Point{Time: candles[i].Time, Value: atr})
	}
	return out
}

// ATRPercent ATR 除以对应收盘价再乘 100，便于跨价位比较波动率。
func ATRPercent(candles market.Candles, period int) Series {
	atr := ATR(candles, period)
	if len(atr) == 0 {
		return nil
	}
	out := make(Series, len(atr))
	offset := len(candles) - len(atr)
	for i, p := range atr {
		c := candles[offset+i].Close
		v := 0.0
		if c != 0 {
			v = p.Value / c * 100
		}
		out[i] = Point{Time: p.Time, Value: v}
	}
	return out
}

func trueRange(c market.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if v := math.Abs(c.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(c.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}
