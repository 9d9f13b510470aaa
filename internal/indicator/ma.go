package indicator

import (
	"math"

	"chartcore/internal/market"
)

// SMA 滑动算术平均。输出自第 period 根起，时间对齐窗口最后一根。
func SMA(candles market.Candles, period int) Series {
	if period <= 0 || len(candles) < period {
		return nil
	}
	out := make(Series, 0, len(candles)-period+1)
	sum := 0.0
	for i, c := range candles {
		sum += c.Close
		if i >= period {
			sum -= candles[i-period].Close
		}
		if i >= period-1 {
			out = append(out, Point{Time: c.Time, Value: sum / float64(period)})
		}
	}
	return out
}

// EMA 指数移动平均。种子为前 period 根收盘的 SMA，
// 其后递推 ema = close*k + ema*(1-k)，k = 2/(period+1)。
func EMA(candles market.Candles, period int) Series {
	if period <= 0 || len(candles) < period {
		return nil
	}
	out := make(Series, 0, len(candles)-period+1)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += candles[i].Close
	}
	ema := seed / float64(period)
	out = append(out, Point{Time: candles[period-1].Time, Value: ema})
	k := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = candles[i].Close*k + ema*(1-k)
		out = append(out, Point{Time: candles[i].Time, Value: ema})
	}
	return out
}

// BollingerResult 布林带三条序列。
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// Bollinger 中轨为 SMA(period)，上下轨为中轨 ± stdDev 倍同窗总体标准差。
func Bollinger(candles market.Candles, period int, stdDev float64) BollingerResult {
	middle := SMA(candles, period)
	if len(middle) == 0 {
		return BollingerResult{}
	}
	upper := make(Series, len(middle))
	lower := make(Series, len(middle))
	for i, m := range middle {
		// middle[i] 的窗口是 candles[i : i+period]
		varSum := 0.0
		for j := i; j < i+period; j++ {
			d := candles[j].Close - m.Value
			varSum += d * d
		}
		sigma := math.Sqrt(varSum / float64(period))
		upper[i] = Point{Time: m.Time, Value: m.Value + stdDev*sigma}
		lower[i] = Point{Time: m.Time, Value: m.Value - stdDev*sigma}
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
