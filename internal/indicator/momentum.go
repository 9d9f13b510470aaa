package indicator

import "chartcore/internal/market"

// Momentum 对每根 K 线，取各回看周期相对 period 根之前收盘价的
// 百分比涨跌的均值。自最大回看周期之后开始输出。
func Momentum(candles market.Candles, periods []int) Series {
	if len(periods) == 0 {
		return nil
	}
	maxP := 0
	for _, p := range periods {
		if p <= 0 {
			return nil
		}
		if p > maxP {
			maxP = p
		}
	}
	if len(candles) < maxP+1 {
		return nil
	}
	out := make(Series, 0, len(candles)-maxP)
	for i := maxP; i < len(candles); i++ {
		sum := 0.0
		for _, p := range periods {
			base := candles[i-p].Close
			if base != 0 {
				sum += (candles[i].Close - base) / base * 100
			}
		}
		out = append(out, Point{Time: candles[i].Time, Value: sum / float64(len(periods))})
	}
	return out
}

// Volume 成交量透传，按收盘与开盘的关系打涨跌标签。
func Volume(candles market.Candles) Series {
	out := make(Series, len(candles))
	for i, c := range candles {
		color := ColorUp
		if c.Close < c.Open {
			color = ColorDown
		}
		out[i] = Point{Time: c.Time, Value: c.Volume, Color: color}
	}
	return out
}
