package indicator

import "chartcore/internal/market"

// RSI 采用 Wilder 平滑：种子 avgGain/avgLoss 为前 period 个涨跌幅的简单均值，
// 其后 avg = (avg*(period-1)+new)/period。avgLoss 为 0 时 RSI 记 100。
func RSI(candles market.Candles, period int) Series {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	out := make(Series, 0, len(candles)-period)
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta >= 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out = append(out, Point{Time: candles[period].Time, Value: rsiValue(avgGain, avgLoss)})
	p := float64(period)
	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta >= 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, Point{Time: candles[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// StochasticResult %K 与 %D。
type StochasticResult struct {
	K Series
	D Series
}

// Stochastic %K = (close−lowestLow)/(highestHigh−lowestLow)×100，
// 区间为零时取 50；%D 为 %K 的 dPeriod 简单均值。
func Stochastic(candles market.Candles, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || dPeriod <= 0 || len(candles) < kPeriod {
		return StochasticResult{}
	}
	k := make(Series, 0, len(candles)-kPeriod+1)
	for i := kPeriod - 1; i < len(candles); i++ {
		lo := candles[i-kPeriod+1].Low
		hi := candles[i-kPeriod+1].High
		for j := i - kPeriod + 2; j <= i; j++ {
			if candles[j].Low < lo {
				lo = candles[j].Low
			}
			if candles[j].High > hi {
				hi = candles[j].High
			}
		}
		v := 50.0
		if hi != lo {
			v = (candles[i].Close - lo) / (hi - lo) * 100
		}
		k = append(k, Point{Time: candles[i].Time, Value: v})
	}
	d := make(Series, 0, len(k))
	sum := 0.0
	for i, p := range k {
		sum += p.Value
		if i >= dPeriod {
			sum -= k[i-dPeriod].Value
		}
		if i >= dPeriod-1 {
			d = append(d, Point{Time: p.Time, Value: sum / float64(dPeriod)})
		}
	}
	return StochasticResult{K: k, D: d}
}
