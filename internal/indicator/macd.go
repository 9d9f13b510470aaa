package indicator

import "chartcore/internal/market"

// MACDResult macd/signal/histogram 三条序列。macd 自慢线起点对齐输出，
// signal 与 histogram 自信号线收敛后输出。
type MACDResult struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// MACD macd = EMA(fast) − EMA(slow)；signal 为 macd 序列的 EMA(signal)，
// 种子取 macd 前 signal 个值的简单均值，种子点本身不输出；
// histogram = macd − signal。K 线不足 slow+signal 根时整体返回空。
func MACD(candles market.Candles, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(candles) < slow+signal {
		return MACDResult{}
	}
	n := len(candles)
	emaFast := emaValues(candles, fast)
	emaSlow := emaValues(candles, slow)

	macd := make(Series, 0, n-slow+1)
	macdVals := make([]float64, 0, n-slow+1)
	for i := slow - 1; i < n; i++ {
		v := emaFast[i] - emaSlow[i]
		macd = append(macd, Point{Time: candles[i].Time, Value: v})
		macdVals = append(macdVals, v)
	}

	seed := 0.0
	for i := 0; i < signal; i++ {
		seed += macdVals[i]
	}
	sig := seed / float64(signal)
	k := 2.0 / float64(signal+1)
	sigSeries := make(Series, 0, len(macdVals)-signal)
	hist := make(Series, 0, len(macdVals)-signal)
	for i := signal; i < len(macdVals); i++ {
		sig = macdVals[i]*k + sig*(1-k)
		ts := macd[i].Time
		sigSeries = append(sigSeries, Point{Time: ts, Value: sig})
		hist = append(hist, Point{Time: ts, Value: macdVals[i] - sig})
	}
	return MACDResult{MACD: macd, Signal: sigSeries, Histogram: hist}
}

// emaValues 返回与输入等长的 EMA 数组，前 period-1 个位置无效（置 0）。
func emaValues(candles market.Candles, period int) []float64 {
	out := make([]float64, len(candles))
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += candles[i].Close
	}
	ema := seed / float64(period)
	out[period-1] = ema
	k := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = candles[i].Close*k + ema*(1-k)
		out[i] = ema
	}
	return out
}
