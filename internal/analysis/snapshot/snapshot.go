// Package snapshot 为交易日志视图汇总一个 symbol+resolution 的指标现状。
// 图表序列由 internal/indicator 的精确递推产生；这里只关心“最新值 + 状态标签”，
// 并补充图表集之外的参考指标（Williams %R、ROC、OBV），计算委托给 TALib。
package snapshot

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"chartcore/internal/market"
)

// Value 单个指标的最新值与状态标签。
type Value struct {
	Latest float64 `json:"latest"`
	State  string  `json:"state,omitempty"`
	Note   string  `json:"note,omitempty"`
}

// Report 一个 symbol+resolution 的指标快照。
type Report struct {
	Symbol     string            `json:"symbol"`
	Resolution market.Resolution `json:"resolution"`
	Count      int               `json:"count"`
	LastClose  float64           `json:"last_close"`
	Values     map[string]Value  `json:"values"`
}

// Settings 快照参数；零值使用默认周期。
type Settings struct {
	RSIPeriod  int
	ATRPeriod  int
	ROCPeriod  int
	WillPeriod int
}

func (s Settings) withDefaults() Settings {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	if s.ROCPeriod <= 0 {
		s.ROCPeriod = 9
	}
	if s.WillPeriod <= 0 {
		s.WillPeriod = 14
	}
	return s
}

// Build 生成快照。K 线为空时返回错误，数据偏少时尽量给出可算的部分。
func Build(symbol string, res market.Resolution, candles market.Candles, cfg Settings) (Report, error) {
	rep := Report{
		Symbol:     symbol,
		Resolution: res,
		Count:      len(candles),
		Values:     make(map[string]Value),
	}
	if len(candles) == 0 {
		return rep, fmt.Errorf("no candles for %s@%s", symbol, res)
	}
	cfg = cfg.withDefaults()

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	rep.LastClose = closes[len(closes)-1]

	if rsi := lastValid(talib.Rsi(closes, cfg.RSIPeriod)); !math.IsNaN(rsi) {
		state := "neutral"
		switch {
		case rsi >= 70:
			state = "overbought"
		case rsi <= 30:
			state = "oversold"
		}
		rep.Values["rsi"] = Value{Latest: round4(rsi), State: state, Note: fmt.Sprintf("period=%d", cfg.RSIPeriod)}
	}

	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	if h := lastValid(hist); !math.IsNaN(h) {
		state := "flat"
		switch {
		case h > 0:
			state = "bullish"
		case h < 0:
			state = "bearish"
		}
		rep.Values["macd"] = Value{
			Latest: round4(lastValid(macd)),
			State:  state,
			Note:   fmt.Sprintf("signal=%.4f hist=%.4f", lastValid(signal), h),
		}
	}

	if atr := lastValid(talib.Atr(highs, lows, closes, cfg.ATRPeriod)); !math.IsNaN(atr) {
		rep.Values["atr"] = Value{Latest: round4(atr), State: "volatility", Note: fmt.Sprintf("period=%d", cfg.ATRPeriod)}
	}

	if roc := lastValid(talib.Roc(closes, cfg.ROCPeriod)); !math.IsNaN(roc) {
		rep.Values["roc"] = Value{Latest: round4(roc), State: polarityState(roc), Note: fmt.Sprintf("period=%d", cfg.ROCPeriod)}
	}

	if will := lastValid(talib.WillR(highs, lows, closes, cfg.WillPeriod)); !math.IsNaN(will) {
		rep.Values["williams_r"] = Value{Latest: round4(will), State: stochasticState(-will), Note: fmt.Sprintf("period=%d", cfg.WillPeriod)}
	}

	if obv := lastValid(talib.Obv(closes, volumes)); !math.IsNaN(obv) {
		rep.Values["obv"] = Value{Latest: round4(obv), State: "volume"}
	}

	return rep, nil
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return math.NaN()
}

func polarityState(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return "flat"
	}
}

func stochasticState(v float64) string {
	switch {
	case v >= 80:
		return "overbought"
	case v <= 20:
		return "oversold"
	default:
		return "neutral"
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
