// Package indicator 提供基于 OHLCV 序列的纯函数技术指标计算。
// 所有函数不修改输入、不抛错：数据不足时返回空结果，
// 输出点的时间等于参与计算的最后一根 K 线的时间。
package indicator

import (
	"fmt"

	"chartcore/internal/market"
)

// Point 派生序列中的一个点。Color 仅在成交量等需要涨跌着色的序列中使用。
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

type Series []Point

// Result 将一个指标产出的若干命名序列打包，例如
// MACD → {macd, signal, histogram}，Bollinger → {upper, middle, lower}。
// 单序列指标使用 "value" 键。
type Result map[string]Series

const (
	KeyValue     = "value"
	KeyUpper     = "upper"
	KeyMiddle    = "middle"
	KeyLower     = "lower"
	KeyMACD      = "macd"
	KeySignal    = "signal"
	KeyHistogram = "histogram"
	KeyK         = "k"
	KeyD         = "d"
	KeyVolume    = "volume"
)

const (
	ColorUp   = "up"
	ColorDown = "down"
)

// Config 描述图表上挂载的一个指标实例。Params 是按类型区分的
// 参数联合体；Overlay 决定画在主价格图还是副面板。
type Config struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Params  Params `json:"params"`
	Enabled bool   `json:"enabled"`
	Overlay bool   `json:"overlay"`
}

// Compute 按配置计算指标。未知类型或缺失参数属于调用方契约错误。
// 数据不足不是错误：返回的各序列为空。
func Compute(candles market.Candles, cfg Config) (Result, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("indicator %s: params missing", cfg.Type)
	}
	if cfg.Params.Type() != cfg.Type {
		return nil, fmt.Errorf("indicator %s: params are for %s", cfg.Type, cfg.Params.Type())
	}
	switch p := cfg.Params.(type) {
	case SMAParams:
		return Result{KeyValue: SMA(candles, p.Period)}, nil
	case EMAParams:
		return Result{KeyValue: EMA(candles, p.Period)}, nil
	case BollingerParams:
		b := Bollinger(candles, p.Period, p.StdDev)
		return Result{KeyUpper: b.Upper, KeyMiddle: b.Middle, KeyLower: b.Lower}, nil
	case RSIParams:
		return Result{KeyValue: RSI(candles, p.Period)}, nil
	case MACDParams:
		m := MACD(candles, p.Fast, p.Slow, p.Signal)
		return Result{KeyMACD: m.MACD, KeySignal: m.Signal, KeyHistogram: m.Histogram}, nil
	case StochasticParams:
		s := Stochastic(candles, p.KPeriod, p.DPeriod)
		return Result{KeyK: s.K, KeyD: s.D}, nil
	case ATRParams:
		return Result{KeyValue: ATR(candles, p.Period)}, nil
	case ATRPercentParams:
		return Result{KeyValue: ATRPercent(candles, p.Period)}, nil
	case MomentumParams:
		return Result{KeyValue: Momentum(candles, p.Periods)}, nil
	case VolumeParams:
		return Result{KeyVolume: Volume(candles)}, nil
	default:
		return nil, fmt.Errorf("indicator: unhandled type %q", cfg.Type)
	}
}

// Warmup 返回该配置首个输出点之前需要的 K 线数量。
func Warmup(p Params) int {
	switch v := p.(type) {
	case SMAParams:
		return v.Period
	case EMAParams:
		return v.Period
	case BollingerParams:
		return v.Period
	case RSIParams:
		return v.Period + 1
	case MACDParams:
		return v.Slow + v.Signal
	case StochasticParams:
		return v.KPeriod
	case ATRParams:
		return v.Period + 1
	case ATRPercentParams:
		return v.Period + 1
	case MomentumParams:
		max := 0
		for _, p := range v.Periods {
			if p > max {
				max = p
			}
		}
		return max + 1
	case VolumeParams:
		return 1
	default:
		return 0
	}
}
