package market

// Candle 单根 K 线。Time 统一使用 Unix 秒（内部规范时间），
// 日线及以上周期的日历字符串表示只在传输/渲染边界生成。
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type Candles []Candle

// Closes 提取收盘价序列。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Times 提取时间序列（升序，来自同一序列时保证去重）。
func (cs Candles) Times() []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.Time
	}
	return out
}

// StrictlyOrdered 校验序列内时间唯一且严格递增。
func (cs Candles) StrictlyOrdered() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].Time <= cs[i-1].Time {
			return false
		}
	}
	return true
}
