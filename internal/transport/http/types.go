package charthttp

import (
	"chartcore/internal/indicator"
	"chartcore/internal/market"
)

// candleDTO 对外输出的单根 K 线。Time 按周期约定编码：
// 日内为 Unix 秒，日线及以上为 "YYYY-MM-DD"。
type candleDTO struct {
	Time   any     `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// resolutionSlice 单个周期的返回片段。
type resolutionSlice struct {
	Resolution string      `json:"resolution"`
	State      string      `json:"state"`
	Candles    []candleDTO `json:"candles,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type pointDTO struct {
	Time  any     `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

type refreshRequest struct {
	Symbol      string   `json:"symbol"`
	Resolutions []string `json:"resolutions"`
	Limit       int      `json:"limit"`
}

type indicatorEntry struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Params  map[string]any `json:"params"`
	Enabled *bool          `json:"enabled"`
	Overlay bool           `json:"overlay"`
}

type indicatorsRequest struct {
	Symbol     string           `json:"symbol"`
	Resolution string           `json:"resolution"`
	Limit      int              `json:"limit"`
	Indicators []indicatorEntry `json:"indicators"`
}

type layoutRequest struct {
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Primary     string           `json:"primary_resolution"`
	Secondaries []string         `json:"secondary_resolutions"`
	Indicators  []indicatorEntry `json:"indicators"`
}

type journalNoteRequest struct {
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	CandleTime int64  `json:"candle_time"`
	Note       string `json:"note"`
}

func toCandleDTOs(res market.Resolution, candles market.Candles) []candleDTO {
	out := make([]candleDTO, len(candles))
	for i, c := range candles {
		out[i] = candleDTO{
			Time:   res.EncodeTime(c.Time),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return out
}

func toPointDTOs(res market.Resolution, series indicator.Series) []pointDTO {
	out := make([]pointDTO, len(series))
	for i, p := range series {
		out[i] = pointDTO{
			Time:  res.EncodeTime(p.Time),
			Value: p.Value,
			Color: p.Color,
		}
	}
	return out
}
