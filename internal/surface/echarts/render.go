package echarts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"chartcore/internal/chartsync"
	"chartcore/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"

	chartWidthPx  = 1600
	chartHeightPx = 620
)

var overlayPalette = []string{"#3b82f6", "#fbbf24", "#f472b6", "#22d3ee", "#a78bfa", "#fb7185"}

// RenderHTML 把表面当前状态渲染为单页 HTML：K 线 + 叠加序列，
// dataZoom 初始窗口来自可见逻辑窗。
func (s *Surface) RenderHTML() ([]byte, error) {
	if len(s.candles) == 0 {
		return nil, fmt.Errorf("surface %s: no candles to render", s.title)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	zoomStart, zoomEnd := s.zoomPercents()
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s", strings.ToUpper(s.title), s.resolution),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}, Start: zoomStart, End: zoomEnd}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := s.xAxisLabels()
	klineData := make([]opts.KlineData, len(s.candles))
	for i, c := range s.candles {
		klineData[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries(fmt.Sprintf("Price_%s", s.resolution), klineData)

	if len(s.order) > 0 {
		line := charts.NewLine()
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		line.SetXAxis(xAxis)
		timeIndex := make(map[int64]int, len(s.candles))
		for i, c := range s.candles {
			timeIndex[c.Time] = i
		}
		for i, id := range s.order {
			color := overlayPalette[i%len(overlayPalette)]
			line.AddSeries(id, s.toLineData(timeIndex, s.series[id]),
				charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
		}
		kline.Overlap(line)
	}

	page.AddCharts(kline)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG 经 headless 浏览器把 HTML 截为 PNG。
func (s *Surface) RenderPNG(ctx context.Context) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	html, err := s.RenderHTML()
	if err != nil {
		return nil, err
	}
	return renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx+120)
}

// zoomPercents 把逻辑窗换算为 dataZoom 的百分比窗口。
func (s *Surface) zoomPercents() (float32, float32) {
	n := float64(len(s.candles))
	if !s.hasVisible || n <= 1 {
		return 0, 100
	}
	from := clampPct(s.visible.From / (n - 1) * 100)
	to := clampPct(s.visible.To / (n - 1) * 100)
	if to <= from {
		return 0, 100
	}
	return float32(from), float32(to)
}

func clampPct(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func (s *Surface) xAxisLabels() []string {
	x := make([]string, len(s.candles))
	for i, c := range s.candles {
		if s.resolution.Intraday() {
			x[i] = time.Unix(c.Time, 0).UTC().Format("01-02 15:04")
		} else {
			x[i] = market.FormatDate(c.Time)
		}
	}
	return x
}

func (s *Surface) toLineData(timeIndex map[int64]int, points []chartsync.SeriesPoint) []opts.LineData {
	line := make([]opts.LineData, len(s.candles))
	for i := range line {
		line[i] = opts.LineData{Value: nil}
	}
	for _, p := range points {
		if idx, ok := timeIndex[p.Time]; ok {
			line[idx] = opts.LineData{Value: round4(p.Value)}
		}
	}
	return line
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 启动一次性探测，确认 headless 浏览器可用。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
