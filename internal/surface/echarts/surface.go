// Package echarts 提供 chartsync.Surface 的进程内实现：
// 记录序列、可见窗与光标，按需渲染为 HTML/PNG 供“导出图表”使用。
// 浏览器端真正的交互表面由前端持有，这里等价地实现同一契约。
package echarts

import (
	"sort"

	"chartcore/internal/chartsync"
	"chartcore/internal/market"
)

// Surface 进程内图表面。事件驱动单线程模型，与同步引擎同一事件循环使用。
type Surface struct {
	resolution market.Resolution
	title      string

	candles market.Candles
	series  map[string][]chartsync.SeriesPoint
	order   []string

	visible    chartsync.LogicalRange
	hasVisible bool
	crosshair  *int64

	nextCbID   int
	rangeCbs   map[int]func(chartsync.LogicalRange)
	pointerCbs map[int]func(int64, bool)
}

var _ chartsync.Surface = (*Surface)(nil)

func NewSurface(title string, res market.Resolution) *Surface {
	return &Surface{
		resolution: res,
		title:      title,
		series:     make(map[string][]chartsync.SeriesPoint),
		rangeCbs:   make(map[int]func(chartsync.LogicalRange)),
		pointerCbs: make(map[int]func(int64, bool)),
	}
}

// SetCandles 写入基础 K 线并把可见窗重置为全量。
func (s *Surface) SetCandles(candles market.Candles) {
	s.candles = candles
	if len(candles) > 0 && !s.hasVisible {
		s.visible = chartsync.LogicalRange{From: 0, To: float64(len(candles) - 1)}
		s.hasVisible = true
	}
}

func (s *Surface) Candles() market.Candles { return s.candles }

func (s *Surface) SetSeriesData(seriesID string, points []chartsync.SeriesPoint) {
	if _, ok := s.series[seriesID]; !ok {
		s.order = append(s.order, seriesID)
	}
	s.series[seriesID] = points
}

func (s *Surface) RemoveSeries(seriesID string) {
	if _, ok := s.series[seriesID]; !ok {
		return
	}
	delete(s.series, seriesID)
	for i, id := range s.order {
		if id == seriesID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Surface) VisibleLogicalRange() (chartsync.LogicalRange, bool) {
	return s.visible, s.hasVisible
}

// SetVisibleLogicalRange 写入可见窗并像交互图表一样触发自身变更事件；
// 同步引擎依赖传播保护吞掉由此产生的回声。
func (s *Surface) SetVisibleLogicalRange(r chartsync.LogicalRange) {
	s.visible = r
	s.hasVisible = true
	for _, fn := range s.callbacksRange() {
		fn(r)
	}
}

func (s *Surface) OnVisibleLogicalRangeChange(fn func(chartsync.LogicalRange)) func() {
	id := s.nextCbID
	s.nextCbID++
	s.rangeCbs[id] = fn
	return func() { delete(s.rangeCbs, id) }
}

func (s *Surface) SetCrosshair(t int64) { s.crosshair = &t }

func (s *Surface) ClearCrosshair() { s.crosshair = nil }

func (s *Surface) Crosshair() (int64, bool) {
	if s.crosshair == nil {
		return 0, false
	}
	return *s.crosshair, true
}

func (s *Surface) OnPointerMove(fn func(int64, bool)) func() {
	id := s.nextCbID
	s.nextCbID++
	s.pointerCbs[id] = fn
	return func() { delete(s.pointerCbs, id) }
}

// EmitPointerMove 模拟用户指针事件（导出预览与测试用）。
func (s *Surface) EmitPointerMove(t int64, ok bool) {
	for _, fn := range s.callbacksPointer() {
		fn(t, ok)
	}
}

// EmitRangeChange 模拟用户拖动/缩放事件。
func (s *Surface) EmitRangeChange(r chartsync.LogicalRange) {
	s.visible = r
	s.hasVisible = true
	for _, fn := range s.callbacksRange() {
		fn(r)
	}
}

// 回调在迭代期间可能解除自身订阅，先拷贝再调用。
func (s *Surface) callbacksRange() []func(chartsync.LogicalRange) {
	ids := make([]int, 0, len(s.rangeCbs))
	for id := range s.rangeCbs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(chartsync.LogicalRange), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.rangeCbs[id])
	}
	return out
}

func (s *Surface) callbacksPointer() []func(int64, bool) {
	ids := make([]int, 0, len(s.pointerCbs))
	for id := range s.pointerCbs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(int64, bool), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.pointerCbs[id])
	}
	return out
}
