// Package chartsync 让多块独立渲染的图表面（不同周期、指标副面板）
// 在可见时间窗与十字光标位置上保持一致，并保证传播不会形成事件回环。
package chartsync

import "sort"

// LogicalRange 以 K 线索引（逻辑坐标）表达的可见窗口，非日历时间。
type LogicalRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// SeriesPoint 写入图表面的一个数据点。
type SeriesPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Surface 是独立拥有的渲染表面句柄。订阅方法返回解除订阅函数，
// 结构变更时引擎会先解除全部旧订阅再重建。
type Surface interface {
	SetSeriesData(seriesID string, points []SeriesPoint)
	RemoveSeries(seriesID string)
	VisibleLogicalRange() (LogicalRange, bool)
	SetVisibleLogicalRange(r LogicalRange)
	OnVisibleLogicalRangeChange(fn func(LogicalRange)) (unsubscribe func())
	SetCrosshair(time int64)
	ClearCrosshair()
	OnPointerMove(fn func(time int64, ok bool)) (unsubscribe func())
}

// nearestTime 在升序去重的时间序列里找第一个不小于 target 的时间；
// 超出末尾时收敛到最后一个元素。空序列返回 false。
func nearestTime(times []int64, target int64) (int64, bool) {
	if len(times) == 0 {
		return 0, false
	}
	idx := sort.Search(len(times), func(i int) bool { return times[i] >= target })
	if idx == len(times) {
		return times[len(times)-1], true
	}
	return times[idx], true
}
