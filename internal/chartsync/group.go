package chartsync

import (
	"github.com/google/uuid"

	"chartcore/internal/logger"
)

// PropagationState 是同步组的传播状态机。写入兄弟表面前进入
// Propagating，写完回到 Idle；Propagating 期间来自被写表面的
// 回调事件一律丢弃，否则会在表面之间形成无限的事件乒乓。
type PropagationState int

const (
	StateIdle PropagationState = iota
	StatePropagating
)

// Pane 是注册进同步组的一块表面及其自身序列的时间轴
// （升序、按时间去重，用于跨周期时间映射）。
type Pane struct {
	Surface Surface
	Times   []int64
}

type registeredPane struct {
	Pane
	unsubRange   func()
	unsubPointer func()
}

// Group 同步一块主表面与若干辅助表面。状态只属于本组，
// 同页上的两个独立面板各持有自己的 Group，互不泄漏。
// 事件驱动单线程模型：所有方法都必须在同一个事件循环里调用。
type Group struct {
	id    string
	state PropagationState
	panes []registeredPane

	lastRange     *LogicalRange
	lastCrosshair *int64
}

func NewGroup() *Group {
	return &Group{id: uuid.NewString()}
}

func (g *Group) ID() string { return g.id }

// State 暴露传播状态机的当前值（测试与调试用）。
func (g *Group) State() PropagationState { return g.state }

// SetSurfaces 整体替换同步组的表面集合。先拆除全部旧订阅，
// 再以主表面当前可见窗为准播种每块新表面，最后重建订阅。
// 结构变化（增删指标副面板、切换辅助周期）后的半新半旧状态由此避免。
func (g *Group) SetSurfaces(primary Pane, aux ...Pane) {
	g.Teardown()
	if primary.Surface == nil {
		return
	}
	panes := make([]registeredPane, 0, 1+len(aux))
	panes = append(panes, registeredPane{Pane: primary})
	for _, p := range aux {
		if p.Surface != nil {
			panes = append(panes, registeredPane{Pane: p})
		}
	}
	g.panes = panes

	// 播种：所有表面先对齐到主表面的当前可见窗
	if r, ok := primary.Surface.VisibleLogicalRange(); ok {
		g.state = StatePropagating
		for i := 1; i < len(g.panes); i++ {
			g.panes[i].Surface.SetVisibleLogicalRange(r)
		}
		g.state = StateIdle
		g.lastRange = &r
	}

	for i := range g.panes {
		idx := i
		g.panes[i].unsubRange = g.panes[i].Surface.OnVisibleLogicalRangeChange(func(r LogicalRange) {
			g.handleRangeChange(idx, r)
		})
		g.panes[i].unsubPointer = g.panes[i].Surface.OnPointerMove(func(t int64, ok bool) {
			g.handlePointerMove(idx, t, ok)
		})
	}
	logger.Debugf("chartsync: group %s rebuilt with %d pane(s)", g.id, len(g.panes))
}

// UpdateTimes 在数据刷新后更新某块表面的时间轴（结构未变时无需重建订阅）。
func (g *Group) UpdateTimes(s Surface, times []int64) {
	for i := range g.panes {
		if g.panes[i].Surface == s {
			g.panes[i].Times = times
			return
		}
	}
}

// Teardown 解除全部订阅并清空组状态。
func (g *Group) Teardown() {
	for _, p := range g.panes {
		if p.unsubRange != nil {
			p.unsubRange()
		}
		if p.unsubPointer != nil {
			p.unsubPointer()
		}
	}
	g.panes = nil
	g.lastRange = nil
	g.lastCrosshair = nil
	g.state = StateIdle
}

// handleRangeChange 把一块表面的用户拖动/缩放以逻辑坐标原样应用到
// 其余表面。周期不同的表面之间这是近似（逻辑索引 ≠ 相同日历跨度），
// 属于有意保留的行为。
func (g *Group) handleRangeChange(from int, r LogicalRange) {
	if g.state == StatePropagating {
		return
	}
	g.state = StatePropagating
	for i := range g.panes {
		if i == from {
			continue
		}
		g.panes[i].Surface.SetVisibleLogicalRange(r)
	}
	g.state = StateIdle
	g.lastRange = &r
}

// handlePointerMove 把日历时间翻译到每块表面自己的序列后移动十字光标；
// 指针离开表面时全组清除光标，绝不留下悬空标记。
func (g *Group) handlePointerMove(from int, t int64, ok bool) {
	if g.state == StatePropagating {
		return
	}
	g.state = StatePropagating
	for i := range g.panes {
		if i == from {
			continue
		}
		if !ok {
			g.panes[i].Surface.ClearCrosshair()
			continue
		}
		mapped, found := nearestTime(g.panes[i].Times, t)
		if !found {
			// 无可映射目标按“清除”处理，而非报错
			g.panes[i].Surface.ClearCrosshair()
			continue
		}
		g.panes[i].Surface.SetCrosshair(mapped)
	}
	g.state = StateIdle
	if ok {
		g.lastCrosshair = &t
	} else {
		g.lastCrosshair = nil
	}
}
