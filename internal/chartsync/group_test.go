package chartsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSurface 模拟渲染表面：记录写入并在被写时像真实图表一样
// 回放自己的事件（echo），用于验证传播保护。
type fakeSurface struct {
	visible    LogicalRange
	hasVisible bool

	crosshair    *int64
	clearedCount int
	setRangeLog  []LogicalRange

	nextCbID   int
	rangeCbs   map[int]func(LogicalRange)
	pointerCbs map[int]func(int64, bool)

	// echo 为真时，SetVisibleLogicalRange 会同步触发自身的
	// range-change 事件，相当于图表库的回调行为
	echo bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		rangeCbs:   make(map[int]func(LogicalRange)),
		pointerCbs: make(map[int]func(int64, bool)),
	}
}

func (s *fakeSurface) SetSeriesData(string, []SeriesPoint) {}
func (s *fakeSurface) RemoveSeries(string)                 {}

func (s *fakeSurface) VisibleLogicalRange() (LogicalRange, bool) {
	return s.visible, s.hasVisible
}

func (s *fakeSurface) SetVisibleLogicalRange(r LogicalRange) {
	s.visible = r
	s.hasVisible = true
	s.setRangeLog = append(s.setRangeLog, r)
	if s.echo {
		s.emitRange(r)
	}
}

func (s *fakeSurface) OnVisibleLogicalRangeChange(fn func(LogicalRange)) func() {
	id := s.nextCbID
	s.nextCbID++
	s.rangeCbs[id] = fn
	return func() { delete(s.rangeCbs, id) }
}

func (s *fakeSurface) SetCrosshair(t int64) { s.crosshair = &t }
func (s *fakeSurface) ClearCrosshair() {
	s.crosshair = nil
	s.clearedCount++
}

func (s *fakeSurface) OnPointerMove(fn func(int64, bool)) func() {
	id := s.nextCbID
	s.nextCbID++
	s.pointerCbs[id] = fn
	return func() { delete(s.pointerCbs, id) }
}

func (s *fakeSurface) emitRange(r LogicalRange) {
	for _, fn := range s.rangeCbs {
		fn(r)
	}
}

func (s *fakeSurface) emitPointer(t int64, ok bool) {
	for _, fn := range s.pointerCbs {
		fn(t, ok)
	}
}

func times(vals ...int64) []int64 { return vals }

func TestVisibleRangePropagation(t *testing.T) {
	primary := newFakeSurface()
	auxA := newFakeSurface()
	auxB := newFakeSurface()
	g := NewGroup()
	g.SetSurfaces(Pane{Surface: primary}, Pane{Surface: auxA}, Pane{Surface: auxB})

	r := LogicalRange{From: 12.5, To: 87.5}
	auxA.emitRange(r)

	// 发起方不被回写，其余表面拿到同一逻辑窗口
	assert.Empty(t, auxA.setRangeLog)
	require.Len(t, primary.setRangeLog, 1)
	assert.Equal(t, r, primary.setRangeLog[0])
	require.Len(t, auxB.setRangeLog, 1)
	assert.Equal(t, r, auxB.setRangeLog[0])
}

func TestCrosshairNearestTimeMapping(t *testing.T) {
	primary := newFakeSurface()
	aux := newFakeSurface()
	g := NewGroup()
	g.SetSurfaces(
		Pane{Surface: primary, Times: times(100, 200, 300, 400)},
		Pane{Surface: aux, Times: times(150, 350, 550)},
	)

	t.Run("snaps to first time >= target", func(t *testing.T) {
		primary.emitPointer(200, true)
		require.NotNil(t, aux.crosshair)
		assert.EqualValues(t, 350, *aux.crosshair)
	})
	t.Run("exact hit stays put", func(t *testing.T) {
		primary.emitPointer(150, true)
		require.NotNil(t, aux.crosshair)
		assert.EqualValues(t, 150, *aux.crosshair)
	})
	t.Run("overrun clamps to last", func(t *testing.T) {
		primary.emitPointer(9_999, true)
		require.NotNil(t, aux.crosshair)
		assert.EqualValues(t, 550, *aux.crosshair)
	})
	t.Run("pointer leave clears every sibling", func(t *testing.T) {
		aux.emitPointer(0, false)
		assert.Nil(t, primary.crosshair)
		assert.Greater(t, primary.clearedCount, 0)
	})
	t.Run("empty target series clears instead of failing", func(t *testing.T) {
		bare := newFakeSurface()
		g.SetSurfaces(Pane{Surface: primary, Times: times(100, 200)}, Pane{Surface: bare})
		primary.emitPointer(100, true)
		assert.Nil(t, bare.crosshair)
		assert.Greater(t, bare.clearedCount, 0)
	})
}

func TestPropagationGuardStopsPingPong(t *testing.T) {
	// 每块表面被写入时都会同步回放自己的事件；没有保护会无限乒乓
	primary := newFakeSurface()
	primary.echo = true
	aux := newFakeSurface()
	aux.echo = true
	g := NewGroup()
	g.SetSurfaces(Pane{Surface: primary}, Pane{Surface: aux})

	assert.Equal(t, StateIdle, g.State())
	primary.emitRange(LogicalRange{From: 0, To: 50})
	assert.Equal(t, StateIdle, g.State())

	// 一次完整传播只写每块兄弟表面一次
	assert.Len(t, aux.setRangeLog, 1)
	assert.Empty(t, primary.setRangeLog)
}

func TestSetSurfacesReseedsFromPrimary(t *testing.T) {
	primary := newFakeSurface()
	primary.visible = LogicalRange{From: 5, To: 60}
	primary.hasVisible = true
	aux := newFakeSurface()

	g := NewGroup()
	g.SetSurfaces(Pane{Surface: primary}, Pane{Surface: aux})

	require.Len(t, aux.setRangeLog, 1)
	assert.Equal(t, LogicalRange{From: 5, To: 60}, aux.setRangeLog[0])
	// 播种本身不得触发传播循环
	assert.Equal(t, StateIdle, g.State())
}

func TestStructuralChangeDropsOldSubscriptions(t *testing.T) {
	primary := newFakeSurface()
	oldAux := newFakeSurface()
	g := NewGroup()
	g.SetSurfaces(Pane{Surface: primary}, Pane{Surface: oldAux})

	newAux := newFakeSurface()
	g.SetSurfaces(Pane{Surface: primary}, Pane{Surface: newAux})

	// 被替换的表面不再参与同步
	oldAux.emitRange(LogicalRange{From: 1, To: 2})
	assert.Empty(t, primary.setRangeLog)
	assert.Empty(t, newAux.setRangeLog)

	primary.emitRange(LogicalRange{From: 3, To: 4})
	assert.Len(t, newAux.setRangeLog, 1)
	assert.Empty(t, oldAux.setRangeLog)
}

func TestUpdateTimesAfterRefresh(t *testing.T) {
	primary := newFakeSurface()
	aux := newFakeSurface()
	g := NewGroup()
	g.SetSurfaces(
		Pane{Surface: primary, Times: times(100, 200)},
		Pane{Surface: aux, Times: times(100, 200)},
	)

	g.UpdateTimes(aux, times(1_000, 2_000))
	primary.emitPointer(1_500, true)
	require.NotNil(t, aux.crosshair)
	assert.EqualValues(t, 2_000, *aux.crosshair)
}

func TestGuardScopedPerGroup(t *testing.T) {
	// 同页两个独立面板各持一组，互不串扰
	g1Primary, g1Aux := newFakeSurface(), newFakeSurface()
	g2Primary, g2Aux := newFakeSurface(), newFakeSurface()

	g1 := NewGroup()
	g1.SetSurfaces(Pane{Surface: g1Primary}, Pane{Surface: g1Aux})
	g2 := NewGroup()
	g2.SetSurfaces(Pane{Surface: g2Primary}, Pane{Surface: g2Aux})
	assert.NotEqual(t, g1.ID(), g2.ID())

	g1Primary.emitRange(LogicalRange{From: 0, To: 10})
	assert.Len(t, g1Aux.setRangeLog, 1)
	assert.Empty(t, g2Aux.setRangeLog)
	assert.Equal(t, StateIdle, g2.State())
}

func TestNearestTime(t *testing.T) {
	ts := times(10, 20, 30)
	v, ok := nearestTime(ts, 15)
	require.True(t, ok)
	assert.EqualValues(t, 20, v)

	v, ok = nearestTime(ts, 30)
	require.True(t, ok)
	assert.EqualValues(t, 30, v)

	v, ok = nearestTime(ts, 99)
	require.True(t, ok)
	assert.EqualValues(t, 30, v)

	v, ok = nearestTime(ts, -5)
	require.True(t, ok)
	assert.EqualValues(t, 10, v)

	_, ok = nearestTime(nil, 10)
	assert.False(t, ok)
}
