package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartcore/internal/market"
)

func testCandles(n int, start int64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		out[i] = market.Candle{
			Time: start + int64(i)*300, Open: 10, High: 11, Low: 9,
			Close: 10 + float64(i)*0.1, Volume: 100,
		}
	}
	return out
}

type countingSource struct {
	mu    sync.Mutex
	calls int32
	batch map[market.Resolution]market.Candles
	err   error
	// block 非 nil 时抓取会阻塞直到其被关闭
	block chan struct{}
}

func (s *countingSource) FetchBatch(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[market.Resolution]market.Candles)
	for _, res := range resolutions {
		if data, ok := s.batch[res]; ok {
			out[res] = data
		}
	}
	return out, nil
}

func (s *countingSource) callCount() int32 { return atomic.LoadInt32(&s.calls) }

func waitBatch(t *testing.T, ch <-chan BatchResult) BatchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("batch result not delivered")
		return BatchResult{}
	}
}

func TestLoadServesCacheWithinTTL(t *testing.T) {
	src := &countingSource{batch: map[market.Resolution]market.Candles{
		market.Res5m: testCandles(10, 1_700_000_000),
	}}
	loader := NewLoader(NewCache(nil), src)

	_, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	first := waitBatch(t, pending)
	require.Empty(t, first.Errs)
	require.Len(t, first.Data[market.Res5m], 10)
	assert.EqualValues(t, 1, src.callCount())

	// TTL 内的第二次 load 不应产生任何网络调用
	cached, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	waitBatch(t, pending)
	assert.Len(t, cached[market.Res5m], 10)
	assert.EqualValues(t, 1, src.callCount())
	assert.Equal(t, StateValid, loader.Status("BTCUSDT", market.Res5m))
}

func TestPartialFailureIsolatedPerResolution(t *testing.T) {
	// 5m 有数据，1h 缺失 → 只有 1h 得到类型化错误
	src := &countingSource{batch: map[market.Resolution]market.Candles{
		market.Res5m: testCandles(10, 1_700_000_000),
	}}
	loader := NewLoader(NewCache(nil), src)

	_, pending, err := loader.Load(context.Background(), "ETHUSDT", []market.Resolution{market.Res5m, market.Res1h}, 100)
	require.NoError(t, err)
	result := waitBatch(t, pending)

	require.Len(t, result.Data[market.Res5m], 10)
	require.Contains(t, result.Errs, market.Res1h)
	assert.True(t, IsNoData(result.Errs[market.Res1h]))
	assert.NotContains(t, result.Errs, market.Res5m)
	assert.Equal(t, StateValid, loader.Status("ETHUSDT", market.Res5m))
	assert.Equal(t, StateErrored, loader.Status("ETHUSDT", market.Res1h))
}

func TestTotalFailureKeepsCachedSiblings(t *testing.T) {
	src := &countingSource{batch: map[market.Resolution]market.Candles{
		market.Res5m: testCandles(10, 1_700_000_000),
	}}
	cache := NewCache(nil)
	loader := NewLoader(cache, src)

	// 先把 5m 灌进缓存
	_, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	waitBatch(t, pending)

	// 之后网络整体失败，请求 ["5m","1h"]
	src.mu.Lock()
	src.err = errors.New("connection refused")
	src.mu.Unlock()

	cached, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m, market.Res1h}, 100)
	require.NoError(t, err)
	result := waitBatch(t, pending)

	// 5m 从缓存原样返回，错误只落在 1h 上
	assert.Len(t, cached[market.Res5m], 10)
	assert.NotContains(t, result.Errs, market.Res5m)
	require.Contains(t, result.Errs, market.Res1h)
	assert.True(t, IsFetchError(result.Errs[market.Res1h]))
	assert.Equal(t, StateValid, loader.Status("BTCUSDT", market.Res5m))
	assert.Equal(t, StateErrored, loader.Status("BTCUSDT", market.Res1h))
}

func TestCachedDataVisibleBeforeFetchCompletes(t *testing.T) {
	block := make(chan struct{})
	src := &countingSource{
		batch: map[market.Resolution]market.Candles{
			market.Res5m: testCandles(10, 1_700_000_000),
			market.Res1h: testCandles(10, 1_700_000_000),
		},
		block: block,
	}
	loader := NewLoader(NewCache(nil), src)

	// 预热 5m
	src.block = nil
	_, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	waitBatch(t, pending)

	// 抓取被挂起时，缓存命中的 5m 仍立即可见
	src.block = block
	cached, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m, market.Res1h}, 100)
	require.NoError(t, err)
	assert.Len(t, cached[market.Res5m], 10)
	assert.Equal(t, StateLoading, loader.Status("BTCUSDT", market.Res1h))

	close(block)
	result := waitBatch(t, pending)
	assert.Len(t, result.Data[market.Res1h], 10)
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	block := make(chan struct{})
	src := &countingSource{
		batch: map[market.Resolution]market.Candles{
			market.Res5m: testCandles(10, 1_700_000_000),
		},
		block: block,
	}
	loader := NewLoader(NewCache(nil), src)

	_, p1, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	_, p2, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)

	// 等待两个请求都挂到同一个 in-flight 批次上再放行
	require.Eventually(t, func() bool { return src.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(block)
	r1 := waitBatch(t, p1)
	r2 := waitBatch(t, p2)
	assert.Len(t, r1.Data[market.Res5m], 10)
	assert.Len(t, r2.Data[market.Res5m], 10)
	assert.EqualValues(t, 1, src.callCount())
}

func TestSupersededFetchDoesNotOverwriteNewerData(t *testing.T) {
	cache := NewCache(nil)
	older := testCandles(5, 1_600_000_000)
	newer := testCandles(8, 1_700_000_000)

	t0 := time.Now()
	// 较新的抓取先落盘
	require.True(t, cache.StoreIfNewer("BTCUSDT", market.Res5m, newer, t0.Add(time.Second)))
	// 被超越的旧抓取随后完成，不允许覆盖
	assert.False(t, cache.StoreIfNewer("BTCUSDT", market.Res5m, older, t0))

	data, ok := cache.Lookup("BTCUSDT", market.Res5m)
	require.True(t, ok)
	assert.Len(t, data, 8)
	assert.Equal(t, int64(1_700_000_000), data[0].Time)
}

func TestTTLExpiryEvictsLazily(t *testing.T) {
	cache := NewCache(nil)
	now := time.Now()
	cache.nowFn = func() time.Time { return now }

	require.True(t, cache.StoreIfNewer("BTCUSDT", market.Res5m, testCandles(5, 1_700_000_000), now))
	_, ok := cache.Lookup("BTCUSDT", market.Res5m)
	assert.True(t, ok)

	// 越过 5m 的 TTL 后，条目在下一次查找时被剔除
	now = now.Add(market.Res5m.TTL() + time.Second)
	_, ok = cache.Lookup("BTCUSDT", market.Res5m)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestTTLOverridesAndMonotonicDefaults(t *testing.T) {
	t.Run("defaults rise with coarseness", func(t *testing.T) {
		order := []market.Resolution{
			market.Res1m, market.Res5m, market.Res15m, market.Res30m,
			market.Res1h, market.Res4h, market.Res1d, market.Res1w, market.Res1M,
		}
		for i := 1; i < len(order); i++ {
			assert.Greater(t, order[i].TTL(), order[i-1].TTL(),
				fmt.Sprintf("%s 的 TTL 应大于 %s", order[i], order[i-1]))
		}
	})
	t.Run("override wins", func(t *testing.T) {
		cache := NewCache(map[market.Resolution]time.Duration{market.Res5m: time.Hour})
		assert.Equal(t, time.Hour, cache.ttl(market.Res5m))
		assert.Equal(t, market.Res1h.TTL(), cache.ttl(market.Res1h))
	})
}

func TestRefreshBypassesCacheReadButWritesThrough(t *testing.T) {
	src := &countingSource{batch: map[market.Resolution]market.Candles{
		market.Res5m: testCandles(10, 1_700_000_000),
		market.Res1h: testCandles(10, 1_700_000_000),
	}}
	cache := NewCache(nil)
	loader := NewLoader(cache, src)

	_, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m, market.Res1h}, 100)
	require.NoError(t, err)
	waitBatch(t, pending)
	require.EqualValues(t, 1, src.callCount())

	// 刷新只清 5m：1h 缓存保持有效，5m 重新抓取并写回
	pending, err = loader.Refresh(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	result := waitBatch(t, pending)
	assert.Len(t, result.Data[market.Res5m], 10)
	assert.EqualValues(t, 2, src.callCount())

	// 两个周期现在都可从缓存命中
	cached, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m, market.Res1h}, 100)
	require.NoError(t, err)
	waitBatch(t, pending)
	assert.Len(t, cached, 2)
	assert.EqualValues(t, 2, src.callCount())
}

func TestLoadContractViolations(t *testing.T) {
	loader := NewLoader(NewCache(nil), &countingSource{})
	_, _, err := loader.Load(context.Background(), "", []market.Resolution{market.Res5m}, 100)
	assert.ErrorIs(t, err, ErrContractViolation)
	_, _, err = loader.Load(context.Background(), "BTCUSDT", nil, 100)
	assert.ErrorIs(t, err, ErrContractViolation)
	_, _, err = loader.Load(context.Background(), "BTCUSDT", []market.Resolution{"7q"}, 100)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestErroredRetriesLikeEmpty(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	loader := NewLoader(NewCache(nil), src)

	_, pending, err := loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	result := waitBatch(t, pending)
	require.Contains(t, result.Errs, market.Res5m)
	assert.Equal(t, StateErrored, loader.Status("BTCUSDT", market.Res5m))

	// 错误恢复后，下一次 load 正常重试
	src.mu.Lock()
	src.err = nil
	src.batch = map[market.Resolution]market.Candles{market.Res5m: testCandles(10, 1_700_000_000)}
	src.mu.Unlock()

	_, pending, err = loader.Load(context.Background(), "BTCUSDT", []market.Resolution{market.Res5m}, 100)
	require.NoError(t, err)
	result = waitBatch(t, pending)
	assert.Len(t, result.Data[market.Res5m], 10)
	assert.Equal(t, StateValid, loader.Status("BTCUSDT", market.Res5m))
}
