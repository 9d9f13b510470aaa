package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chartcore/internal/logger"
	"chartcore/internal/market"
)

// State 是单个 (symbol, resolution) 对的加载状态机：
// Empty → Loading → {Valid | Errored}；Valid → Stale 只由 TTL 过期触发，
// 在下一次查询时惰性判定；Errored 在下一次 load 时按 Empty 重试。
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateValid   State = "valid"
	StateStale   State = "stale"
	StateErrored State = "errored"
)

// BatchResult 一次网络往返合并进来的结果：按周期区分数据与类型化错误。
type BatchResult struct {
	Data map[market.Resolution]market.Candles
	Errs map[market.Resolution]error
}

// Loader 负责把缓存命中与批量抓取编排为增量交付：
// 缓存数据同步返回，网络结果经 channel 合并。
type Loader struct {
	cache  *Cache
	source Source
	group  singleflight.Group

	mu     sync.Mutex
	states map[string]State

	// persist 在抓取成功后把数据旁路写入快照存储（可为 nil）。
	persist func(symbol string, res market.Resolution, candles market.Candles)

	nowFn func() time.Time
}

// NewLoader 构造编排器。cache 与 source 必须非空。
func NewLoader(cache *Cache, source Source) *Loader {
	return &Loader{
		cache:  cache,
		source: source,
		states: make(map[string]State),
		nowFn:  time.Now,
	}
}

// SetPersist 注册抓取成功后的旁路持久化回调（快照存储预热用）。
func (l *Loader) SetPersist(fn func(symbol string, res market.Resolution, candles market.Candles)) {
	l.mu.Lock()
	l.persist = fn
	l.mu.Unlock()
}

// Prime 用持久化快照预填缓存（进程启动时调用），fetchedAt 按快照时间计。
func (l *Loader) Prime(symbol string, res market.Resolution, candles market.Candles, fetchedAt time.Time) {
	if len(candles) == 0 {
		return
	}
	l.cache.StoreIfNewer(symbol, res, candles, fetchedAt)
	l.setState(symbol, res, StateValid)
}

// Load 解析一个 symbol 在多个周期上的 K 线。
// 返回值：cached 为可立即使用的缓存命中；pending 在网络往返结束后
// 投递一条 BatchResult 并关闭（无需抓取时投递空结果并立即关闭）。
// 契约错误（空 symbol、非法周期）直接返回 error。
func (l *Loader) Load(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, <-chan BatchResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, nil, fmt.Errorf("%w: symbol 不能为空", ErrContractViolation)
	}
	if len(resolutions) == 0 {
		return nil, nil, fmt.Errorf("%w: 至少需要一个周期", ErrContractViolation)
	}
	for _, res := range resolutions {
		if !res.Valid() {
			return nil, nil, fmt.Errorf("%w: 非法周期 %q", ErrContractViolation, res)
		}
	}
	if limit <= 0 {
		limit = 500
	}

	// 缓存读取先于抓取发起（同一次 load 内的顺序保证）
	cached := make(map[market.Resolution]market.Candles)
	var missing []market.Resolution
	for _, res := range resolutions {
		if data, ok := l.cache.Lookup(symbol, res); ok {
			cached[res] = data
			l.setState(symbol, res, StateValid)
			continue
		}
		missing = append(missing, res)
		l.setState(symbol, res, StateLoading)
	}

	pending := make(chan BatchResult, 1)
	if len(missing) == 0 {
		pending <- BatchResult{}
		close(pending)
		return cached, pending, nil
	}

	requestedAt := l.nowFn()
	key := flightKey(symbol, missing, limit)
	go func() {
		defer close(pending)
		v, err, shared := l.group.Do(key, func() (any, error) {
			return l.fetchMissing(ctx, symbol, missing, limit, requestedAt), nil
		})
		if err != nil {
			// fetchMissing 自身不返回 error，这里只会是 singleflight 内部问题
			pending <- BatchResult{}
			return
		}
		if shared {
			logger.Debugf("feed: %s 批量抓取与并发请求合并 (%s)", symbol, key)
		}
		pending <- v.(BatchResult)
	}()
	return cached, pending, nil
}

// fetchMissing 发起恰好一次批量抓取，并按周期拆分结果与错误。
func (l *Loader) fetchMissing(ctx context.Context, symbol string, missing []market.Resolution, limit int, requestedAt time.Time) BatchResult {
	out := BatchResult{
		Data: make(map[market.Resolution]market.Candles),
		Errs: make(map[market.Resolution]error),
	}
	batch, err := l.source.FetchBatch(ctx, symbol, missing, limit)
	if err != nil {
		// 整体失败：本批全部周期标记同一类错误，已缓存的周期不受影响
		logger.Warnf("feed: %s 批量抓取失败: %v", symbol, err)
		for _, res := range missing {
			out.Errs[res] = &FetchError{Symbol: symbol, Resolution: res, Err: err}
			l.setState(symbol, res, StateErrored)
		}
		return out
	}
	l.mu.Lock()
	persist := l.persist
	l.mu.Unlock()
	for _, res := range missing {
		candles := batch[res]
		if len(candles) == 0 {
			out.Errs[res] = &NoDataError{Symbol: symbol, Resolution: res}
			l.setState(symbol, res, StateErrored)
			continue
		}
		if l.cache.StoreIfNewer(symbol, res, candles, requestedAt) {
			if persist != nil {
				persist(symbol, res, candles)
			}
		}
		// 即使写入被更新的抓取超越，本次结果对调用方依旧可见
		out.Data[res] = candles
		l.setState(symbol, res, StateValid)
	}
	return out
}

// Refresh 手动刷新：跳过缓存读取但仍写穿缓存，只清请求的 (symbol, resolution)。
func (l *Loader) Refresh(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (<-chan BatchResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol 不能为空", ErrContractViolation)
	}
	l.cache.Clear(symbol, resolutions...)
	_, pending, err := l.Load(ctx, symbol, resolutions, limit)
	return pending, err
}

// Status 返回状态机当前值；Valid 条目按 TTL 惰性降级为 Stale。
func (l *Loader) Status(symbol string, res market.Resolution) State {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	l.mu.Lock()
	state, ok := l.states[cacheKey(symbol, res)]
	l.mu.Unlock()
	if !ok {
		return StateEmpty
	}
	if state == StateValid {
		if _, fresh := l.cache.Lookup(symbol, res); !fresh {
			return StateStale
		}
	}
	return state
}

func (l *Loader) setState(symbol string, res market.Resolution, s State) {
	l.mu.Lock()
	l.states[cacheKey(symbol, res)] = s
	l.mu.Unlock()
}

func flightKey(symbol string, resolutions []market.Resolution, limit int) string {
	parts := make([]string, len(resolutions))
	for i, r := range resolutions {
		parts[i] = string(r)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s|%s|%d", symbol, strings.Join(parts, ","), limit)
}
