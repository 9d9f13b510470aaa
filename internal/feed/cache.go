package feed

import (
	"strings"
	"sync"
	"time"

	"chartcore/internal/market"
)

// Cache 按 (symbol, resolution) 缓存 K 线。显式构造注入，禁止包级全局：
// 生命周期归属调用方，测试结束 Reset 即可，不会跨测试串台。
// 过期条目在下一次查找时惰性剔除，从不主动扫描。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttls    map[market.Resolution]time.Duration
	nowFn   func() time.Time
}

type cacheEntry struct {
	candles market.Candles
	// fetchedAt 为写入时间，决定新鲜度；requestedAt 为发起抓取的时间戳，
	// 用于阻止被超越的旧抓取覆盖更新的数据。
	fetchedAt   time.Time
	requestedAt time.Time
}

// NewCache 构造缓存。ttlOverrides 可按周期覆盖默认新鲜度窗口，传 nil 使用默认。
func NewCache(ttlOverrides map[market.Resolution]time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttls:    ttlOverrides,
		nowFn:   time.Now,
	}
}

func cacheKey(symbol string, res market.Resolution) string {
	return strings.ToUpper(symbol) + "@" + string(res)
}

func (c *Cache) ttl(res market.Resolution) time.Duration {
	if c.ttls != nil {
		if ttl, ok := c.ttls[res]; ok && ttl > 0 {
			return ttl
		}
	}
	return res.TTL()
}

// SetTTLOverrides 替换周期级 TTL 覆盖表（配置热加载时调用）。
func (c *Cache) SetTTLOverrides(overrides map[market.Resolution]time.Duration) {
	c.mu.Lock()
	c.ttls = overrides
	c.mu.Unlock()
}

// Lookup 返回缓存内仍然新鲜的数据。过期条目当场剔除并返回未命中。
func (c *Cache) Lookup(symbol string, res market.Resolution) (market.Candles, bool) {
	key := cacheKey(symbol, res)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFn().Sub(entry.fetchedAt) > c.ttl(res) {
		delete(c.entries, key)
		return nil, false
	}
	out := make(market.Candles, len(entry.candles))
	copy(out, entry.candles)
	return out, true
}

// FetchedAt 返回条目的写入时间（用于 UI 的新鲜度标记），不触发剔除。
func (c *Cache) FetchedAt(symbol string, res market.Resolution) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(symbol, res)]
	if !ok {
		return time.Time{}, false
	}
	return entry.fetchedAt, true
}

// StoreIfNewer 写入抓取结果。若既有条目来自更晚发起的抓取则放弃本次写入，
// 保证被超越的在途请求不会覆盖更新的数据。
func (c *Cache) StoreIfNewer(symbol string, res market.Resolution, candles market.Candles, requestedAt time.Time) bool {
	if len(candles) == 0 {
		return false
	}
	key := cacheKey(symbol, res)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.requestedAt.After(requestedAt) {
		return false
	}
	stored := make(market.Candles, len(candles))
	copy(stored, candles)
	c.entries[key] = cacheEntry{
		candles:     stored,
		fetchedAt:   c.nowFn(),
		requestedAt: requestedAt,
	}
	return true
}

// Clear 删除指定 (symbol, resolution) 条目；手动刷新时只清请求的周期。
func (c *Cache) Clear(symbol string, resolutions ...market.Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, res := range resolutions {
		delete(c.entries, cacheKey(symbol, res))
	}
}

// Reset 清空全部条目（登出/测试收尾）。
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len 返回当前条目数（含尚未惰性剔除的过期条目）。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
