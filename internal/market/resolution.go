package market

import (
	"fmt"
	"strings"
	"time"
)

// Resolution 表示 K 线周期（时间分辨率）。
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res30m Resolution = "30m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1d  Resolution = "1d"
	Res1w  Resolution = "1w"
	Res1M  Resolution = "1M"
)

var resolutionDurations = map[Resolution]time.Duration{
	Res1m:  time.Minute,
	Res5m:  5 * time.Minute,
	Res15m: 15 * time.Minute,
	Res30m: 30 * time.Minute,
	Res1h:  time.Hour,
	Res4h:  4 * time.Hour,
	Res1d:  24 * time.Hour,
	Res1w:  7 * 24 * time.Hour,
	Res1M:  30 * 24 * time.Hour,
}

// 缓存新鲜度窗口：周期越细过期越快。细周期几十秒~几分钟，
// 日线及以上可以放到小时级。
var resolutionTTLs = map[Resolution]time.Duration{
	Res1m:  30 * time.Second,
	Res5m:  time.Minute,
	Res15m: 3 * time.Minute,
	Res30m: 5 * time.Minute,
	Res1h:  10 * time.Minute,
	Res4h:  30 * time.Minute,
	Res1d:  4 * time.Hour,
	Res1w:  12 * time.Hour,
	Res1M:  24 * time.Hour,
}

func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.TrimSpace(s))
	if r == "1M" {
		return Res1M, nil
	}
	r = Resolution(strings.ToLower(string(r)))
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("非法周期 %q", s)
	}
	return r, nil
}

func (r Resolution) Valid() bool {
	_, ok := resolutionDurations[r]
	return ok
}

func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

// Intraday 日内周期使用 Unix 秒表示时间，日线及以上使用日历日期字符串。
func (r Resolution) Intraday() bool {
	return r.Valid() && r.Duration() < 24*time.Hour
}

// TTL 返回该周期缓存条目的新鲜度窗口。
func (r Resolution) TTL() time.Duration {
	if ttl, ok := resolutionTTLs[r]; ok {
		return ttl
	}
	return time.Minute
}

// EncodeTime 按表示约定编码时间：日内返回 Unix 秒，日线及以上返回
// "YYYY-MM-DD"。同一序列内绝不混用两种表示。
func (r Resolution) EncodeTime(ts int64) any {
	if r.Intraday() {
		return ts
	}
	return FormatDate(ts)
}

// FormatDate 把 Unix 秒格式化为 UTC 日历日期。
func FormatDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
