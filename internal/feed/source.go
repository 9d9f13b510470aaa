package feed

import (
	"context"

	"chartcore/internal/market"
)

// Source 是批量行情抓取协作方。一次调用覆盖一个 symbol 的多个周期；
// 无法服务的周期以缺失键或空数组表示（部分失败不返回 error），
// error 只用于整体失败（如网络不可达）。
type Source interface {
	FetchBatch(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, error)
}

// SourceFunc 便于用函数实现 Source（测试注入用）。
type SourceFunc func(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, error)

func (f SourceFunc) FetchBatch(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, error) {
	return f(ctx, symbol, resolutions, limit)
}
