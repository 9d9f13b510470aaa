// Package binance 基于 go-binance SDK 实现 feed.Source 的批量抓取协作方。
package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"chartcore/internal/feed"
	"chartcore/internal/logger"
	"chartcore/internal/market"
)

const maxHistoryLimit = 1500

// Source 把一次 FetchBatch 在内部展开为逐周期的并发请求；
// 单周期失败表现为结果缺键，全部失败才算整体失败。
type Source struct {
	cfg        Config
	client     *futures.Client
	httpClient *http.Client
	nowFn      func() time.Time
}

var _ feed.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client, httpClient: httpClient, nowFn: time.Now}, nil
}

// FetchBatch 为一个 symbol 并发抓取多个周期。返回 error 仅当
// 所有周期都失败（整体失败）；部分失败以缺键表达。
func (s *Source) FetchBatch(ctx context.Context, symbol string, resolutions []market.Resolution, limit int) (map[market.Resolution]market.Candles, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		mu       sync.Mutex
		out      = make(map[market.Resolution]market.Candles, len(resolutions))
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, res := range resolutions {
		res := res
		g.Go(func() error {
			candles, err := s.fetchOne(gctx, symbol, res, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("binance: %s@%s 抓取失败: %v", symbol, res, err)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			if len(candles) > 0 {
				out[res] = candles
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (s *Source) fetchOne(ctx context.Context, symbol string, res market.Resolution, limit int) (market.Candles, error) {
	kls, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(res)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		// SDK 路径失败后退回裸 REST 再试一次
		logger.Debugf("binance: SDK 抓取 %s@%s 失败，改走裸 REST: %v", symbol, res, err)
		return s.fetchRaw(ctx, symbol, res, limit)
	}
	out := make(market.Candles, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			Time:   kl.OpenTime / 1000,
			Open:   parseDecimal(kl.Open),
			High:   parseDecimal(kl.High),
			Low:    parseDecimal(kl.Low),
			Close:  parseDecimal(kl.Close),
			Volume: parseDecimal(kl.Volume),
		})
	}
	return s.dropUnclosed(out, res), nil
}

// fetchRaw 直接请求 /fapi/v1/klines 并用 gjson 解析
// [[openTime,open,high,low,close,volume,closeTime,...], ...]。
func (s *Source) fetchRaw(ctx context.Context, symbol string, res market.Resolution, limit int) (market.Candles, error) {
	u := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		strings.TrimRight(s.cfg.RESTBaseURL, "/"), symbol, res, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines %s@%s: http %d", symbol, res, resp.StatusCode)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("klines %s@%s: unexpected payload", symbol, res)
	}
	out := make(market.Candles, 0, limit)
	for _, row := range parsed.Array() {
		cols := row.Array()
		if len(cols) < 6 {
			continue
		}
		out = append(out, market.Candle{
			Time:   cols[0].Int() / 1000,
			Open:   parseDecimal(cols[1].String()),
			High:   parseDecimal(cols[2].String()),
			Low:    parseDecimal(cols[3].String()),
			Close:  parseDecimal(cols[4].String()),
			Volume: parseDecimal(cols[5].String()),
		})
	}
	return s.dropUnclosed(out, res), nil
}

// dropUnclosed 丢掉尚未收盘的最后一根，避免半根 K 线混进缓存。
func (s *Source) dropUnclosed(candles market.Candles, res market.Resolution) market.Candles {
	if len(candles) == 0 || !res.Valid() {
		return candles
	}
	last := candles[len(candles)-1]
	closeAt := last.Time + int64(res.Duration().Seconds())
	if s.nowFn().Unix() < closeAt {
		return candles[:len(candles)-1]
	}
	return candles
}

// parseDecimal 交易所以字符串返回价格，经 decimal 解析避免精度噪声。
func parseDecimal(v string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
