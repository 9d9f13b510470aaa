package app

import (
	"fmt"
	"time"

	"chartcore/internal/config"
	"chartcore/internal/feed"
	"chartcore/internal/feed/binance"
	"chartcore/internal/logger"
	"chartcore/internal/scheduler"
	"chartcore/internal/store/gormstore"
	"chartcore/internal/store/snapstore"
	charthttp "chartcore/internal/transport/http"
)

// AppBuilder 汇总可替换的构建步骤，测试时可注入内存实现。
type AppBuilder struct {
	cfg *config.Config

	sourceFn  func(*config.Config) (feed.Source, error)
	watcherFn func(*config.Config) (*config.Watcher, error)

	snapStoreOverride *snapstore.Store
	layoutsOverride   *gormstore.Store
}

type AppBuilderOption func(*AppBuilder)

// WithSource 替换行情来源（测试注入）。
func WithSource(src feed.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config) (feed.Source, error) { return src, nil }
	}
}

// WithStores 替换持久化层（测试注入）。
func WithStores(snapshots *snapstore.Store, layouts *gormstore.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.snapStoreOverride = snapshots
		b.layoutsOverride = layouts
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		sourceFn:  buildBinanceSource,
		watcherFn: func(*config.Config) (*config.Watcher, error) { return nil, nil },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WatchConfigFile 启用配置热更新（TTL 覆盖表）。
func (b *AppBuilder) WatchConfigFile(path string) *AppBuilder {
	b.watcherFn = func(*config.Config) (*config.Watcher, error) {
		return config.NewWatcher(path)
	}
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	source, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建行情来源失败: %w", err)
	}

	cache := feed.NewCache(cfg.Feed.ParsedTTLOverrides())
	loader := feed.NewLoader(cache, source)

	a := &App{cfg: cfg, cache: cache, loader: loader}

	a.snapshots = b.snapStoreOverride
	if a.snapshots == nil {
		a.snapshots, err = snapstore.Open(cfg.Store.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("打开快照存储失败: %w", err)
		}
	}
	loader.SetPersist(a.persistSnapshot)

	a.layouts = b.layoutsOverride
	if a.layouts == nil {
		a.layouts, err = gormstore.New(cfg.Store.LayoutPath)
		if err != nil {
			return nil, fmt.Errorf("打开布局存储失败: %w", err)
		}
	}

	a.http, err = charthttp.NewServer(charthttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Router: charthttp.NewRouter(loader, a.layouts, cfg.Feed.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("构建 HTTP 服务失败: %w", err)
	}

	if cfg.Feed.AutoRefreshSeconds > 0 {
		a.refresher = scheduler.NewRepeater(time.Duration(cfg.Feed.AutoRefreshSeconds) * time.Second)
	}

	a.watcher, err = b.watcherFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("启动配置监听失败: %w", err)
	}

	logger.Infof("✓ 已配置 %d 个交易对: %v", len(cfg.Feed.Symbols), cfg.Feed.Symbols)
	logger.Infof("✓ 订阅周期: %v", cfg.Feed.Resolutions)
	return a, nil
}

func buildBinanceSource(cfg *config.Config) (feed.Source, error) {
	bcfg := binance.Config{
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: cfg.Market.Timeout(),
	}
	if cfg.Market.Proxy.Enabled {
		bcfg.ProxyURL = cfg.Market.Proxy.RESTURL
	}
	return binance.New(bcfg)
}
