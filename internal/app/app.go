// Package app 负责应用级编排：配置→依赖→HTTP 服务与后台刷新。
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chartcore/internal/config"
	"chartcore/internal/feed"
	"chartcore/internal/logger"
	"chartcore/internal/market"
	"chartcore/internal/scheduler"
	"chartcore/internal/store/gormstore"
	"chartcore/internal/store/snapstore"
	charthttp "chartcore/internal/transport/http"
)

// App 持有运行期依赖。
type App struct {
	cfg       *config.Config
	cache     *feed.Cache
	loader    *feed.Loader
	snapshots *snapstore.Store
	layouts   *gormstore.Store
	http      *charthttp.Server
	refresher *scheduler.Repeater
	watcher   *config.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	return NewAppBuilder(cfg).Build()
}

// Run 启动 HTTP 服务与后台刷新，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	a.warmStart(ctx)
	a.subscribeConfig()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("✓ HTTP 服务监听 %s", a.http.Addr())
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("chart http server error: %w", err)
		}
		return nil
	})

	if a.refresher != nil {
		a.refresher.Start(ctx, a.refreshAll)
		group.Go(func() error {
			<-ctx.Done()
			a.refresher.Stop()
			return nil
		})
	}

	return group.Wait()
}

// warmStart 把上次进程留下的快照回灌进缓存，使首个请求命中缓存。
func (a *App) warmStart(ctx context.Context) {
	if a.snapshots == nil {
		return
	}
	pairs, err := a.snapshots.Pairs(ctx)
	if err != nil {
		logger.Warnf("快照枚举失败，跳过预热: %v", err)
		return
	}
	primed := 0
	for symbol, resolutions := range pairs {
		for _, res := range resolutions {
			candles, fetchedAt, ok, err := a.snapshots.Get(ctx, symbol, res)
			if err != nil || !ok || len(candles) == 0 {
				continue
			}
			a.loader.Prime(symbol, res, candles, fetchedAt)
			primed++
		}
	}
	if primed > 0 {
		logger.Infof("✓ 快照预热完成：%d 个 symbol@resolution", primed)
	}
}

// subscribeConfig 热更新只覆盖运行期可安全替换的部分（TTL 覆盖表）。
func (a *App) subscribeConfig() {
	if a.watcher == nil {
		return
	}
	a.watcher.Subscribe(func(snap config.Snapshot) {
		a.cache.SetTTLOverrides(snap.Config.Feed.ParsedTTLOverrides())
		logger.Infof("配置已生效 version=%d ttl_overrides=%d", snap.Version, len(snap.Config.Feed.TTLOverrides))
	})
}

// refreshAll 后台定时刷新配置中的所有交易对。
func (a *App) refreshAll(ctx context.Context) {
	resolutions := a.cfg.Feed.ParsedResolutions()
	for _, symbol := range a.cfg.Feed.Symbols {
		pending, err := a.loader.Refresh(ctx, symbol, resolutions, a.cfg.Feed.Limit)
		if err != nil {
			logger.Warnf("后台刷新 %s 失败: %v", symbol, err)
			continue
		}
		select {
		case result := <-pending:
			for res, ferr := range result.Errs {
				if ferr != nil {
					logger.Warnf("后台刷新 %s@%s: %v", symbol, res, ferr)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) close() {
	if a.layouts != nil {
		if err := a.layouts.Close(); err != nil {
			logger.Warnf("关闭布局存储失败: %v", err)
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			logger.Warnf("关闭快照存储失败: %v", err)
		}
	}
}

// persistSnapshot 抓取成功后旁路写入快照，失败只记日志不影响交付。
func (a *App) persistSnapshot(symbol string, res market.Resolution, candles market.Candles) {
	if a.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.snapshots.Put(ctx, symbol, res, candles, time.Now()); err != nil {
		logger.Warnf("快照写入 %s@%s 失败: %v", symbol, res, err)
	}
}
