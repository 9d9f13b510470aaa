package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9992"
	defaultAppLogPath   = "/data/logs/chartcore.log"
	defaultFeedLimit    = 300
	defaultMarketREST   = "https://fapi.binance.com"
	defaultLayoutPath   = "/data/db/chart_layouts.db"
	defaultSnapshotPath = "/data/db/candle_snapshots.db"
	defaultRenderTheme  = "dark"
	defaultRenderWidth  = 1280
	defaultRenderHeight = 720
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Render.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "feed.limit",
			need:  func() bool { return f.Limit <= 0 },
			apply: func() { f.Limit = defaultFeedLimit },
		},
		fieldDefault{
			key:   "feed.symbols",
			need:  func() bool { return len(f.Symbols) == 0 },
			apply: func() { f.Symbols = []string{"BTCUSDT"} },
		},
		fieldDefault{
			key:   "feed.resolutions",
			need:  func() bool { return len(f.Resolutions) == 0 },
			apply: func() { f.Resolutions = []string{"5m", "1h", "1d"} },
		},
	)
	for i, s := range f.Symbols {
		f.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
	)
	m.Proxy.RESTURL = strings.TrimSpace(m.Proxy.RESTURL)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.layout_path", &s.LayoutPath, defaultLayoutPath),
		stringFieldDefault("store.snapshot_path", &s.SnapshotPath, defaultSnapshotPath),
	)
}

func (r *RenderConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("render.theme", &r.Theme, defaultRenderTheme),
		fieldDefault{
			key:   "render.width",
			need:  func() bool { return r.Width <= 0 },
			apply: func() { r.Width = defaultRenderWidth },
		},
		fieldDefault{
			key:   "render.height",
			need:  func() bool { return r.Height <= 0 },
			apply: func() { r.Height = defaultRenderHeight },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
