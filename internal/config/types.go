package config

import (
	"strings"
	"time"

	"chartcore/internal/market"
	"chartcore/internal/scheduler"
)

// Config 是 Chartcore 的主配置载体。
type Config struct {
	App    AppConfig    `yaml:"app"`
	Feed   FeedConfig   `yaml:"feed"`
	Market MarketConfig `yaml:"market"`
	Store  StoreConfig  `yaml:"store"`
	Render RenderConfig `yaml:"render"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
}

// FeedConfig 控制 K 线抓取与缓存行为。
type FeedConfig struct {
	Symbols     []string `yaml:"symbols"`
	Resolutions []string `yaml:"resolutions"`
	// Limit 每个 (symbol, resolution) 保留的最大 K 线根数。
	Limit int `yaml:"limit"`
	// AutoRefreshSeconds > 0 时启动后台定时刷新。
	AutoRefreshSeconds int `yaml:"auto_refresh_seconds"`
	// TTLOverrides 按周期覆盖缓存保鲜期，如 {"1m": "15s"}；支持热更新。
	TTLOverrides map[string]string `yaml:"ttl_overrides"`
}

type MarketConfig struct {
	RESTBaseURL    string      `yaml:"rest_base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Proxy          ProxyConfig `yaml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	RESTURL string `yaml:"rest_url"`
}

type StoreConfig struct {
	LayoutPath   string `yaml:"layout_path"`
	SnapshotPath string `yaml:"snapshot_path"`
}

type RenderConfig struct {
	Theme  string `yaml:"theme"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// ParsedResolutions 返回去重后的合法周期列表（保持配置顺序）。
func (f FeedConfig) ParsedResolutions() []market.Resolution {
	seen := make(map[market.Resolution]bool, len(f.Resolutions))
	out := make([]market.Resolution, 0, len(f.Resolutions))
	for _, raw := range f.Resolutions {
		res, err := market.ParseResolution(raw)
		if err != nil || seen[res] {
			continue
		}
		seen[res] = true
		out = append(out, res)
	}
	return out
}

// ParsedTTLOverrides 把字符串形式的 TTL 覆盖解析为 Duration 表。
// 非法条目直接跳过，不影响其余周期。
func (f FeedConfig) ParsedTTLOverrides() map[market.Resolution]time.Duration {
	if len(f.TTLOverrides) == 0 {
		return nil
	}
	out := make(map[market.Resolution]time.Duration, len(f.TTLOverrides))
	for raw, val := range f.TTLOverrides {
		res, err := market.ParseResolution(raw)
		if err != nil {
			continue
		}
		d, ok := scheduler.ParseIntervalDuration(val)
		if !ok {
			continue
		}
		out[res] = d
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m MarketConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
