package binance

import "time"

// Config 描述 Binance 行情源的连接参数。
type Config struct {
	// RESTBaseURL 形如 https://fapi.binance.com
	RESTBaseURL string
	ProxyURL    string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	return out
}
