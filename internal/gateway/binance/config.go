package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string        `mapstructure:"rest_base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	ProxyEnabled bool   `mapstructure:"proxy_enabled"`
	RESTProxyURL string `mapstructure:"rest_proxy_url"`
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
