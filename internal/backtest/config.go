package backtest

import (
	"sort"
	"strings"
	"time"

	"quantbt/internal/execution"
	"quantbt/internal/risk"
	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

// Config 是一次回测的全部参数快照，便于落库与重放。
type Config struct {
	Symbols        []string         `json:"symbols" mapstructure:"symbols"`
	Start          time.Time        `json:"start" mapstructure:"start"`
	End            time.Time        `json:"end" mapstructure:"end"`
	InitialCapital float64          `json:"initial_capital" mapstructure:"initial_capital"`
	RiskFreeRate   float64          `json:"risk_free_rate" mapstructure:"risk_free_rate"`
	Strategy       string           `json:"strategy" mapstructure:"strategy"`
	Params         strategy.Params  `json:"params" mapstructure:"params"`
	Risk           risk.Config      `json:"risk" mapstructure:"risk"`
	Execution      execution.Config `json:"execution" mapstructure:"execution"`
	// MinObservations 传给指标层，<=0 用默认 30。
	MinObservations int `json:"min_observations,omitempty" mapstructure:"min_observations"`
}

// Normalize 统一 symbol 大小写并排序，保证逐日循环完全确定。
func (c *Config) Normalize() {
	seen := make(map[string]bool, len(c.Symbols))
	out := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	c.Symbols = out
}

// Validate 开跑前整体校验，失败返回 ConfigurationError，不做恢复。
func (c *Config) Validate() error {
	c.Normalize()
	if len(c.Symbols) == 0 {
		return types.NewConfigurationError("symbols", "至少需要一个 symbol")
	}
	if c.InitialCapital <= 0 {
		return types.NewConfigurationError("initial_capital", "必须为正，拿到 %v", c.InitialCapital)
	}
	if c.Start.IsZero() || c.End.IsZero() || c.End.Before(c.Start) {
		return types.NewConfigurationError("start/end", "时间区间非法")
	}
	if strings.TrimSpace(c.Strategy) == "" {
		return types.NewConfigurationError("strategy", "策略名不能为空")
	}
	return nil
}

// Clone 深拷贝（寻优时每个组合独立持有）。
func (c Config) Clone() Config {
	out := c
	out.Symbols = append([]string{}, c.Symbols...)
	out.Params = c.Params.Clone()
	return out
}
