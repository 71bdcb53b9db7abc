package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"quantbt/internal/backtest"
	"quantbt/internal/execution"
	"quantbt/internal/gateway/binance"
	"quantbt/internal/optimize"
	"quantbt/internal/risk"
	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

const dateLayout = "2006-01-02"

// Config 是整个应用的配置根，按 YAML 一次性加载。
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Data     DataConfig     `mapstructure:"data"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Report   ReportConfig   `mapstructure:"report"`
	Backtest RunConfig      `mapstructure:"backtest"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig 选择行情来源：csv 文件、本地 sqlite 缓存，或 binance 远端。
// SQLitePath 为缓存目录（库文件名固定为 bars.db）。
type DataConfig struct {
	Source     string         `mapstructure:"source"`
	CSVPath    string         `mapstructure:"csv_path"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Binance    binance.Config `mapstructure:"binance"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type ReportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// RunConfig 是 YAML 里的回测段，日期以 "2006-01-02" 字符串书写。
type RunConfig struct {
	Symbols         []string         `mapstructure:"symbols"`
	Start           string           `mapstructure:"start"`
	End             string           `mapstructure:"end"`
	InitialCapital  float64          `mapstructure:"initial_capital"`
	RiskFreeRate    float64          `mapstructure:"risk_free_rate"`
	Strategy        string           `mapstructure:"strategy"`
	Params          strategy.Params  `mapstructure:"params"`
	Risk            risk.Config      `mapstructure:"risk"`
	Execution       execution.Config `mapstructure:"execution"`
	MinObservations int              `mapstructure:"min_observations"`
}

type OptimizeConfig struct {
	// SpacesFile 非空时整段从独立 YAML 文件加载，内联字段被忽略。
	SpacesFile     string                    `mapstructure:"spaces_file"`
	Spaces         []optimize.ParameterSpace `mapstructure:"spaces"`
	Objective      string                    `mapstructure:"objective"`
	Minimize       bool                      `mapstructure:"minimize"`
	Workers        int                       `mapstructure:"workers"`
	EarlyStopScore *float64                  `mapstructure:"early_stop_score"`
}

// Load 读取 YAML 配置并整体校验，任何问题都在启动期失败。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, types.NewConfigurationError("config", "配置路径不能为空")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	applyDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("data.source", "csv")
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "data/results.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("report.enabled", false)
	v.SetDefault("report.dir", "reports")
	v.SetDefault("backtest.initial_capital", 100000)
	v.SetDefault("optimize.objective", "sharpe_ratio")
	v.SetDefault("optimize.workers", 1)
}

// Validate 校验配置根，回测段的语义校验复用 backtest.Config.Validate。
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Data.Source)) {
	case "csv":
		if strings.TrimSpace(c.Data.CSVPath) == "" {
			return types.NewConfigurationError("data.csv_path", "csv 数据源必须指定文件路径")
		}
	case "sqlite":
		if strings.TrimSpace(c.Data.SQLitePath) == "" {
			return types.NewConfigurationError("data.sqlite_path", "sqlite 数据源必须指定缓存目录")
		}
	case "binance":
		if strings.TrimSpace(c.Data.SQLitePath) == "" {
			return types.NewConfigurationError("data.sqlite_path", "binance 数据源需要本地缓存路径")
		}
	default:
		return types.NewConfigurationError("data.source", "未知数据源: %s", c.Data.Source)
	}
	if c.Store.Enabled && strings.TrimSpace(c.Store.Path) == "" {
		return types.NewConfigurationError("store.path", "结果库路径不能为空")
	}
	if _, err := c.BacktestConfig(); err != nil {
		return err
	}
	return nil
}

// BacktestConfig 把 YAML 回测段转成引擎配置（含日期解析与校验）。
func (c *Config) BacktestConfig() (backtest.Config, error) {
	start, err := parseDate("backtest.start", c.Backtest.Start)
	if err != nil {
		return backtest.Config{}, err
	}
	end, err := parseDate("backtest.end", c.Backtest.End)
	if err != nil {
		return backtest.Config{}, err
	}
	out := backtest.Config{
		Symbols:         append([]string{}, c.Backtest.Symbols...),
		Start:           start,
		End:             end,
		InitialCapital:  c.Backtest.InitialCapital,
		RiskFreeRate:    c.Backtest.RiskFreeRate,
		Strategy:        c.Backtest.Strategy,
		Params:          c.Backtest.Params.Clone(),
		Risk:            c.Backtest.Risk,
		Execution:       c.Backtest.Execution,
		MinObservations: c.Backtest.MinObservations,
	}
	if err := out.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return out, nil
}

// OptimizerConfig 把 YAML 寻优段转成 optimize.Config；
// 指定了 spaces_file 时改从独立文件加载。
func (c *Config) OptimizerConfig() (optimize.Config, error) {
	if path := strings.TrimSpace(c.Optimize.SpacesFile); path != "" {
		return optimize.LoadFile(path)
	}
	return optimize.Config{
		Spaces:         append([]optimize.ParameterSpace{}, c.Optimize.Spaces...),
		Objective:      c.Optimize.Objective,
		Minimize:       c.Optimize.Minimize,
		Workers:        c.Optimize.Workers,
		EarlyStopScore: c.Optimize.EarlyStopScore,
	}, nil
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, types.NewConfigurationError(field, "日期不能为空")
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, types.NewConfigurationError(field, "日期格式应为 %s，拿到 %q", dateLayout, raw)
	}
	return t, nil
}
