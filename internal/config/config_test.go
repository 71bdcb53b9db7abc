package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/types"
)

const sampleYAML = `
log:
  level: debug
data:
  source: csv
  csv_path: testdata/bars.csv
backtest:
  symbols: [acme, beta, acme]
  start: "2024-01-02"
  end: "2024-06-28"
  initial_capital: 250000
  strategy: ma_cross
  params:
    fast_period: 5
    slow_period: 20
optimize:
  objective: sortino_ratio
  workers: 4
  spaces:
    - name: fast_period
      values: [5, 10]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "csv", cfg.Data.Source)

	bt, err := cfg.BacktestConfig()
	require.NoError(t, err)
	// 大写、去重、排序
	assert.Equal(t, []string{"ACME", "BETA"}, bt.Symbols)
	assert.Equal(t, 250000.0, bt.InitialCapital)
	assert.Equal(t, "ma_cross", bt.Strategy)
	assert.Equal(t, 5.0, bt.Params["fast_period"])
	assert.Equal(t, "2024-01-02", bt.Start.Format("2006-01-02"))

	opt, err := cfg.OptimizerConfig()
	require.NoError(t, err)
	assert.Equal(t, "sortino_ratio", opt.Objective)
	assert.Equal(t, 4, opt.Workers)
	require.Len(t, opt.Spaces, 1)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
data:
  source: csv
  csv_path: bars.csv
backtest:
  symbols: [acme]
  start: "2024-01-02"
  end: "2024-06-28"
  strategy: ma_cross
`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "data/results.db", cfg.Store.Path)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	bt, err := cfg.BacktestConfig()
	require.NoError(t, err)
	assert.Equal(t, 100000.0, bt.InitialCapital)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	var cfgErr *types.ConfigurationError

	// 未知数据源
	_, err := Load(writeConfig(t, `
data:
  source: carrier_pigeon
backtest:
  symbols: [acme]
  start: "2024-01-02"
  end: "2024-06-28"
  strategy: ma_cross
`))
	assert.ErrorAs(t, err, &cfgErr)

	// csv 源缺路径
	_, err = Load(writeConfig(t, `
data:
  source: csv
backtest:
  symbols: [acme]
  start: "2024-01-02"
  end: "2024-06-28"
  strategy: ma_cross
`))
	assert.ErrorAs(t, err, &cfgErr)

	// 日期格式非法
	_, err = Load(writeConfig(t, `
data:
  source: csv
  csv_path: bars.csv
backtest:
  symbols: [acme]
  start: "01/02/2024"
  end: "2024-06-28"
  strategy: ma_cross
`))
	assert.ErrorAs(t, err, &cfgErr)

	// end 早于 start
	_, err = Load(writeConfig(t, `
data:
  source: csv
  csv_path: bars.csv
backtest:
  symbols: [acme]
  start: "2024-06-28"
  end: "2024-01-02"
  strategy: ma_cross
`))
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path)
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, "debug", snap.Config.Log.Level)

	received := make(chan Snapshot, 1)
	w.Subscribe(func(s Snapshot) {
		select {
		case received <- s:
		default:
		}
	})
	got := <-received
	assert.Equal(t, int64(1), got.Version)
}
