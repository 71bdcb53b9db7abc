package optimize

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/backtest"
	"quantbt/internal/market"
	"quantbt/internal/types"
)

func syntheticBars(symbol string, days int) []types.Bar {
	closes := make([]float64, 0, days)
	base := 20.0
	for i := 0; i < days; i++ {
		// 先跌后涨的确定性行情
		if i < days/3 {
			closes = append(closes, base-float64(i)*0.5)
		} else {
			closes = append(closes, base-float64(days/3)*0.5+float64(i-days/3)*0.4)
		}
	}
	out := make([]types.Bar, 0, days)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out = append(out, types.Bar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   d,
			High:   d.Mul(decimal.NewFromFloat(1.01)),
			Low:    d.Mul(decimal.NewFromFloat(0.99)),
			Close:  d,
			Volume: 1_000_000,
		})
	}
	return out
}

func baseConfig(days int) backtest.Config {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return backtest.Config{
		Symbols:        []string{"ACME"},
		Start:          start,
		End:            start.AddDate(0, 0, days-1),
		InitialCapital: 100_000,
		Strategy:       "ma_cross",
		Params:         map[string]float64{},
	}
}

func gridSpaces() []ParameterSpace {
	return []ParameterSpace{
		{Name: "fast_period", Values: []float64{2, 3}},
		{Name: "slow_period", Values: []float64{5, 8}},
	}
}

func TestOptimizeRunsEveryCombination(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	opt, err := New(baseConfig(days), provider, Config{
		Spaces:    gridSpaces(),
		Objective: "total_return",
	})
	require.NoError(t, err)

	var progress [][2]int
	opt.SetProgressFunc(func(completed, total int) {
		progress = append(progress, [2]int{completed, total})
	})

	results, err := opt.Optimize(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)

	// 每个组合互不相同且无运行错误
	seen := make(map[[2]float64]bool)
	for _, r := range results {
		key := [2]float64{r.Parameters["fast_period"], r.Parameters["slow_period"]}
		assert.False(t, seen[key])
		seen[key] = true
		assert.Empty(t, r.RunErr)
	}

	// 结果按目标降序
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// 进度回调收敛到 (4, 4)
	require.NotEmpty(t, progress)
	assert.Equal(t, [2]int{4, 4}, progress[len(progress)-1])
}

func TestOptimizeParallelMatchesSerial(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))

	run := func(workers int) []Result {
		opt, err := New(baseConfig(days), provider, Config{
			Spaces:    gridSpaces(),
			Objective: "total_return",
			Workers:   workers,
		})
		require.NoError(t, err)
		results, err := opt.Optimize(context.Background())
		require.NoError(t, err)
		return results
	}

	serial, parallel := run(1), run(4)
	require.Equal(t, len(serial), len(parallel))
	// 并行只改变执行顺序，不改变每个组合的得分
	scores := func(rs []Result) map[[2]float64]float64 {
		out := make(map[[2]float64]float64)
		for _, r := range rs {
			out[[2]float64{r.Parameters["fast_period"], r.Parameters["slow_period"]}] = r.Score
		}
		return out
	}
	assert.Equal(t, scores(serial), scores(parallel))
}

func TestOptimizeMinimizeOrdersAscending(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	opt, err := New(baseConfig(days), provider, Config{
		Spaces:    gridSpaces(),
		Objective: "max_drawdown",
		Minimize:  true,
	})
	require.NoError(t, err)

	results, err := opt.Optimize(context.Background())
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestOptimizeEarlyStopKeepsCompletedResults(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	threshold := -100.0 // 任何得分都达标，第一个组合即触发
	opt, err := New(baseConfig(days), provider, Config{
		Spaces:         gridSpaces(),
		Objective:      "total_return",
		EarlyStopScore: &threshold,
	})
	require.NoError(t, err)

	results, err := opt.Optimize(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(results), 1)
	assert.LessOrEqual(t, len(results), 4)
}

func TestOptimizeCancelPropagates(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	opt, err := New(baseConfig(days), provider, Config{Spaces: gridSpaces()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = opt.Optimize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOptimizerValidation(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	var cfgErr *types.ConfigurationError

	_, err := New(baseConfig(days), nil, Config{Spaces: gridSpaces()})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(baseConfig(days), provider, Config{Spaces: gridSpaces(), Objective: "bogus_metric"})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(baseConfig(days), provider, Config{})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOptimizeRejectsOutOfRangeGrid(t *testing.T) {
	const days = 40
	provider := market.NewMemoryProvider(syntheticBars("ACME", days))
	opt, err := New(baseConfig(days), provider, Config{
		Spaces: []ParameterSpace{{Name: "fast_period", Values: []float64{1000}}},
	})
	require.NoError(t, err)

	_, err = opt.Optimize(context.Background())
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
