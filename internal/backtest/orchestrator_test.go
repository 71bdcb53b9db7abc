package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/market"
	"quantbt/internal/types"
)

func tradingDay(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// vShapeBars 先跌后涨的单边行情，足以让 ma_cross 触发一买一卖。
func vShapeBars(symbol string, closes []float64) []types.Bar {
	out := make([]types.Bar, 0, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out = append(out, types.Bar{
			Symbol: symbol,
			Date:   tradingDay(i),
			Open:   d,
			High:   d.Mul(decimal.NewFromFloat(1.01)),
			Low:    d.Mul(decimal.NewFromFloat(0.99)),
			Close:  d,
			Volume: 1_000_000,
		})
	}
	return out
}

func testConfig(days int) Config {
	return Config{
		Symbols:        []string{"ACME"},
		Start:          tradingDay(0),
		End:            tradingDay(days - 1),
		InitialCapital: 100_000,
		Strategy:       "ma_cross",
		Params:         map[string]float64{"fast_period": 2, "slow_period": 4},
	}
}

func vCloses() []float64 {
	closes := []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10}
	for i := 0; i < 15; i++ {
		closes = append(closes, 10+float64(i+1)*0.8)
	}
	return closes
}

func TestOrchestratorEndToEnd(t *testing.T) {
	closes := vCloses()
	provider := market.NewMemoryProvider(vShapeBars("ACME", closes))
	orch, err := NewOrchestrator(testConfig(len(closes)), provider)
	require.NoError(t, err)

	res := orch.Run(context.Background())
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.RunID)

	// 每个交易日恰好一条资金曲线点
	assert.Len(t, res.EquityCurve, len(closes))
	assert.Equal(t, res.EquityCurve[len(res.EquityCurve)-1].Equity, res.FinalCapital)

	// V 型反转应产生至少一次买入
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, types.ActionBuy, res.Trades[0].Action)
	assert.True(t, res.Costs.Commission.GreaterThan(decimal.Zero))
	assert.Equal(t, 0, res.Costs.SkippedDates)

	// 现金始终非负
	for _, p := range res.EquityCurve {
		assert.False(t, p.Cash.IsNegative(), "cash negative at %s", p.Date)
	}
}

func TestOrchestratorIsDeterministic(t *testing.T) {
	closes := vCloses()
	run := func() *Result {
		provider := market.NewMemoryProvider(vShapeBars("ACME", closes))
		orch, err := NewOrchestrator(testConfig(len(closes)), provider)
		require.NoError(t, err)
		return orch.Run(context.Background())
	}
	a, b := run(), run()
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)

	// RunID 不同，其余输出必须完全一致
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.Metrics, b.Metrics)
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, a.Trades[i].Symbol, b.Trades[i].Symbol)
		assert.Equal(t, a.Trades[i].Action, b.Trades[i].Action)
		assert.True(t, a.Trades[i].Price.Equal(b.Trades[i].Price))
		assert.Equal(t, a.Trades[i].Quantity, b.Trades[i].Quantity)
	}
}

func TestOrchestratorReportsProgress(t *testing.T) {
	closes := vCloses()
	provider := market.NewMemoryProvider(vShapeBars("ACME", closes))
	orch, err := NewOrchestrator(testConfig(len(closes)), provider)
	require.NoError(t, err)

	var seen []types.Progress
	orch.SetProgressFunc(func(p types.Progress) { seen = append(seen, p) })
	res := orch.Run(context.Background())
	require.NoError(t, res.Err)

	require.Len(t, seen, len(closes))
	last := seen[len(seen)-1]
	assert.Equal(t, len(closes), last.Completed)
	assert.Equal(t, len(closes), last.Total)
	assert.InDelta(t, 1.0, last.Fraction, 1e-9)
}

func TestOrchestratorCancelStopsAtDateBoundary(t *testing.T) {
	closes := vCloses()
	provider := market.NewMemoryProvider(vShapeBars("ACME", closes))
	orch, err := NewOrchestrator(testConfig(len(closes)), provider)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := orch.Run(ctx)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.EquityCurve)
}

func TestOrchestratorDailyLossLockBlocksSameDayBuys(t *testing.T) {
	// LOSS 先金叉买入，随后暴跌触发止损，单日亏损打穿 5% 线；
	// 同日稍后 LATE 的金叉买入必须被风控拒绝，不等收盘盯市。
	crash := []float64{12, 11, 10, 9, 10, 10.5, 10.5, 7}
	late := []float64{14, 13, 12, 11, 10, 9, 10, 12}
	bars := append(vShapeBars("LOSS", crash), vShapeBars("LATE", late)...)
	cfg := testConfig(len(crash))
	cfg.Symbols = []string{"LOSS", "LATE"}
	orch, err := NewOrchestrator(cfg, market.NewMemoryProvider(bars))
	require.NoError(t, err)

	res := orch.Run(context.Background())
	require.NoError(t, res.Err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "LOSS", res.Trades[0].Symbol)
	assert.Equal(t, types.ActionBuy, res.Trades[0].Action)
	assert.Equal(t, "stop_loss", res.Trades[1].Reason)
	assert.True(t, res.Trades[1].RealizedPnL.IsNegative())
	assert.Equal(t, 1, res.Costs.RejectedOrders)
	for _, tr := range res.Trades {
		assert.NotEqual(t, "LATE", tr.Symbol)
	}
}

func TestOrchestratorSizesBuysFromCurrentPrices(t *testing.T) {
	// ACME 持仓当日回落拖低权益。BETA 满力买入的名义金额必须按
	// 当日现价估值的权益定容，与风控校验同一口径，不应被规则 a 误拒。
	core := []float64{9, 8, 7, 6, 7, 8, 9, 8.46}
	fresh := []float64{14, 13, 12, 11, 10, 9, 10, 12}
	bars := append(vShapeBars("ACME", core), vShapeBars("BETA", fresh)...)
	cfg := testConfig(len(core))
	cfg.Symbols = []string{"ACME", "BETA"}
	orch, err := NewOrchestrator(cfg, market.NewMemoryProvider(bars))
	require.NoError(t, err)

	res := orch.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Costs.RejectedOrders)

	var beta *types.Trade
	for i := range res.Trades {
		if res.Trades[i].Symbol == "BETA" {
			beta = &res.Trades[i]
		}
	}
	require.NotNil(t, beta)
	assert.Equal(t, types.ActionBuy, beta.Action)
	assert.Equal(t, int64(1685), beta.Quantity)
}

func TestOrderFromSignalMapsProtectiveStopExit(t *testing.T) {
	closes := vCloses()
	provider := market.NewMemoryProvider(vShapeBars("ACME", closes))
	orch, err := NewOrchestrator(testConfig(len(closes)), provider)
	require.NoError(t, err)

	require.NoError(t, orch.ledger.ApplyFill(&types.Fill{
		OrderID:  "f-1",
		Symbol:   "ACME",
		Date:     tradingDay(0),
		Action:   types.ActionBuy,
		Quantity: 100,
		Price:    decimal.NewFromFloat(10),
	}))

	sig := &types.Signal{
		Symbol:    "ACME",
		Direction: types.DirectionExit,
		Reason:    "保护性止损",
		StopPrice: decimal.NewFromFloat(9.2),
	}
	bar := vShapeBars("ACME", closes)[0]
	prices := map[string]decimal.Decimal{"ACME": decimal.NewFromFloat(10)}

	order, ok := orch.orderFromSignal(sig, bar, prices, tradingDay(0))
	require.True(t, ok)
	assert.Equal(t, types.OrderTypeStop, order.Type)
	assert.Equal(t, types.ActionSell, order.Action)
	assert.Equal(t, int64(100), order.Quantity)
	assert.True(t, order.Price.Equal(decimal.NewFromFloat(9.2)))
}

// gappyProvider 在日历里声称有额外交易日，但那天没有数据。
type gappyProvider struct {
	inner *market.MemoryProvider
	extra time.Time
}

func (p *gappyProvider) Calendar(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	dates, err := p.inner.Calendar(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := append([]time.Time{}, dates...)
	out = append(out, p.extra)
	return out, nil
}

func (p *gappyProvider) MarketData(ctx context.Context, date time.Time) (map[string]types.Bar, error) {
	if market.DateKey(date) == market.DateKey(p.extra) {
		return nil, &types.DataUnavailableError{Date: date}
	}
	return p.inner.MarketData(ctx, date)
}

func TestOrchestratorSkipsMissingDates(t *testing.T) {
	closes := vCloses()
	provider := &gappyProvider{
		inner: market.NewMemoryProvider(vShapeBars("ACME", closes)),
		extra: tradingDay(len(closes)),
	}
	cfg := testConfig(len(closes) + 1)
	orch, err := NewOrchestrator(cfg, provider)
	require.NoError(t, err)

	res := orch.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Costs.SkippedDates)
	assert.Len(t, res.EquityCurve, len(closes))
}

func TestOrchestratorEmptyCalendarFails(t *testing.T) {
	provider := market.NewMemoryProvider(nil)
	orch, err := NewOrchestrator(testConfig(10), provider)
	require.NoError(t, err)

	res := orch.Run(context.Background())
	var dataErr *types.DataUnavailableError
	assert.ErrorAs(t, res.Err, &dataErr)
	assert.Equal(t, res.ErrMessage, res.Err.Error())
}

func TestNewOrchestratorValidation(t *testing.T) {
	provider := market.NewMemoryProvider(nil)

	_, err := NewOrchestrator(testConfig(10), nil)
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	bad := testConfig(10)
	bad.InitialCapital = 0
	_, err = NewOrchestrator(bad, provider)
	assert.ErrorAs(t, err, &cfgErr)

	bad = testConfig(10)
	bad.Strategy = "nope"
	_, err = NewOrchestrator(bad, provider)
	assert.ErrorAs(t, err, &cfgErr)

	bad = testConfig(10)
	bad.Params = map[string]float64{"fast_period": -3}
	_, err = NewOrchestrator(bad, provider)
	assert.ErrorAs(t, err, &cfgErr)
}
