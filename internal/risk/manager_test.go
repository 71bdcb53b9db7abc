package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"quantbt/internal/types"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func snap(cash, invested float64, openPositions int) Snapshot {
	return Snapshot{
		Cash:          d(cash),
		Equity:        d(cash + invested),
		Invested:      d(invested),
		OpenPositions: openPositions,
	}
}

func buyOrder(qty int64) types.Order {
	return types.Order{ID: "o", Symbol: "ACME", Type: types.OrderTypeMarket, Action: types.ActionBuy, Quantity: qty}
}

func TestValidateOrderSingleNotionalCap(t *testing.T) {
	m := New(Config{})
	// equity 100000，单笔上限 20%：20000
	ok, _ := m.ValidateOrder(buyOrder(1999), snap(100_000, 0, 0), d(10))
	assert.True(t, ok)

	ok, reason := m.ValidateOrder(buyOrder(2001), snap(100_000, 0, 0), d(10))
	assert.False(t, ok)
	assert.Contains(t, reason, "单笔名义")
}

func TestValidateOrderTotalExposureCap(t *testing.T) {
	m := New(Config{})
	// equity 100000，总仓上限 80%：已投 70000，再买 15000 将超限
	ok, reason := m.ValidateOrder(buyOrder(1500), snap(30_000, 70_000, 4), d(10))
	assert.False(t, ok)
	assert.Contains(t, reason, "总持仓")

	ok, _ = m.ValidateOrder(buyOrder(900), snap(30_000, 70_000, 4), d(10))
	assert.True(t, ok)
}

func TestValidateOrderRuleOrderFirstFailureWins(t *testing.T) {
	m := New(Config{})
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.StartDay(day, d(100_000))
	m.ObserveEquity(d(94_000)) // 亏 6% > 5%，锁买入

	// 同时违反单笔上限与买入锁：拒绝原因必须是规则 a
	ok, reason := m.ValidateOrder(buyOrder(5000), snap(94_000, 0, 0), d(10))
	assert.False(t, ok)
	assert.Contains(t, reason, "单笔名义")
}

func TestValidateOrderSellAlwaysAllowed(t *testing.T) {
	m := New(Config{})
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.StartDay(day, d(100_000))
	m.ObserveEquity(d(90_000))

	sell := buyOrder(100_000)
	sell.Action = types.ActionSell
	ok, _ := m.ValidateOrder(sell, snap(0, 90_000, 3), d(10))
	assert.True(t, ok)
}

func TestValidateOrderLocksOnIntradayLoss(t *testing.T) {
	m := New(Config{})
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.StartDay(day, d(100_000))

	// 校验时权益较日初已跌 6%：不等收盘盯市，当场锁买入
	ok, reason := m.ValidateOrder(buyOrder(100), snap(94_000, 0, 0), d(10))
	assert.False(t, ok)
	assert.Contains(t, reason, "禁止新开仓")

	// 锁有粘性：权益回升后同日仍拒绝
	ok, _ = m.ValidateOrder(buyOrder(100), snap(98_000, 0, 0), d(10))
	assert.False(t, ok)
}

func TestDailyLossLockResetsNextDay(t *testing.T) {
	m := New(Config{})
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.StartDay(day1, d(100_000))
	m.ObserveEquity(d(94_000))

	ok, reason := m.ValidateOrder(buyOrder(100), snap(94_000, 0, 0), d(10))
	assert.False(t, ok)
	assert.Contains(t, reason, "禁止新开仓")

	// 同日重复 StartDay 不得解除锁
	m.StartDay(day1, d(94_000))
	ok, _ = m.ValidateOrder(buyOrder(100), snap(94_000, 0, 0), d(10))
	assert.False(t, ok)

	m.StartDay(day1.AddDate(0, 0, 1), d(94_000))
	ok, _ = m.ValidateOrder(buyOrder(100), snap(94_000, 0, 0), d(10))
	assert.True(t, ok)
}

func TestCheckStopTakeProfitStopWinsFirst(t *testing.T) {
	m := New(Config{})
	pos := types.Position{Symbol: "ACME", Quantity: 100, AvgCost: d(100)}

	// 92 亏 8% 触止损；120 赚 20% 触止盈
	assert.Equal(t, "stop_loss", m.CheckStopTakeProfit("ACME", pos, d(92)))
	assert.Equal(t, "take_profit", m.CheckStopTakeProfit("ACME", pos, d(120)))
	assert.Equal(t, "", m.CheckStopTakeProfit("ACME", pos, d(100)))
	assert.Equal(t, "", m.CheckStopTakeProfit("ACME", pos, d(95)))

	// 空仓/非法价不触发
	assert.Equal(t, "", m.CheckStopTakeProfit("ACME", types.Position{}, d(50)))
	assert.Equal(t, "", m.CheckStopTakeProfit("ACME", pos, decimal.Zero))
}

func TestGetRiskSummary(t *testing.T) {
	m := New(Config{})
	s := snap(20_000, 80_000, 2)
	s.Drawdown = 0.12
	sum := m.GetRiskSummary(s)
	assert.InDelta(t, 0.8, sum.ExposureRatio, 1e-9)
	assert.Equal(t, 0.12, sum.CurrentDrawdown)
	assert.Equal(t, 2, sum.OpenPositions)
	assert.False(t, sum.BuyLocked)
}
