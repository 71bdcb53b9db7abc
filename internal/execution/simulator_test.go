package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/types"
)

func testBar(close float64) types.Bar {
	c := decimal.NewFromFloat(close)
	return types.Bar{
		Symbol: "ACME",
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:   c,
		High:   c.Mul(decimal.NewFromFloat(1.02)),
		Low:    c.Mul(decimal.NewFromFloat(0.98)),
		Close:  c,
		Volume: 1_000_000,
	}
}

func marketOrder(action types.OrderAction, qty int64) types.Order {
	return types.Order{
		ID:       "o-1",
		Symbol:   "ACME",
		Type:     types.OrderTypeMarket,
		Action:   action,
		Quantity: qty,
	}
}

func TestExecuteMarketBuyAppliesSlippageAndMinCommission(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	res, err := sim.Execute(marketOrder(types.ActionBuy, 1000), bar, bar.Date)
	require.NoError(t, err)
	require.True(t, res.Filled)

	// 10.00 × 1.001 = 10.01
	assert.Equal(t, "10.01", res.Fill.Price.StringFixed(2))
	// 1000 × 10.01 × 0.0003 ≈ 3.00 < 最低佣金 5.00
	assert.Equal(t, "5.00", res.Fill.Commission.StringFixed(2))
	// |10.01 − 10.00| × 1000
	assert.Equal(t, "10.00", res.Fill.SlippageCost.StringFixed(2))
}

func TestExecuteMarketSellSlipsDown(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	res, err := sim.Execute(marketOrder(types.ActionSell, 100), bar, bar.Date)
	require.NoError(t, err)
	require.True(t, res.Filled)
	assert.Equal(t, "9.99", res.Fill.Price.StringFixed(2))
}

func TestExecuteMarketCommissionAboveFloor(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(100.00)

	res, err := sim.Execute(marketOrder(types.ActionBuy, 1000), bar, bar.Date)
	require.NoError(t, err)
	require.True(t, res.Filled)
	// 1000 × 100.10 × 0.0003 = 30.03 > 5.00
	assert.Equal(t, "30.03", res.Fill.Commission.StringFixed(2))
}

func TestExecuteLimitFillsExactlyAtLimitPrice(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	order := marketOrder(types.ActionBuy, 100)
	order.Type = types.OrderTypeLimit
	order.Price = decimal.NewFromFloat(10.50)

	res, err := sim.Execute(order, bar, bar.Date)
	require.NoError(t, err)
	require.True(t, res.Filled)
	// 限价单严格按限价成交，不计滑点成本。
	assert.Equal(t, "10.50", res.Fill.Price.StringFixed(2))
	assert.True(t, res.Fill.SlippageCost.IsZero())
}

func TestExecuteLimitNotMarketable(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	buy := marketOrder(types.ActionBuy, 100)
	buy.Type = types.OrderTypeLimit
	buy.Price = decimal.NewFromFloat(9.50)
	res, err := sim.Execute(buy, bar, bar.Date)
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.NotEmpty(t, res.Reason)

	sell := marketOrder(types.ActionSell, 100)
	sell.Type = types.OrderTypeLimit
	sell.Price = decimal.NewFromFloat(10.50)
	res, err = sim.Execute(sell, bar, bar.Date)
	require.NoError(t, err)
	assert.False(t, res.Filled)
}

func TestExecuteStopSellTriggersWithSlippage(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(9.00)

	order := marketOrder(types.ActionSell, 100)
	order.Type = types.OrderTypeStop
	order.Price = decimal.NewFromFloat(9.20)

	res, err := sim.Execute(order, bar, bar.Date)
	require.NoError(t, err)
	require.True(t, res.Filled)
	// 触发后按市价逻辑：9.00 × 0.999 = 8.99(1)
	assert.Equal(t, "8.99", res.Fill.Price.StringFixed(2))
}

func TestExecuteStopNotTriggered(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	order := marketOrder(types.ActionSell, 100)
	order.Type = types.OrderTypeStop
	order.Price = decimal.NewFromFloat(9.20)

	res, err := sim.Execute(order, bar, bar.Date)
	require.NoError(t, err)
	assert.False(t, res.Filled)
}

func TestExecuteRejectsInvalidOrders(t *testing.T) {
	sim := NewSimulator(Config{})
	bar := testBar(10.00)

	_, err := sim.Execute(marketOrder(types.ActionBuy, 0), bar, bar.Date)
	assert.Error(t, err)

	limit := marketOrder(types.ActionBuy, 10)
	limit.Type = types.OrderTypeLimit
	_, err = sim.Execute(limit, bar, bar.Date)
	assert.Error(t, err)

	unknown := marketOrder(types.ActionBuy, 10)
	unknown.Type = types.OrderType("ICEBERG")
	_, err = sim.Execute(unknown, bar, bar.Date)
	var execErr *types.ExecutionError
	assert.ErrorAs(t, err, &execErr)
}
