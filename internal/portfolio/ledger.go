package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantbt/internal/risk"
	"quantbt/internal/types"
)

// Ledger 是唯一允许改动资金状态的组件：现金、持仓与资金曲线都在这里。
// 现金为负说明上游风控/撮合有 bug，必须大声失败，绝不悄悄截断。
type Ledger struct {
	initial   decimal.Decimal
	cash      decimal.Decimal
	positions map[string]*types.Position
	curve     []types.EquityPoint
	peak      decimal.Decimal
	prevEq    decimal.Decimal
}

// NewLedger 以初始资金建账。
func NewLedger(initialCapital decimal.Decimal) (*Ledger, error) {
	if !initialCapital.IsPositive() {
		return nil, types.NewConfigurationError("initial_capital", "必须为正，拿到 %s", initialCapital)
	}
	return &Ledger{
		initial:   initialCapital,
		cash:      initialCapital,
		positions: make(map[string]*types.Position),
		peak:      initialCapital,
		prevEq:    initialCapital,
	}, nil
}

// ApplyFill 把一笔成交入账，每笔成交只允许应用一次。
// BUY 按数量加权均价摊薄成本；SELL 结算已实现盈亏并回填 fill.RealizedPnL。
func (l *Ledger) ApplyFill(fill *types.Fill) error {
	if fill == nil {
		return types.NewExecutionError("apply_fill", fmt.Errorf("fill 为空"))
	}
	if fill.Quantity <= 0 {
		return types.NewExecutionError("apply_fill", fmt.Errorf("成交数量非法: %d", fill.Quantity))
	}
	qty := decimal.NewFromInt(fill.Quantity)
	notional := fill.Price.Mul(qty)

	switch fill.Action {
	case types.ActionBuy:
		cost := notional.Add(fill.Commission)
		next := l.cash.Sub(cost)
		if next.IsNegative() {
			return types.NewExecutionError("apply_fill",
				fmt.Errorf("现金透支: cash=%s 买入成本=%s（上游风控失效）",
					l.cash.StringFixed(2), cost.StringFixed(2)))
		}
		l.cash = next
		pos, ok := l.positions[fill.Symbol]
		if !ok {
			l.positions[fill.Symbol] = &types.Position{
				Symbol:   fill.Symbol,
				Quantity: fill.Quantity,
				AvgCost:  fill.Price,
				OpenedAt: fill.Date,
			}
			return nil
		}
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := oldQty.Add(qty)
		// new_avg = (old_qty*old_avg + fill_qty*fill_price) / (old_qty+fill_qty)
		pos.AvgCost = oldQty.Mul(pos.AvgCost).Add(notional).Div(newQty)
		pos.Quantity += fill.Quantity

	case types.ActionSell:
		pos, ok := l.positions[fill.Symbol]
		if !ok || pos.Quantity < fill.Quantity {
			held := int64(0)
			if ok {
				held = pos.Quantity
			}
			return types.NewExecutionError("apply_fill",
				fmt.Errorf("卖出超过持仓: %s 持有 %d，卖出 %d", fill.Symbol, held, fill.Quantity))
		}
		fill.RealizedPnL = fill.Price.Sub(pos.AvgCost).Mul(qty).Sub(fill.Commission).Round(2)
		l.cash = l.cash.Add(notional.Sub(fill.Commission))
		pos.Quantity -= fill.Quantity
		if pos.Quantity == 0 {
			delete(l.positions, fill.Symbol)
		}

	default:
		return types.NewExecutionError("apply_fill", fmt.Errorf("未知成交方向: %s", fill.Action))
	}
	return nil
}

// MarkToMarket 以当日收盘价盯市，追加一条 EquityPoint。
// drawdown = (running_peak − equity) / running_peak，peak 单调不降。
func (l *Ledger) MarkToMarket(date time.Time, prices map[string]decimal.Decimal) (types.EquityPoint, error) {
	equity := l.cash
	for sym, pos := range l.positions {
		price, ok := prices[sym]
		if !ok {
			// 当日缺价则按成本估值，保持曲线连续。
			price = pos.AvgCost
		}
		equity = equity.Add(pos.MarketValue(price))
	}
	ret := 0.0
	if len(l.curve) > 0 && l.prevEq.IsPositive() {
		ret, _ = equity.Sub(l.prevEq).Div(l.prevEq).Float64()
	}
	if equity.GreaterThan(l.peak) {
		l.peak = equity
	}
	dd := 0.0
	if l.peak.IsPositive() {
		dd, _ = l.peak.Sub(equity).Div(l.peak).Float64()
	}
	point := types.EquityPoint{
		Date:     date,
		Cash:     l.cash,
		Equity:   equity,
		Return:   ret,
		Drawdown: dd,
	}
	l.curve = append(l.curve, point)
	l.prevEq = equity
	return point, nil
}

// Cash 返回当前现金。
func (l *Ledger) Cash() decimal.Decimal { return l.cash }

// InitialCapital 返回建账资金。
func (l *Ledger) InitialCapital() decimal.Decimal { return l.initial }

// Equity 返回最近一次盯市权益；尚未盯市时等于现金加成本估值。
func (l *Ledger) Equity() decimal.Decimal {
	if len(l.curve) > 0 {
		return l.curve[len(l.curve)-1].Equity
	}
	eq := l.cash
	for _, pos := range l.positions {
		eq = eq.Add(pos.MarketValue(pos.AvgCost))
	}
	return eq
}

// Position 返回某 symbol 的持仓副本。
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Positions 返回全部持仓的副本。
func (l *Ledger) Positions() []types.Position {
	out := make([]types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Curve 返回资金曲线（追加写，调用方不得修改）。
func (l *Ledger) Curve() []types.EquityPoint { return l.curve }

// Snapshot 生成风控需要的只读组合状态。
func (l *Ledger) Snapshot(prices map[string]decimal.Decimal) risk.Snapshot {
	invested := decimal.Zero
	for sym, pos := range l.positions {
		price, ok := prices[sym]
		if !ok {
			price = pos.AvgCost
		}
		invested = invested.Add(pos.MarketValue(price))
	}
	equity := l.cash.Add(invested)
	dd := 0.0
	if len(l.curve) > 0 {
		dd = l.curve[len(l.curve)-1].Drawdown
	}
	return risk.Snapshot{
		Cash:          l.cash,
		Equity:        equity,
		Invested:      invested,
		OpenPositions: len(l.positions),
		Drawdown:      dd,
	}
}
