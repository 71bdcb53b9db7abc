package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction 表示策略意图。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionExit  Direction = "EXIT"
	DirectionHold  Direction = "HOLD"
)

// OrderType 支持市价/限价/止损三类。
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderAction 只有买卖两种（不支持做空）。
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// Bar 表示单 symbol 单周期的 OHLCV 快照，由数据源产出后不可变。
// 价格使用 decimal 定点数，避免资金核算里的浮点漂移。
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Signal 表示策略在某根 K 线上的交易意图，生成后立即被消费，不落库。
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	// Strength ∈ [0,1]，下游按其缩放仓位。
	Strength float64 `json:"strength"`
	// Reason 记录触发规则，便于审计。
	Reason string `json:"reason"`
	// 以下价格为零值时表示未设置。
	TargetPrice decimal.Decimal `json:"target_price,omitempty"`
	StopPrice   decimal.Decimal `json:"stop_price,omitempty"`
	TakeProfit  decimal.Decimal `json:"take_profit,omitempty"`
}

// Order 是由 Signal 推导出的下单决策，经过一次校验+执行后即终结。
type Order struct {
	ID     string      `json:"id"`
	Symbol string      `json:"symbol"`
	Type   OrderType   `json:"type"`
	Action OrderAction `json:"action"`
	// Quantity 必须大于 0。
	Quantity int64 `json:"quantity"`
	// Price 为 LIMIT 的限价或 STOP 的触发价，市价单为零。
	Price     decimal.Decimal `json:"price,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Fill 表示一次成交，只会被账本应用一次。
type Fill struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Date     time.Time       `json:"date"`
	Action   OrderAction     `json:"action"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	// Commission 与 SlippageCost 均为 2 位小数。
	Commission   decimal.Decimal `json:"commission"`
	SlippageCost decimal.Decimal `json:"slippage_cost"`
	// RealizedPnL 仅在 SELL 成交、由账本结算后有效。
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Reason      string          `json:"reason,omitempty"`
}

// FillResult 显式区分成交/未成交，不用 nil 哨兵兼做其他含义。
type FillResult struct {
	Filled bool   `json:"filled"`
	Fill   *Fill  `json:"fill,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NotFilled 构造未成交结果。
func NotFilled(reason string) FillResult {
	return FillResult{Filled: false, Reason: reason}
}

// Filled 构造成交结果。
func Filled(f *Fill) FillResult {
	return FillResult{Filled: true, Fill: f}
}

// Position 表示单 symbol 的持仓，只通过账本的 ApplyFill 变更。
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
	OpenedAt time.Time       `json:"opened_at"`
}

// MarketValue 返回按给定价格折算的市值。
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// EquityPoint 是每个交易日追加一次的资金快照，追加后不再修改。
type EquityPoint struct {
	Date   time.Time       `json:"date"`
	Cash   decimal.Decimal `json:"cash"`
	Equity decimal.Decimal `json:"equity"`
	// Return 为相对前一日的收益率，首日为 0。
	Return float64 `json:"returns"`
	// Drawdown = (running_peak - equity) / running_peak，非负。
	Drawdown float64 `json:"drawdown"`
}

// Trade 是成交日志中的一条记录。
type Trade struct {
	Symbol       string          `json:"symbol"`
	Date         time.Time       `json:"date"`
	Action       OrderAction     `json:"action"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Commission   decimal.Decimal `json:"commission"`
	SlippageCost decimal.Decimal `json:"slippage_cost"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	Reason       string          `json:"reason,omitempty"`
}

// Progress 上报回测/寻优进度。并行时 Completed/Total 不保证按序递增。
type Progress struct {
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Fraction  float64   `json:"fraction"`
	Date      time.Time `json:"date,omitempty"`
	Message   string    `json:"message,omitempty"`
}
