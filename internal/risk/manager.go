package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantbt/internal/types"
)

// Config 是风控参数，比例均为 0~1 的小数。
type Config struct {
	MaxPositionSizePct  float64 `json:"max_position_size_pct" mapstructure:"max_position_size_pct"`
	MaxTotalPositionPct float64 `json:"max_total_position_pct" mapstructure:"max_total_position_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct" mapstructure:"max_daily_loss_pct"`
	StopLossPct         float64 `json:"stop_loss_pct" mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64 `json:"take_profit_pct" mapstructure:"take_profit_pct"`
}

// WithDefaults 填充未设置的比例。
func (c Config) WithDefaults() Config {
	if c.MaxPositionSizePct <= 0 {
		c.MaxPositionSizePct = 0.2
	}
	if c.MaxTotalPositionPct <= 0 {
		c.MaxTotalPositionPct = 0.8
	}
	if c.MaxDailyLossPct <= 0 {
		c.MaxDailyLossPct = 0.05
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.08
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = 0.2
	}
	return c
}

// Snapshot 是账本侧提供的只读组合状态。
type Snapshot struct {
	Cash          decimal.Decimal
	Equity        decimal.Decimal
	Invested      decimal.Decimal
	OpenPositions int
	Drawdown      float64
}

// Summary 是只读风险概览。
type Summary struct {
	ExposureRatio   float64 `json:"exposure_ratio"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	OpenPositions   int     `json:"open_positions"`
	BuyLocked       bool    `json:"buy_locked"`
}

// Manager 校验新订单并盯防持仓的止损/止盈与当日亏损上限。
type Manager struct {
	cfg            Config
	dayKey         string
	dayStartEquity decimal.Decimal
	buyLocked      bool
}

func New(cfg Config) *Manager {
	return &Manager{cfg: cfg.WithDefaults()}
}

// StartDay 在每个交易日开盘前调用，以上一交易日的盯市权益为日初基准，
// 并解除买入锁。当日价格变动带来的亏损由此计入当日。
func (m *Manager) StartDay(date time.Time, equity decimal.Decimal) {
	key := date.Format("2006-01-02")
	if key == m.dayKey {
		return
	}
	m.dayKey = key
	m.dayStartEquity = equity
	m.buyLocked = false
}

// ObserveEquity 用盘中权益更新当日亏损状态；一旦触线，
// 当日剩余时间拒绝所有新 BUY，SELL/EXIT 不受影响。
func (m *Manager) ObserveEquity(equity decimal.Decimal) {
	if m.buyLocked || !m.dayStartEquity.IsPositive() {
		return
	}
	loss := m.dayStartEquity.Sub(equity).Div(m.dayStartEquity)
	if loss.GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.MaxDailyLossPct)) {
		m.buyLocked = true
	}
}

// ValidateOrder 依次执行三条规则，第一条不过即拒绝：
//  a) 单笔名义金额 ≤ max_position_size_pct × equity
//  b) 成交后总持仓名义 ≤ max_total_position_pct × equity
//  c) 当日亏损触线后拒绝新 BUY
//
// SELL 订单始终放行（减仓只会降低风险）。
func (m *Manager) ValidateOrder(order types.Order, snap Snapshot, price decimal.Decimal) (bool, string) {
	if order.Quantity <= 0 {
		return false, "quantity 必须大于 0"
	}
	if order.Action == types.ActionSell {
		return true, ""
	}
	if !snap.Equity.IsPositive() {
		return false, "组合权益非正"
	}
	// 盘中亏损（含已实现与按现价盯市的浮亏）随单更新锁状态，
	// 不等收盘；规则顺序仍是 a → b → c。
	m.ObserveEquity(snap.Equity)
	notional := price.Mul(decimal.NewFromInt(order.Quantity))
	maxSingle := snap.Equity.Mul(decimal.NewFromFloat(m.cfg.MaxPositionSizePct))
	if notional.GreaterThan(maxSingle) {
		return false, fmt.Sprintf("单笔名义 %s 超过上限 %s", notional.StringFixed(2), maxSingle.StringFixed(2))
	}
	maxTotal := snap.Equity.Mul(decimal.NewFromFloat(m.cfg.MaxTotalPositionPct))
	if snap.Invested.Add(notional).GreaterThan(maxTotal) {
		return false, fmt.Sprintf("总持仓名义将达 %s，超过上限 %s",
			snap.Invested.Add(notional).StringFixed(2), maxTotal.StringFixed(2))
	}
	if m.buyLocked {
		return false, "当日亏损已触线，禁止新开仓"
	}
	return true, ""
}

// CheckStopTakeProfit 逐仓检查：先判止损再判止盈，单次至多触发一个。
// 返回空串表示不触发。
func (m *Manager) CheckStopTakeProfit(symbol string, pos types.Position, price decimal.Decimal) string {
	if pos.Quantity <= 0 || !pos.AvgCost.IsPositive() || !price.IsPositive() {
		return ""
	}
	ratio := price.Sub(pos.AvgCost).Div(pos.AvgCost)
	if ratio.LessThanOrEqual(decimal.NewFromFloat(-m.cfg.StopLossPct)) {
		return "stop_loss"
	}
	if ratio.GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.TakeProfitPct)) {
		return "take_profit"
	}
	return ""
}

// GetRiskSummary 只读，不改变任何状态。
func (m *Manager) GetRiskSummary(snap Snapshot) Summary {
	exposure := 0.0
	if snap.Equity.IsPositive() {
		exposure, _ = snap.Invested.Div(snap.Equity).Float64()
	}
	return Summary{
		ExposureRatio:   exposure,
		CurrentDrawdown: snap.Drawdown,
		OpenPositions:   snap.OpenPositions,
		BuyLocked:       m.buyLocked,
	}
}
