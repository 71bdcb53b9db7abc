package backtest

import (
	"github.com/shopspring/decimal"

	"quantbt/internal/metrics"
	"quantbt/internal/types"
)

// CostSummary 汇总一次回测的摩擦成本与各类跳过计数。
type CostSummary struct {
	Commission     decimal.Decimal `json:"commission"`
	Slippage       decimal.Decimal `json:"slippage"`
	RejectedOrders int             `json:"rejected_orders"`
	UnfilledOrders int             `json:"unfilled_orders"`
	SkippedDates   int             `json:"skipped_dates"`
}

// Result 是 Run 的终端输出。即使中途失败也返回已有的部分结果，
// 异常以 Err 字段单独携带，绝不悄悄丢弃。
type Result struct {
	RunID        string              `json:"run_id"`
	Config       Config              `json:"config"`
	EquityCurve  []types.EquityPoint `json:"equity_curve"`
	Trades       []types.Trade       `json:"trades"`
	FinalCapital decimal.Decimal     `json:"final_capital"`
	Costs        CostSummary         `json:"cost_summary"`
	Metrics      metrics.Report      `json:"metrics"`
	Err          error               `json:"-"`
	ErrMessage   string              `json:"error,omitempty"`
}
