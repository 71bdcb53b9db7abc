package execution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantbt/internal/logger"
	"quantbt/internal/types"
)

// Config 描述撮合成本模型。比例参数为小数（0.0003 = 3bps）。
type Config struct {
	CommissionRate float64 `json:"commission_rate" mapstructure:"commission_rate"`
	SlippageRate   float64 `json:"slippage_rate" mapstructure:"slippage_rate"`
	MinCommission  float64 `json:"min_commission" mapstructure:"min_commission"`
	// VolumeParticipation 超过该成交量占比仅告警，仍然全额成交。
	// 这是当前版本刻意保留的简化，不做部分成交/排队模型。
	VolumeParticipation float64 `json:"volume_participation" mapstructure:"volume_participation"`
}

// WithDefaults 填充缺省成本参数。
func (c Config) WithDefaults() Config {
	if c.CommissionRate <= 0 {
		c.CommissionRate = 0.0003
	}
	if c.SlippageRate <= 0 {
		c.SlippageRate = 0.001
	}
	if c.MinCommission <= 0 {
		c.MinCommission = 5.0
	}
	if c.VolumeParticipation <= 0 {
		c.VolumeParticipation = 0.1
	}
	return c
}

// Simulator 把已通过风控的订单推演为成交（或明确的未成交）。
type Simulator struct {
	commissionRate decimal.Decimal
	slippageRate   decimal.Decimal
	minCommission  decimal.Decimal
	participation  float64
}

func NewSimulator(cfg Config) *Simulator {
	final := cfg.WithDefaults()
	return &Simulator{
		commissionRate: decimal.NewFromFloat(final.CommissionRate),
		slippageRate:   decimal.NewFromFloat(final.SlippageRate),
		minCommission:  decimal.NewFromFloat(final.MinCommission),
		participation:  final.VolumeParticipation,
	}
}

// Execute 按订单类型撮合：
//
//	MARKET  必成，成交价 = close × (1 ± slippage)，2 位小数；
//	LIMIT   仅在可成交（marketable）时按限价原价成交，零滑点；
//	STOP    触发后按市价逻辑成交（含滑点）。
//
// 未成交返回显式的 NotFilled，不用 nil 兼做其他含义。
// 返回 error 仅表示内部故障（ExecutionError），调用方应中止本次回测。
func (s *Simulator) Execute(order types.Order, bar types.Bar, date time.Time) (types.FillResult, error) {
	if order.Quantity <= 0 {
		return types.FillResult{}, types.NewExecutionError("execute",
			fmt.Errorf("订单数量非法: %d", order.Quantity))
	}
	current := bar.Close
	if !current.IsPositive() {
		return types.FillResult{}, types.NewExecutionError("execute",
			fmt.Errorf("当前价非法: %s", current))
	}

	var fillPrice decimal.Decimal
	switch order.Type {
	case types.OrderTypeMarket:
		fillPrice = s.slippedPrice(current, order.Action)
	case types.OrderTypeLimit:
		if !order.Price.IsPositive() {
			return types.FillResult{}, types.NewExecutionError("execute",
				fmt.Errorf("限价单缺少价格"))
		}
		if !limitMarketable(order.Action, order.Price, current) {
			return types.NotFilled(fmt.Sprintf("限价 %s 不可成交（现价 %s）",
				order.Price.StringFixed(2), current.StringFixed(2))), nil
		}
		// 限价单按限价原价成交，零滑点。
		fillPrice = order.Price
	case types.OrderTypeStop:
		if !order.Price.IsPositive() {
			return types.FillResult{}, types.NewExecutionError("execute",
				fmt.Errorf("止损单缺少触发价"))
		}
		if !stopTriggered(order.Action, order.Price, current) {
			return types.NotFilled(fmt.Sprintf("止损价 %s 未触发（现价 %s）",
				order.Price.StringFixed(2), current.StringFixed(2))), nil
		}
		fillPrice = s.slippedPrice(current, order.Action)
	default:
		return types.FillResult{}, types.NewExecutionError("execute",
			fmt.Errorf("未知订单类型: %s", order.Type))
	}

	qty := decimal.NewFromInt(order.Quantity)
	if bar.Volume > 0 {
		limit := decimal.NewFromInt(bar.Volume).Mul(decimal.NewFromFloat(s.participation))
		if qty.GreaterThan(limit) {
			logger.Warnf("[execution] %s 订单量 %d 超过当日成交量 %.0f%% 上限，仍全额成交",
				order.Symbol, order.Quantity, s.participation*100)
		}
	}

	slippageCost := fillPrice.Sub(current).Abs().Mul(qty).Round(2)
	if order.Type == types.OrderTypeLimit {
		// 限价单按限价原价成交，不产生滑点成本。
		slippageCost = decimal.Zero
	}
	fill := &types.Fill{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Date:         date,
		Action:       order.Action,
		Quantity:     order.Quantity,
		Price:        fillPrice,
		Commission:   s.commission(qty, fillPrice),
		SlippageCost: slippageCost,
		Reason:       order.Reason,
	}
	return types.Filled(fill), nil
}

// slippedPrice 市价/触发后的成交价：BUY 向上滑、SELL 向下滑，2 位小数。
func (s *Simulator) slippedPrice(current decimal.Decimal, action types.OrderAction) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if action == types.ActionBuy {
		return current.Mul(one.Add(s.slippageRate)).Round(2)
	}
	return current.Mul(one.Sub(s.slippageRate)).Round(2)
}

// commission = max(qty × price × rate, 最低佣金)，2 位小数，买卖双边收取。
func (s *Simulator) commission(qty, price decimal.Decimal) decimal.Decimal {
	c := qty.Mul(price).Mul(s.commissionRate)
	if c.LessThan(s.minCommission) {
		c = s.minCommission
	}
	return c.Round(2)
}

func limitMarketable(action types.OrderAction, limit, current decimal.Decimal) bool {
	if action == types.ActionBuy {
		return limit.GreaterThanOrEqual(current)
	}
	return limit.LessThanOrEqual(current)
}

func stopTriggered(action types.OrderAction, stop, current decimal.Decimal) bool {
	if action == types.ActionBuy {
		return current.GreaterThanOrEqual(stop)
	}
	return current.LessThanOrEqual(stop)
}
