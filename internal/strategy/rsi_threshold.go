package strategy

import (
	"fmt"

	"quantbt/internal/types"
)

// rsiThreshold 单指标阈值规则：RSI 超卖买入、超买离场。
type rsiThreshold struct {
	period    int
	buyBelow  float64
	sellAbove float64
	history   *History
}

var rsiThresholdSchema = []ParameterSpec{
	{Name: "rsi_period", Type: "int", Default: 14, Min: 2, Max: 60, Step: 2, Description: "RSI 周期"},
	{Name: "buy_below", Type: "float", Default: 30, Min: 5, Max: 50, Step: 5, Description: "买入阈值"},
	{Name: "sell_above", Type: "float", Default: 70, Min: 50, Max: 95, Step: 5, Description: "卖出阈值"},
}

func init() {
	Register("rsi_threshold", rsiThresholdSchema, func(p Params) Strategy {
		return &rsiThreshold{
			period:    int(p["rsi_period"]),
			buyBelow:  p["buy_below"],
			sellAbove: p["sell_above"],
			history:   NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *rsiThreshold) Name() string                     { return "rsi_threshold" }
func (s *rsiThreshold) DefaultParameters() Params        { return DefaultsOf(rsiThresholdSchema) }
func (s *rsiThreshold) ParameterSchema() []ParameterSpec { return rsiThresholdSchema }

func (s *rsiThreshold) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	rsi, ok := RSI(s.history.Closes(symbol), s.period)
	if !ok {
		return nil
	}
	holding := position != nil && position.Quantity > 0
	if !holding && rsi < s.buyBelow {
		return longSignal(symbol, 0.4+clamp01((s.buyBelow-rsi)/s.buyBelow)*0.6,
			fmt.Sprintf("rsi=%.1f 低于 %.0f", rsi, s.buyBelow))
	}
	if holding && rsi > s.sellAbove {
		return exitSignal(symbol, fmt.Sprintf("rsi=%.1f 高于 %.0f", rsi, s.sellAbove))
	}
	return nil
}
