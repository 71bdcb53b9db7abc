package strategy

import (
	"fmt"

	"quantbt/internal/types"
)

// dualMA 双 EMA 趋势跟随：价格站上快慢两线做多，跌破快线离场。
type dualMA struct {
	fast, slow int
	history    *History
}

var dualMASchema = []ParameterSpec{
	{Name: "fast_period", Type: "int", Default: 12, Min: 2, Max: 120, Step: 2, Description: "快线 EMA 周期"},
	{Name: "slow_period", Type: "int", Default: 26, Min: 5, Max: 250, Step: 5, Description: "慢线 EMA 周期"},
}

func init() {
	Register("dual_ma", dualMASchema, func(p Params) Strategy {
		return &dualMA{
			fast:    int(p["fast_period"]),
			slow:    int(p["slow_period"]),
			history: NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *dualMA) Name() string                     { return "dual_ma" }
func (s *dualMA) DefaultParameters() Params        { return DefaultsOf(dualMASchema) }
func (s *dualMA) ParameterSchema() []ParameterSpec { return dualMASchema }

func (s *dualMA) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	closes := s.history.Closes(symbol)
	fast, okF := EMA(closes, s.fast)
	slow, okS := EMA(closes, s.slow)
	if !okF || !okS {
		return nil
	}
	price := bar.Close.InexactFloat64()
	holding := position != nil && position.Quantity > 0
	if !holding && price > fast && fast > slow {
		strength := 0.4 + clamp01((fast-slow)/slow*15)
		return longSignal(symbol, strength,
			fmt.Sprintf("price > ema%d > ema%d", s.fast, s.slow))
	}
	if holding && price < fast {
		return exitSignal(symbol, fmt.Sprintf("price 跌破 ema%d", s.fast))
	}
	return nil
}
