package strategy

import (
	"quantbt/internal/types"
)

// bollingerBreakout 布林上轨突破追势，回落中轨离场。
type bollingerBreakout struct {
	period  int
	stddev  float64
	history *History
}

var bollingerBreakoutSchema = []ParameterSpec{
	{Name: "bb_period", Type: "int", Default: 20, Min: 5, Max: 120, Step: 5, Description: "布林带周期"},
	{Name: "bb_stddev", Type: "float", Default: 2.0, Min: 0.5, Max: 4.0, Step: 0.5, Description: "布林带标准差倍数"},
}

func init() {
	Register("bollinger_breakout", bollingerBreakoutSchema, func(p Params) Strategy {
		return &bollingerBreakout{
			period:  int(p["bb_period"]),
			stddev:  p["bb_stddev"],
			history: NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *bollingerBreakout) Name() string                     { return "bollinger_breakout" }
func (s *bollingerBreakout) DefaultParameters() Params        { return DefaultsOf(bollingerBreakoutSchema) }
func (s *bollingerBreakout) ParameterSchema() []ParameterSpec { return bollingerBreakoutSchema }

func (s *bollingerBreakout) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	mid, upper, _, ok := Bollinger(s.history.Closes(symbol), s.period, s.stddev)
	if !ok {
		return nil
	}
	price := bar.Close.InexactFloat64()
	holding := position != nil && position.Quantity > 0
	if !holding && price > upper {
		band := upper - mid
		strength := 0.6
		if band > 0 {
			strength = 0.6 + clamp01((price-upper)/band)*0.4
		}
		return longSignal(symbol, strength, "close 突破布林上轨")
	}
	if holding && price < mid {
		return exitSignal(symbol, "close 回落布林中轨下方")
	}
	return nil
}
