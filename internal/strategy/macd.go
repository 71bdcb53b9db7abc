package strategy

import (
	"quantbt/internal/types"
)

// macdStrategy 柱状图翻红做多、翻绿离场。
type macdStrategy struct {
	fast, slow, signal int
	history            *History
}

var macdSchema = []ParameterSpec{
	{Name: "fast_period", Type: "int", Default: 12, Min: 2, Max: 60, Step: 2, Description: "快线 EMA 周期"},
	{Name: "slow_period", Type: "int", Default: 26, Min: 5, Max: 120, Step: 2, Description: "慢线 EMA 周期"},
	{Name: "signal_period", Type: "int", Default: 9, Min: 2, Max: 60, Step: 1, Description: "信号线周期"},
}

func init() {
	Register("macd", macdSchema, func(p Params) Strategy {
		return &macdStrategy{
			fast:    int(p["fast_period"]),
			slow:    int(p["slow_period"]),
			signal:  int(p["signal_period"]),
			history: NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *macdStrategy) Name() string                     { return "macd" }
func (s *macdStrategy) DefaultParameters() Params        { return DefaultsOf(macdSchema) }
func (s *macdStrategy) ParameterSchema() []ParameterSpec { return macdSchema }

func (s *macdStrategy) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	closes := s.history.Closes(symbol)
	_, _, hist, ok := MACD(closes, s.fast, s.slow, s.signal)
	_, _, prevHist, okPrev := MACD(closes[:len(closes)-1], s.fast, s.slow, s.signal)
	if !ok || !okPrev {
		return nil
	}
	holding := position != nil && position.Quantity > 0
	if !holding && prevHist <= 0 && hist > 0 {
		price := bar.Close.InexactFloat64()
		strength := 0.5
		if price > 0 {
			strength = 0.5 + clamp01(hist/price*100)*0.5
		}
		return longSignal(symbol, strength, "macd 柱由负转正")
	}
	if holding && prevHist >= 0 && hist < 0 {
		return exitSignal(symbol, "macd 柱由正转负")
	}
	return nil
}
