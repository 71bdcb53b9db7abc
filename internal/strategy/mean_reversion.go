package strategy

import (
	"fmt"

	"quantbt/internal/types"
)

// meanReversion 均值回归：收盘跌破布林下轨且 RSI 超卖时买入，
// 回到中轨离场。
type meanReversion struct {
	period    int
	stddev    float64
	rsiPeriod int
	oversold  float64
	history   *History
}

var meanReversionSchema = []ParameterSpec{
	{Name: "bb_period", Type: "int", Default: 20, Min: 5, Max: 120, Step: 5, Description: "布林带周期"},
	{Name: "bb_stddev", Type: "float", Default: 2.0, Min: 0.5, Max: 4.0, Step: 0.5, Description: "布林带标准差倍数"},
	{Name: "rsi_period", Type: "int", Default: 14, Min: 2, Max: 60, Step: 2, Description: "RSI 周期"},
	{Name: "rsi_oversold", Type: "float", Default: 30, Min: 5, Max: 50, Step: 5, Description: "RSI 超卖阈值"},
}

func init() {
	Register("mean_reversion", meanReversionSchema, func(p Params) Strategy {
		return &meanReversion{
			period:    int(p["bb_period"]),
			stddev:    p["bb_stddev"],
			rsiPeriod: int(p["rsi_period"]),
			oversold:  p["rsi_oversold"],
			history:   NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *meanReversion) Name() string                     { return "mean_reversion" }
func (s *meanReversion) DefaultParameters() Params        { return DefaultsOf(meanReversionSchema) }
func (s *meanReversion) ParameterSchema() []ParameterSpec { return meanReversionSchema }

func (s *meanReversion) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	closes := s.history.Closes(symbol)
	mid, _, lower, okBB := Bollinger(closes, s.period, s.stddev)
	rsi, okRSI := RSI(closes, s.rsiPeriod)
	if !okBB || !okRSI {
		return nil
	}
	price := bar.Close.InexactFloat64()
	holding := position != nil && position.Quantity > 0
	if !holding && price < lower && rsi < s.oversold {
		depth := (lower - price) / lower
		return longSignal(symbol, 0.5+depth*10+clamp01((s.oversold-rsi)/s.oversold)*0.3,
			fmt.Sprintf("close < bb_lower 且 rsi=%.1f 超卖", rsi))
	}
	if holding && price >= mid {
		return exitSignal(symbol, "close 回到布林中轨")
	}
	return nil
}
