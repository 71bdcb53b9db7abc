package strategy

import (
	"fmt"

	"quantbt/internal/types"
)

// breakout 突破策略：收盘创出 N 日新高做多，跌破 M 日新低离场。
type breakout struct {
	entryWindow int
	exitWindow  int
	history     *History
}

var breakoutSchema = []ParameterSpec{
	{Name: "entry_window", Type: "int", Default: 20, Min: 5, Max: 250, Step: 5, Description: "入场回看窗口（日）"},
	{Name: "exit_window", Type: "int", Default: 10, Min: 2, Max: 120, Step: 2, Description: "离场回看窗口（日）"},
}

func init() {
	Register("breakout", breakoutSchema, func(p Params) Strategy {
		return &breakout{
			entryWindow: int(p["entry_window"]),
			exitWindow:  int(p["exit_window"]),
			history:     NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *breakout) Name() string                     { return "breakout" }
func (s *breakout) DefaultParameters() Params        { return DefaultsOf(breakoutSchema) }
func (s *breakout) ParameterSchema() []ParameterSpec { return breakoutSchema }

func (s *breakout) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	highs := s.history.Highs(symbol)
	lows := s.history.Lows(symbol)
	// 跳过当前这根，突破要和“之前的”极值比。
	hh, okH := HighestHigh(highs, s.entryWindow, 1)
	ll, okL := LowestLow(lows, s.exitWindow, 1)
	if !okH || !okL {
		return nil
	}
	price := bar.Close.InexactFloat64()
	holding := position != nil && position.Quantity > 0
	if !holding && price > hh {
		margin := (price - hh) / hh
		return longSignal(symbol, 0.5+margin*20,
			fmt.Sprintf("close 突破 %d 日高点", s.entryWindow))
	}
	if holding && price < ll {
		return exitSignal(symbol, fmt.Sprintf("close 跌破 %d 日低点", s.exitWindow))
	}
	return nil
}
