package strategy

import (
	"fmt"

	"quantbt/internal/types"
)

// maCross 动量策略：快线上穿慢线做多，下穿离场。
type maCross struct {
	fast, slow int
	history    *History
}

var maCrossSchema = []ParameterSpec{
	{Name: "fast_period", Type: "int", Default: 10, Min: 2, Max: 120, Step: 1, Description: "快线 SMA 周期"},
	{Name: "slow_period", Type: "int", Default: 30, Min: 2, Max: 250, Step: 5, Description: "慢线 SMA 周期"},
}

func init() {
	Register("ma_cross", maCrossSchema, func(p Params) Strategy {
		return &maCross{
			fast:    int(p["fast_period"]),
			slow:    int(p["slow_period"]),
			history: NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *maCross) Name() string                   { return "ma_cross" }
func (s *maCross) DefaultParameters() Params      { return DefaultsOf(maCrossSchema) }
func (s *maCross) ParameterSchema() []ParameterSpec { return maCrossSchema }

func (s *maCross) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	closes := s.history.Closes(symbol)
	fast, okF := SMA(closes, s.fast)
	slow, okS := SMA(closes, s.slow)
	prevFast, okPF := SMA(closes[:len(closes)-1], s.fast)
	prevSlow, okPS := SMA(closes[:len(closes)-1], s.slow)
	if !okF || !okS || !okPF || !okPS {
		return nil
	}
	holding := position != nil && position.Quantity > 0
	if prevFast <= prevSlow && fast > slow && !holding {
		spread := (fast - slow) / slow
		return longSignal(symbol, 0.5+spread*20,
			fmt.Sprintf("sma%d 上穿 sma%d", s.fast, s.slow))
	}
	if prevFast >= prevSlow && fast < slow && holding {
		return exitSignal(symbol, fmt.Sprintf("sma%d 下穿 sma%d", s.fast, s.slow))
	}
	return nil
}
