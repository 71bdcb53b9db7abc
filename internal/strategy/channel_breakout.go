package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quantbt/internal/types"
)

// channelBreakout 唐奇安通道突破，附带 ATR 止损价供风控参考。
type channelBreakout struct {
	period    int
	atrPeriod int
	atrMult   float64
	history   *History
}

var channelBreakoutSchema = []ParameterSpec{
	{Name: "channel_period", Type: "int", Default: 20, Min: 5, Max: 250, Step: 5, Description: "通道周期"},
	{Name: "atr_period", Type: "int", Default: 14, Min: 2, Max: 60, Step: 2, Description: "ATR 周期"},
	{Name: "atr_multiplier", Type: "float", Default: 2.0, Min: 0.5, Max: 6.0, Step: 0.5, Description: "止损 ATR 倍数"},
}

func init() {
	Register("channel_breakout", channelBreakoutSchema, func(p Params) Strategy {
		return &channelBreakout{
			period:    int(p["channel_period"]),
			atrPeriod: int(p["atr_period"]),
			atrMult:   p["atr_multiplier"],
			history:   NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *channelBreakout) Name() string                     { return "channel_breakout" }
func (s *channelBreakout) DefaultParameters() Params        { return DefaultsOf(channelBreakoutSchema) }
func (s *channelBreakout) ParameterSchema() []ParameterSpec { return channelBreakoutSchema }

func (s *channelBreakout) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	highs := s.history.Highs(symbol)
	lows := s.history.Lows(symbol)
	closes := s.history.Closes(symbol)
	upper, okU := HighestHigh(highs, s.period, 1)
	lower, okL := LowestLow(lows, s.period, 1)
	atr, okA := ATR(highs, lows, closes, s.atrPeriod)
	if !okU || !okL || !okA {
		return nil
	}
	price := bar.Close.InexactFloat64()
	middle := (upper + lower) / 2
	holding := position != nil && position.Quantity > 0
	if !holding && price > upper {
		return longSignal(symbol, 0.6+clamp01((price-upper)/atr)*0.4,
			fmt.Sprintf("close 突破 %d 日通道上沿", s.period))
	}
	if holding {
		if price < middle {
			return exitSignal(symbol, "close 跌破通道中轴")
		}
		// 通道内持仓挂 ATR 保护性止损：以昨收减 ATR 倍数为触发价，
		// 急跌日触发成交，否则当日不成交。
		prevClose := closes[len(closes)-2]
		if stop := prevClose - s.atrMult*atr; stop > 0 {
			sig := exitSignal(symbol, "ATR 保护性止损")
			sig.StopPrice = decimal.NewFromFloat(stop).Round(2)
			return sig
		}
	}
	return nil
}
