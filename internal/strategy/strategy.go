package strategy

import (
	"quantbt/internal/types"
)

// DefaultMaxHistory 是每个 symbol 滚动历史的默认上限。
const DefaultMaxHistory = 500

// Strategy 是所有策略变体的统一能力集。
// GenerateSignal 返回 nil 表示本根 K 线无操作；
// 指标历史不足时同样返回 nil，绝不把“未定义”当 0 用。
type Strategy interface {
	Name() string
	GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal
	DefaultParameters() Params
	ParameterSchema() []ParameterSpec
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func longSignal(symbol string, strength float64, reason string) *types.Signal {
	return &types.Signal{
		Symbol:    symbol,
		Direction: types.DirectionLong,
		Strength:  clamp01(strength),
		Reason:    reason,
	}
}

func exitSignal(symbol, reason string) *types.Signal {
	return &types.Signal{
		Symbol:    symbol,
		Direction: types.DirectionExit,
		Strength:  1,
		Reason:    reason,
	}
}
