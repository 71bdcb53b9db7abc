package strategy

import (
	"fmt"
	"math"

	"quantbt/internal/types"
)

// grid 网格策略：以锚定均线为中枢，价格每下探一格买入一份，
// 回到上方格位离场。
type grid struct {
	anchorPeriod int
	stepPct      float64
	levels       int
	history      *History
}

var gridSchema = []ParameterSpec{
	{Name: "anchor_period", Type: "int", Default: 20, Min: 5, Max: 120, Step: 5, Description: "锚定 SMA 周期"},
	{Name: "grid_step_pct", Type: "float", Default: 0.03, Min: 0.005, Max: 0.2, Step: 0.005, Description: "单格宽度（比例）"},
	{Name: "grid_levels", Type: "int", Default: 5, Min: 1, Max: 20, Step: 1, Description: "向下网格层数"},
}

func init() {
	Register("grid", gridSchema, func(p Params) Strategy {
		return &grid{
			anchorPeriod: int(p["anchor_period"]),
			stepPct:      p["grid_step_pct"],
			levels:       int(p["grid_levels"]),
			history:      NewHistory(DefaultMaxHistory),
		}
	})
}

func (s *grid) Name() string                     { return "grid" }
func (s *grid) DefaultParameters() Params        { return DefaultsOf(gridSchema) }
func (s *grid) ParameterSchema() []ParameterSpec { return gridSchema }

func (s *grid) GenerateSignal(symbol string, bar types.Bar, position *types.Position) *types.Signal {
	s.history.Append(bar)
	anchor, ok := SMA(s.history.Closes(symbol), s.anchorPeriod)
	if !ok || anchor <= 0 {
		return nil
	}
	price := bar.Close.InexactFloat64()
	// 负数表示价格在锚线下方第几格。
	level := int(math.Floor((price - anchor) / (anchor * s.stepPct)))
	holding := position != nil && position.Quantity > 0
	if !holding && level < 0 && -level <= s.levels {
		strength := float64(-level) / float64(s.levels)
		return longSignal(symbol, 0.3+strength*0.7,
			fmt.Sprintf("price 下探网格第 %d 层", -level))
	}
	if holding && level >= 1 {
		return exitSignal(symbol, fmt.Sprintf("price 回升至网格第 %d 层", level))
	}
	return nil
}
