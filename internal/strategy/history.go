package strategy

import (
	"quantbt/internal/types"
)

// History 维护每个 symbol 的有界滚动历史，超出上限时淘汰最旧的 Bar。
// 各策略实例独享自己的 History，寻优并行时不得跨组合共享。
type History struct {
	max  int
	bars map[string][]types.Bar
}

// NewHistory 创建历史缓存，max<=0 时取 DefaultMaxHistory。
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{max: max, bars: make(map[string][]types.Bar)}
}

// Append 追加一根 K 线并按上限淘汰。
func (h *History) Append(bar types.Bar) {
	buf := h.bars[bar.Symbol]
	buf = append(buf, bar)
	if len(buf) > h.max {
		copy(buf, buf[1:])
		buf = buf[:h.max]
	}
	h.bars[bar.Symbol] = buf
}

// Len 返回某 symbol 当前缓存长度。
func (h *History) Len(symbol string) int {
	return len(h.bars[symbol])
}

// Bars 返回只读快照（调用方不得修改）。
func (h *History) Bars(symbol string) []types.Bar {
	return h.bars[symbol]
}

// Closes 返回收盘价序列（float64，供指标计算）。
func (h *History) Closes(symbol string) []float64 {
	buf := h.bars[symbol]
	out := make([]float64, len(buf))
	for i, b := range buf {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Highs 返回最高价序列。
func (h *History) Highs(symbol string) []float64 {
	buf := h.bars[symbol]
	out := make([]float64, len(buf))
	for i, b := range buf {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

// Lows 返回最低价序列。
func (h *History) Lows(symbol string) []float64 {
	buf := h.bars[symbol]
	out := make([]float64, len(buf))
	for i, b := range buf {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}
