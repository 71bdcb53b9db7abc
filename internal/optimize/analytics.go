package optimize

import (
	"sort"
)

// 本文件全部是对已完成结果的只读分析，不触发任何回测。

// Sensitivity 计算单参数边际敏感度：每个候选值的平均得分。
func Sensitivity(results []Result, param string) map[float64]float64 {
	sums := make(map[float64]float64)
	counts := make(map[float64]int)
	for _, r := range results {
		v, ok := r.Parameters[param]
		if !ok {
			continue
		}
		sums[v] += r.Score
		counts[v]++
	}
	out := make(map[float64]float64, len(sums))
	for v, sum := range sums {
		out[v] = sum / float64(counts[v])
	}
	return out
}

// HeatmapCell 是二维热力图上的一个格子。
type HeatmapCell struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	AvgScore float64 `json:"avg_score"`
	Count    int     `json:"count"`
}

// Heatmap 对两个参数做二维聚合：每对取值组合的平均得分。
// 输出按 (X, Y) 升序，便于直接渲染。
func Heatmap(results []Result, paramX, paramY string) []HeatmapCell {
	type key struct{ x, y float64 }
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, r := range results {
		x, okX := r.Parameters[paramX]
		y, okY := r.Parameters[paramY]
		if !okX || !okY {
			continue
		}
		k := key{x, y}
		sums[k] += r.Score
		counts[k]++
	}
	out := make([]HeatmapCell, 0, len(sums))
	for k, sum := range sums {
		out = append(out, HeatmapCell{
			X:        k.x,
			Y:        k.y,
			AvgScore: sum / float64(counts[k]),
			Count:    counts[k],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// TopNDistribution 统计排名前 n 的结果里某参数各取值出现的次数。
// 入参应当是 Optimize 返回的已排序切片。
func TopNDistribution(results []Result, param string, n int) map[float64]int {
	if n <= 0 || n > len(results) {
		n = len(results)
	}
	out := make(map[float64]int)
	for _, r := range results[:n] {
		if v, ok := r.Parameters[param]; ok {
			out[v]++
		}
	}
	return out
}
