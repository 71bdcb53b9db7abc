package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantbt/internal/strategy"
)

func resultOf(fast, slow, score float64) Result {
	return Result{
		Parameters: strategy.Params{"fast": fast, "slow": slow},
		Score:      score,
	}
}

func TestSensitivityAveragesPerValue(t *testing.T) {
	results := []Result{
		resultOf(5, 20, 1.0),
		resultOf(5, 40, 3.0),
		resultOf(10, 20, 2.0),
	}
	out := Sensitivity(results, "fast")
	assert.InDelta(t, 2.0, out[5], 1e-9)
	assert.InDelta(t, 2.0, out[10], 1e-9)

	// 不存在的参数得到空表
	assert.Empty(t, Sensitivity(results, "missing"))
}

func TestHeatmapAggregatesAndSorts(t *testing.T) {
	results := []Result{
		resultOf(10, 20, 2.0),
		resultOf(5, 20, 1.0),
		resultOf(5, 20, 3.0),
	}
	cells := Heatmap(results, "fast", "slow")
	assert.Len(t, cells, 2)

	// (5,20) 在前且取均值
	assert.Equal(t, 5.0, cells[0].X)
	assert.InDelta(t, 2.0, cells[0].AvgScore, 1e-9)
	assert.Equal(t, 2, cells[0].Count)
	assert.Equal(t, 10.0, cells[1].X)
}

func TestTopNDistribution(t *testing.T) {
	results := []Result{
		resultOf(5, 20, 3.0),
		resultOf(5, 40, 2.0),
		resultOf(10, 20, 1.0),
	}
	dist := TopNDistribution(results, "fast", 2)
	assert.Equal(t, map[float64]int{5: 2}, dist)

	// n 越界取全部
	dist = TopNDistribution(results, "fast", 99)
	assert.Equal(t, map[float64]int{5: 2, 10: 1}, dist)
}
