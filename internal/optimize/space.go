package optimize

import (
	"math"
	"sort"

	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

// ParameterSpace 描述单个参数的候选值：显式列表优先，
// 否则由 min/max/step 推导离散网格。
type ParameterSpace struct {
	Name   string    `json:"name" yaml:"name" mapstructure:"name"`
	Min    float64   `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max    float64   `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
	Step   float64   `json:"step,omitempty" yaml:"step,omitempty" mapstructure:"step"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty" mapstructure:"values"`
}

// Candidates 展开候选值，非法定义返回 ConfigurationError。
func (s ParameterSpace) Candidates() ([]float64, error) {
	if s.Name == "" {
		return nil, types.NewConfigurationError("parameter_space", "参数名不能为空")
	}
	if len(s.Values) > 0 {
		out := append([]float64{}, s.Values...)
		for _, v := range out {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, types.NewConfigurationError(s.Name, "候选值必须是有限数值")
			}
		}
		return out, nil
	}
	if s.Step <= 0 {
		return nil, types.NewConfigurationError(s.Name, "step 必须为正，拿到 %v", s.Step)
	}
	if s.Max < s.Min {
		return nil, types.NewConfigurationError(s.Name, "max 不能小于 min")
	}
	var out []float64
	// 容一点浮点误差，保证 max 落在网格上时被包含。
	for v := s.Min; v <= s.Max+s.Step*1e-9; v += s.Step {
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, types.NewConfigurationError(s.Name, "网格为空")
	}
	return out, nil
}

// SpacesFromSchema 从策略参数 schema 直接推导参数空间，
// 供“对整个 schema 做一轮网格寻优”的场景使用。
func SpacesFromSchema(specs []strategy.ParameterSpec) []ParameterSpace {
	out := make([]ParameterSpace, 0, len(specs))
	for _, sp := range specs {
		step := sp.Step
		if step <= 0 {
			step = (sp.Max - sp.Min) / 10
		}
		out = append(out, ParameterSpace{Name: sp.Name, Min: sp.Min, Max: sp.Max, Step: step})
	}
	return out
}

// EnumerateGrid 按名字典序展开笛卡尔积，顺序完全确定。
func EnumerateGrid(spaces []ParameterSpace) ([]strategy.Params, error) {
	if len(spaces) == 0 {
		return nil, types.NewConfigurationError("parameter_space", "至少需要一个参数空间")
	}
	ordered := append([]ParameterSpace{}, spaces...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	names := make([]string, len(ordered))
	candidates := make([][]float64, len(ordered))
	total := 1
	for i, sp := range ordered {
		vals, err := sp.Candidates()
		if err != nil {
			return nil, err
		}
		// 重名空间会把组合数虚增成重复结果，直接拒绝。
		if i > 0 && sp.Name == ordered[i-1].Name {
			return nil, types.NewConfigurationError(sp.Name, "参数空间重名")
		}
		names[i] = sp.Name
		candidates[i] = vals
		total *= len(vals)
	}
	out := make([]strategy.Params, 0, total)
	idx := make([]int, len(ordered))
	for {
		combo := make(strategy.Params, len(ordered))
		for i, name := range names {
			combo[name] = candidates[i][idx[i]]
		}
		out = append(out, combo)
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(candidates[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out, nil
}
