package strategy

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"quantbt/internal/types"
)

// Params 是策略的数值参数表，构造时按 schema 校验，使用阶段不再检查。
type Params map[string]float64

// Clone 深拷贝，寻优并行时每个组合必须持有独立副本。
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParameterSpec 描述单个参数：名称、类型、默认值与取值范围。
// Step 供寻优器推导网格，直接跑回测时不使用。
type ParameterSpec struct {
	Name        string  `json:"name" yaml:"name"`
	Type        string  `json:"type" yaml:"type"` // int / float
	Default     float64 `json:"default" yaml:"default"`
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	Step        float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultsOf 把 schema 的默认值展开成 Params。
func DefaultsOf(specs []ParameterSpec) Params {
	out := make(Params, len(specs))
	for _, sp := range specs {
		out[sp.Name] = sp.Default
	}
	return out
}

// MergeDefaults 以默认值为底叠加覆盖项，不改入参。
func MergeDefaults(specs []ParameterSpec, overrides Params) Params {
	out := DefaultsOf(specs)
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// compileParamSchema 把 ParameterSpec 列表编译成 JSON Schema，
// 未知键与越界值都在构造阶段拒绝。
func compileParamSchema(specs []ParameterSpec) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(specs))
	for _, sp := range specs {
		prop := map[string]any{
			"type":    "number",
			"minimum": sp.Min,
			"maximum": sp.Max,
		}
		if strings.EqualFold(sp.Type, "int") {
			prop["multipleOf"] = 1
		}
		props[sp.Name] = prop
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("params.json")
}

// ValidateParams 校验覆盖项；返回 ConfigurationError。
func ValidateParams(name string, specs []ParameterSpec, overrides Params) error {
	for k, v := range overrides {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.NewConfigurationError(name+"."+k, "参数必须是有限数值")
		}
	}
	schema, err := compileParamSchema(specs)
	if err != nil {
		return types.NewConfigurationError(name, "参数 schema 编译失败: %v", err)
	}
	doc := make(map[string]any, len(overrides))
	for k, v := range overrides {
		doc[k] = v
	}
	if err := schema.Validate(doc); err != nil {
		return types.NewConfigurationError(name, "参数校验失败: %v", err)
	}
	return nil
}
