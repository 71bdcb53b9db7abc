package strategy

import (
	"sort"
	"sync"

	"quantbt/internal/types"
)

// Factory 按已合并校验过的参数构造策略实例。
type Factory func(params Params) Strategy

type entry struct {
	schema  []ParameterSpec
	factory Factory
}

var (
	regMu    sync.RWMutex
	registry = make(map[string]entry)
)

// Register 在 init 阶段登记策略变体，重名直接 panic（属于编码错误）。
func Register(name string, schema []ParameterSpec, factory Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("strategy 重复注册: " + name)
	}
	registry[name] = entry{schema: schema, factory: factory}
}

// New 构造策略：校验覆盖参数、叠加默认值，再交给工厂。
// 未知策略名或非法参数返回 ConfigurationError。
func New(name string, overrides Params) (Strategy, error) {
	regMu.RLock()
	e, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, types.NewConfigurationError("strategy", "未知策略: %s", name)
	}
	if err := ValidateParams(name, e.schema, overrides); err != nil {
		return nil, err
	}
	return e.factory(MergeDefaults(e.schema, overrides)), nil
}

// Names 返回全部已注册策略名（升序）。
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SchemaFor 返回某策略的参数 schema。
func SchemaFor(name string) ([]ParameterSpec, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, types.NewConfigurationError("strategy", "未知策略: %s", name)
	}
	out := make([]ParameterSpec, len(e.schema))
	copy(out, e.schema)
	return out, nil
}

// DefaultsFor 返回某策略的默认参数。
func DefaultsFor(name string) (Params, error) {
	specs, err := SchemaFor(name)
	if err != nil {
		return nil, err
	}
	return DefaultsOf(specs), nil
}
