package optimize

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig 是独立寻优定义文件的结构，
// 便于同一份回测配置套用多份网格。
type FileConfig struct {
	Spaces         []ParameterSpace `yaml:"spaces"`
	Objective      string           `yaml:"objective"`
	Minimize       bool             `yaml:"minimize"`
	Workers        int              `yaml:"workers"`
	EarlyStopScore *float64         `yaml:"early_stop_score"`
}

// LoadFile 读取 YAML 寻优定义，未知字段视为错误。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read optimize config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse optimize config failed: %w", err)
	}
	return Config{
		Spaces:         cfg.Spaces,
		Objective:      cfg.Objective,
		Minimize:       cfg.Minimize,
		Workers:        cfg.Workers,
		EarlyStopScore: cfg.EarlyStopScore,
	}, nil
}
