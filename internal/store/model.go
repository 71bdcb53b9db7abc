package store

import (
	"gorm.io/datatypes"
)

// RunModel 是一条已完成（或失败）回测的落库记录。
// 参数与指标整体存 JSON，查询维度只保留常用的几个标量列。
type RunModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Strategy       string         `gorm:"column:strategy;index"`
	Symbols        string         `gorm:"column:symbols"`
	StartTS        int64          `gorm:"column:start_ts"`
	EndTS          int64          `gorm:"column:end_ts"`
	InitialCapital float64        `gorm:"column:initial_capital"`
	FinalCapital   float64        `gorm:"column:final_capital"`
	TotalReturn    float64        `gorm:"column:total_return"`
	SharpeRatio    float64        `gorm:"column:sharpe_ratio"`
	MaxDrawdown    float64        `gorm:"column:max_drawdown"`
	TradeCount     int            `gorm:"column:trade_count"`
	Status         string         `gorm:"column:status"`
	Message        string         `gorm:"column:message"`
	ParamsJSON     datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	MetricsJSON    datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	EquityJSON     datatypes.JSON `gorm:"column:equity_json;type:TEXT"`
	TradesJSON     datatypes.JSON `gorm:"column:trades_json;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (RunModel) TableName() string { return "backtest_runs" }

// OptimizationModel 是一次寻优任务的落库记录。
type OptimizationModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Strategy       string         `gorm:"column:strategy;index"`
	Objective      string         `gorm:"column:objective"`
	Minimize       bool           `gorm:"column:minimize"`
	TotalCombos    int            `gorm:"column:total_combos"`
	Completed      int            `gorm:"column:completed"`
	Status         string         `gorm:"column:status"`
	Message        string         `gorm:"column:message"`
	BestScore      float64        `gorm:"column:best_score"`
	BestParamsJSON datatypes.JSON `gorm:"column:best_params_json;type:TEXT"`
	SpacesJSON     datatypes.JSON `gorm:"column:spaces_json;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
}

func (OptimizationModel) TableName() string { return "optimizations" }

// OptimizationResultModel 是寻优网格里单个组合的结果，按 rank 排序读取。
type OptimizationResultModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	JobID       string         `gorm:"column:job_id;index"`
	Rank        int            `gorm:"column:rank"`
	Score       float64        `gorm:"column:score"`
	ParamsJSON  datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	MetricsJSON datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	RunError    string         `gorm:"column:run_error"`
}

func (OptimizationResultModel) TableName() string { return "optimization_results" }
