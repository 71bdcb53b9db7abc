package optimize

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"quantbt/internal/backtest"
	"quantbt/internal/logger"
	"quantbt/internal/market"
	"quantbt/internal/metrics"
	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

// Config 控制一次网格寻优。
type Config struct {
	Spaces []ParameterSpace `json:"spaces" mapstructure:"spaces"`
	// Objective 为 metrics 字段名，默认 sharpe_ratio。
	Objective string `json:"objective" mapstructure:"objective"`
	// Minimize 为 true 时按越小越好排序（如 max_drawdown）。
	Minimize bool `json:"minimize" mapstructure:"minimize"`
	// Workers 为并行 worker 数，<=1 表示串行（完全确定）。
	Workers int `json:"workers" mapstructure:"workers"`
	// EarlyStopScore 非空时：best-so-far 达标即可提前收敛，
	// 已完成的结果仍然有效。
	EarlyStopScore *float64 `json:"early_stop_score,omitempty" mapstructure:"early_stop_score"`
}

// Result 是单个参数组合的产出。
type Result struct {
	Parameters strategy.Params `json:"parameters"`
	Metrics    metrics.Report  `json:"metrics"`
	Score      float64         `json:"score"`
	RunErr     string          `json:"run_error,omitempty"`
}

// ProgressFunc 上报 (completed, total)。并行时完成次序不定，
// 回调只携带计数，不携带序号。
type ProgressFunc func(completed, total int)

// Optimizer 对一份回测配置穷举参数网格。
// 每个组合独立构建 Orchestrator / 策略 / 账本，worker 间零共享可变状态。
type Optimizer struct {
	base     backtest.Config
	provider market.Provider
	cfg      Config
	progress ProgressFunc
}

// New 组装寻优器；目标指标、参数空间与基础配置在这里整体校验，
// 任何配置问题都在开跑前失败。
func New(base backtest.Config, provider market.Provider, cfg Config) (*Optimizer, error) {
	if provider == nil {
		return nil, types.NewConfigurationError("provider", "行情 provider 不能为空")
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if cfg.Objective == "" {
		cfg.Objective = "sharpe_ratio"
	}
	if _, err := scoreOf(metrics.Report{}, cfg.Objective); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if len(cfg.Spaces) == 0 {
		return nil, types.NewConfigurationError("spaces", "至少需要一个参数空间")
	}
	return &Optimizer{base: base, provider: provider, cfg: cfg}, nil
}

// SetProgressFunc 注册进度回调。
func (o *Optimizer) SetProgressFunc(fn ProgressFunc) { o.progress = fn }

// Optimize 穷举全部组合并按目标排序返回。
// 单个组合的回测故障只作用于该组合（RunErr 记录），不拖垮整个寻优；
// 取消与提前停止都在组合边界生效。
func (o *Optimizer) Optimize(ctx context.Context) ([]Result, error) {
	combos, err := EnumerateGrid(o.cfg.Spaces)
	if err != nil {
		return nil, err
	}
	// 所有组合先过一遍参数校验，配置错误不进入任何模拟。
	schema, err := strategy.SchemaFor(o.base.Strategy)
	if err != nil {
		return nil, err
	}
	for _, combo := range combos {
		merged := o.base.Params.Clone()
		for k, v := range combo {
			merged[k] = v
		}
		if err := strategy.ValidateParams(o.base.Strategy, schema, merged); err != nil {
			return nil, err
		}
	}

	total := len(combos)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		results   = make([]Result, 0, total)
		completed int
	)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)
	for _, combo := range combos {
		combo := combo
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if runCtx.Err() != nil {
				// 提前停止：尚未开跑的组合直接放弃。
				return nil
			}
			res := o.runOne(runCtx, combo)
			if res == nil {
				return nil
			}
			mu.Lock()
			results = append(results, *res)
			completed++
			done := completed
			mu.Unlock()
			if o.progress != nil {
				o.progress(done, total)
			}
			if o.cfg.EarlyStopScore != nil && scoreSatisfies(res.Score, *o.cfg.EarlyStopScore, o.cfg.Minimize) {
				logger.Infof("[optimize] 提前停止: score=%.4f 达标（已完成 %d/%d）", res.Score, done, total)
				cancel()
			}
			return nil
		})
	}
	err = g.Wait()
	o.rank(results)
	if err != nil {
		return results, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return results, ctxErr
	}
	return results, nil
}

// runOne 跑一个组合；被取消时返回 nil（不计入结果）。
func (o *Optimizer) runOne(ctx context.Context, combo strategy.Params) *Result {
	cfg := o.base.Clone()
	for k, v := range combo {
		cfg.Params[k] = v
	}
	orch, err := backtest.NewOrchestrator(cfg, o.provider)
	if err != nil {
		// 组合已预校验过，这里属于意外，但只记录该组合。
		return &Result{Parameters: combo.Clone(), RunErr: err.Error()}
	}
	res := orch.Run(ctx)
	if res.Err != nil && errors.Is(res.Err, context.Canceled) {
		return nil
	}
	out := &Result{Parameters: combo.Clone(), Metrics: res.Metrics}
	if res.Err != nil {
		out.RunErr = res.Err.Error()
		logger.Warnf("[optimize] 组合 %v 回测失败: %v", combo, res.Err)
	}
	out.Score, _ = scoreOf(res.Metrics, o.cfg.Objective)
	return out
}

func (o *Optimizer) rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if o.cfg.Minimize {
			return results[i].Score < results[j].Score
		}
		return results[i].Score > results[j].Score
	})
}

func scoreSatisfies(score, threshold float64, minimize bool) bool {
	if minimize {
		return score <= threshold
	}
	return score >= threshold
}

// scoreOf 把目标指标名映射到 Report 字段，未知指标返回 ConfigurationError。
func scoreOf(rep metrics.Report, objective string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(objective)) {
	case "total_return":
		return rep.TotalReturn, nil
	case "annualized_return":
		return rep.AnnualizedReturn, nil
	case "volatility":
		return rep.Volatility, nil
	case "sharpe_ratio":
		return rep.SharpeRatio, nil
	case "sortino_ratio":
		return rep.SortinoRatio, nil
	case "max_drawdown":
		return rep.MaxDrawdown, nil
	case "calmar_ratio":
		return rep.CalmarRatio, nil
	case "win_rate":
		return rep.WinRate, nil
	case "profit_factor":
		return rep.ProfitFactor, nil
	default:
		return 0, types.NewConfigurationError("objective", "未知目标指标: %s", objective)
	}
}
