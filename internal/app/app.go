package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/logger"
	"quantbt/internal/optimize"
	"quantbt/internal/report"
	"quantbt/internal/server"
	"quantbt/internal/store"
)

// App 负责应用级编排：加载配置→初始化依赖→按模式运行。
type App struct {
	mu      sync.RWMutex
	cfg     *config.Config
	stack   *MarketStack
	results *store.Store
	watcher *config.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)

	btCfg, err := cfg.BacktestConfig()
	if err != nil {
		return nil, err
	}
	stack, err := buildMarketStack(ctx, cfg, btCfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, stack: stack}
	if cfg.Store.Enabled {
		results, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("初始化结果库失败: %w", err)
		}
		a.results = results
	}
	return a, nil
}

// Close 释放数据源与结果库。
func (a *App) Close() {
	if a.stack != nil {
		a.stack.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
}

// RunBacktest 跑一次回测并输出摘要，可选落库与 HTML 报告。
func (a *App) RunBacktest(ctx context.Context) error {
	btCfg, err := a.cfg.BacktestConfig()
	if err != nil {
		return err
	}
	orch, err := backtest.NewOrchestrator(btCfg, a.stack.Provider)
	if err != nil {
		return err
	}
	res := orch.Run(ctx)
	if a.results != nil {
		if err := a.results.SaveRun(ctx, res); err != nil {
			logger.Warnf("回测结果落库失败: %v", err)
		}
	}
	if repCfg := a.reportConfig(); repCfg.Enabled {
		path := filepath.Join(repCfg.Dir, fmt.Sprintf("%s.html", res.RunID))
		if err := report.WriteHTML(res, path); err != nil {
			logger.Warnf("报告渲染失败: %v", err)
		} else {
			logger.Infof("✓ 报告已写入 %s", path)
		}
	}
	printRunSummary(res)
	return res.Err
}

// RunOptimize 跑一轮网格寻优并输出 Top 结果。
func (a *App) RunOptimize(ctx context.Context) error {
	btCfg, err := a.cfg.BacktestConfig()
	if err != nil {
		return err
	}
	optCfg, err := a.cfg.OptimizerConfig()
	if err != nil {
		return err
	}
	opt, err := optimize.New(btCfg, a.stack.Provider, optCfg)
	if err != nil {
		return err
	}
	opt.SetProgressFunc(func(completed, total int) {
		logger.Infof("寻优进度 %d/%d", completed, total)
	})
	start := time.Now()
	results, runErr := opt.Optimize(ctx)
	if a.results != nil {
		jobID := fmt.Sprintf("cli-%d", start.Unix())
		if combos, gridErr := optimize.EnumerateGrid(optCfg.Spaces); gridErr == nil {
			if err := a.results.CreateOptimization(ctx, jobID, btCfg, optCfg, len(combos)); err == nil {
				if err := a.results.FinishOptimization(ctx, jobID, results, runErr); err != nil {
					logger.Warnf("寻优结果落库失败: %v", err)
				}
			}
		}
	}
	printOptimizeSummary(optCfg.Objective, results, time.Since(start))
	return runErr
}

// WatchConfig 挂载配置热加载，供 serve 模式长驻进程使用。
// 只有日志级别与报告开关热生效，数据源/回测段改动需要重启。
func (a *App) WatchConfig(w *config.Watcher) {
	if w == nil {
		return
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
	w.Subscribe(a.applySnapshot)
}

func (a *App) applySnapshot(s config.Snapshot) {
	logger.SetLevel(s.Config.Log.Level)
	a.mu.Lock()
	a.cfg.Log = s.Config.Log
	a.cfg.Report = s.Config.Report
	a.mu.Unlock()
	logger.Infof("配置热更新生效 version=%d level=%s", s.Version, s.Config.Log.Level)
}

func (a *App) reportConfig() config.ReportConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Report
}

// Serve 启动 HTTP 服务，阻塞直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	btCfg, err := a.cfg.BacktestConfig()
	if err != nil {
		return err
	}
	srv, err := server.NewServer(server.Config{
		Addr:     a.cfg.Server.Addr,
		Base:     btCfg,
		Provider: a.stack.Provider,
		Results:  a.results,
	})
	if err != nil {
		return err
	}
	logger.Infof("✓ HTTP 服务监听 %s", a.cfg.Server.Addr)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Start(ctx) })
	return group.Wait()
}

func printRunSummary(res *backtest.Result) {
	m := res.Metrics
	logger.Infof("==== 回测完成 %s ====", res.RunID)
	logger.Infof("策略=%s symbols=%s", res.Config.Strategy, strings.Join(res.Config.Symbols, ","))
	logger.Infof("期末资金=%s 总收益=%.2f%% 年化=%.2f%%",
		res.FinalCapital.StringFixed(2), m.TotalReturn*100, m.AnnualizedReturn*100)
	logger.Infof("Sharpe=%.2f Sortino=%.2f 最大回撤=%.2f%% Calmar=%.2f",
		m.SharpeRatio, m.SortinoRatio, m.MaxDrawdown*100, m.CalmarRatio)
	logger.Infof("交易=%d 胜率=%.1f%% 盈亏比=%.2f 佣金=%s 滑点=%s",
		m.TradeCount, m.WinRate*100, m.ProfitFactor,
		res.Costs.Commission.StringFixed(2), res.Costs.Slippage.StringFixed(2))
	if res.Costs.SkippedDates > 0 {
		logger.Warnf("数据缺失跳过 %d 个交易日", res.Costs.SkippedDates)
	}
	if res.Err != nil {
		logger.Errorf("回测异常终止: %v", res.Err)
	}
}

func printOptimizeSummary(objective string, results []optimize.Result, elapsed time.Duration) {
	logger.Infof("==== 寻优完成：%d 个组合，耗时 %s ====", len(results), elapsed.Round(time.Second))
	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	for i, r := range top {
		logger.Infof("#%d %s=%.4f params=%v", i+1, objective, r.Score, r.Parameters)
		if r.RunErr != "" {
			logger.Warnf("#%d 运行异常: %s", i+1, r.RunErr)
		}
	}
}
