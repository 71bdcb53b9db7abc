package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quantbt/internal/execution"
	"quantbt/internal/logger"
	"quantbt/internal/market"
	"quantbt/internal/metrics"
	"quantbt/internal/portfolio"
	"quantbt/internal/risk"
	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

// ProgressFunc 回调一次逐日进度。
type ProgressFunc func(types.Progress)

// Orchestrator 驱动逐日回测循环：行情 → 信号 → 定单 → 风控 → 撮合 → 账本。
// 每个实例独占自己的账本与策略，不同 run 之间没有共享可变状态。
type Orchestrator struct {
	cfg      Config
	provider market.Provider
	strat    strategy.Strategy
	riskMgr  *risk.Manager
	sim      *execution.Simulator
	ledger   *portfolio.Ledger
	sizePct  float64
	progress ProgressFunc
}

// NewOrchestrator 组装一次回测。配置或策略参数非法时直接失败（ConfigurationError）。
func NewOrchestrator(cfg Config, provider market.Provider) (*Orchestrator, error) {
	if provider == nil {
		return nil, types.NewConfigurationError("provider", "行情 provider 不能为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := strategy.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}
	ledger, err := portfolio.NewLedger(decimal.NewFromFloat(cfg.InitialCapital))
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:      cfg,
		provider: provider,
		strat:    strat,
		riskMgr:  risk.New(cfg.Risk),
		sim:      execution.NewSimulator(cfg.Execution),
		ledger:   ledger,
		sizePct:  cfg.Risk.WithDefaults().MaxPositionSizePct,
	}, nil
}

// SetProgressFunc 注册进度回调，nil 表示不上报。
func (o *Orchestrator) SetProgressFunc(fn ProgressFunc) { o.progress = fn }

// Run 执行回测。取消在日期边界检查；订单被拒与缺数据均为局部失败，
// 只有撮合/账本内部故障才中止，并连同部分结果一起返回。
func (o *Orchestrator) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:        uuid.NewString(),
		Config:       o.cfg,
		FinalCapital: o.ledger.InitialCapital(),
	}
	defer func() {
		res.EquityCurve = o.ledger.Curve()
		if n := len(res.EquityCurve); n > 0 {
			res.FinalCapital = res.EquityCurve[n-1].Equity
		}
		res.Metrics = metrics.Compute(metrics.Input{
			EquityCurve:     res.EquityCurve,
			Trades:          res.Trades,
			InitialCapital:  o.cfg.InitialCapital,
			RiskFreeRate:    o.cfg.RiskFreeRate,
			MinObservations: o.cfg.MinObservations,
		})
		if res.Err != nil {
			res.ErrMessage = res.Err.Error()
		}
	}()

	dates, err := o.provider.Calendar(ctx, o.cfg.Start, o.cfg.End)
	if err != nil {
		res.Err = fmt.Errorf("获取交易日历失败: %w", err)
		return res
	}
	if len(dates) == 0 {
		res.Err = &types.DataUnavailableError{Date: o.cfg.Start}
		return res
	}

	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		bars, err := o.provider.MarketData(ctx, date)
		if err != nil {
			var dataErr *types.DataUnavailableError
			if !errors.As(err, &dataErr) {
				err = &types.DataUnavailableError{Date: date}
			}
			logger.Warnf("[backtest] run %s 跳过 %s: %v", res.RunID, market.DateKey(date), err)
			res.Costs.SkippedDates++
			continue
		}
		if len(bars) == 0 {
			res.Costs.SkippedDates++
			continue
		}

		prices := closingPrices(bars)
		// 日初基准取上一日盯市权益，当日价格下跌计入当日亏损。
		o.riskMgr.StartDay(date, o.ledger.Equity())

		for _, sym := range o.cfg.Symbols {
			bar, ok := bars[sym]
			if !ok {
				continue
			}
			if fatal := o.processSymbol(res, sym, bar, prices, date); fatal != nil {
				res.Err = fatal
				return res
			}
		}

		if _, err := o.ledger.MarkToMarket(date, prices); err != nil {
			res.Err = types.NewExecutionError("mark_to_market", err)
			return res
		}

		if o.progress != nil {
			o.progress(types.Progress{
				Completed: i + 1,
				Total:     len(dates),
				Fraction:  float64(i+1) / float64(len(dates)),
				Date:      date,
				Message:   fmt.Sprintf("processing %d/%d", i+1, len(dates)),
			})
		}
	}
	return res
}

// processSymbol 处理单 symbol 单日：先盯防止损/止盈，再走策略信号。
// 返回非 nil 表示内部故障，调用方中止整个 run。
func (o *Orchestrator) processSymbol(res *Result, sym string, bar types.Bar, prices map[string]decimal.Decimal, date time.Time) error {
	if pos, ok := o.ledger.Position(sym); ok {
		if reason := o.riskMgr.CheckStopTakeProfit(sym, pos, bar.Close); reason != "" {
			order := types.Order{
				ID:        uuid.NewString(),
				Symbol:    sym,
				Type:      types.OrderTypeMarket,
				Action:    types.ActionSell,
				Quantity:  pos.Quantity,
				Reason:    reason,
				CreatedAt: date,
			}
			if fatal := o.executeOrder(res, order, bar, date); fatal != nil {
				return fatal
			}
		}
	}

	var posPtr *types.Position
	if pos, ok := o.ledger.Position(sym); ok {
		posPtr = &pos
	}
	sig := o.strat.GenerateSignal(sym, bar, posPtr)
	if sig == nil || sig.Direction == types.DirectionHold {
		return nil
	}

	order, ok := o.orderFromSignal(sig, bar, prices, date)
	if !ok {
		return nil
	}
	valid, reason := o.riskMgr.ValidateOrder(order, o.ledger.Snapshot(prices), bar.Close)
	if !valid {
		vErr := types.NewValidationError("%s %s: %s", order.Action, sym, reason)
		logger.Infof("[backtest] %s 订单被拒: %v", market.DateKey(date), vErr)
		res.Costs.RejectedOrders++
		return nil
	}
	return o.executeOrder(res, order, bar, date)
}

// orderFromSignal 把信号转成订单。
// 默认名义金额 = strength × max_position_size_pct × equity，
// equity 按当日现价估值，与风控校验用同一口径。
func (o *Orchestrator) orderFromSignal(sig *types.Signal, bar types.Bar, prices map[string]decimal.Decimal, date time.Time) (types.Order, bool) {
	holding, hasPos := o.ledger.Position(sig.Symbol)
	switch sig.Direction {
	case types.DirectionExit, types.DirectionShort:
		// 不支持做空：SHORT 对持仓等价于清仓，空仓则忽略。
		if !hasPos || holding.Quantity <= 0 {
			return types.Order{}, false
		}
		order := types.Order{
			ID:        uuid.NewString(),
			Symbol:    sig.Symbol,
			Type:      types.OrderTypeMarket,
			Action:    types.ActionSell,
			Quantity:  holding.Quantity,
			Reason:    sig.Reason,
			CreatedAt: date,
		}
		// 带止损价的离场信号挂 STOP 单，未触发则当日不成交。
		if sig.StopPrice.IsPositive() {
			order.Type = types.OrderTypeStop
			order.Price = sig.StopPrice
		}
		return order, true
	case types.DirectionLong:
		equity := o.ledger.Snapshot(prices).Equity.InexactFloat64()
		notional := sig.Strength * o.sizePct * equity
		price := bar.Close.InexactFloat64()
		if price <= 0 || notional <= 0 {
			return types.Order{}, false
		}
		qty := int64(math.Floor(notional / price))
		if qty <= 0 {
			return types.Order{}, false
		}
		order := types.Order{
			ID:        uuid.NewString(),
			Symbol:    sig.Symbol,
			Type:      types.OrderTypeMarket,
			Action:    types.ActionBuy,
			Quantity:  qty,
			Reason:    sig.Reason,
			CreatedAt: date,
		}
		if sig.TargetPrice.IsPositive() {
			order.Type = types.OrderTypeLimit
			order.Price = sig.TargetPrice
		}
		return order, true
	default:
		return types.Order{}, false
	}
}

// executeOrder 撮合并入账。未成交是正常路径；内部故障向上冒泡。
func (o *Orchestrator) executeOrder(res *Result, order types.Order, bar types.Bar, date time.Time) error {
	fillRes, err := o.sim.Execute(order, bar, date)
	if err != nil {
		return err
	}
	if !fillRes.Filled {
		logger.Debugf("[backtest] %s %s 未成交: %s", market.DateKey(date), order.Symbol, fillRes.Reason)
		res.Costs.UnfilledOrders++
		return nil
	}
	fill := fillRes.Fill
	if err := o.ledger.ApplyFill(fill); err != nil {
		return err
	}
	res.Trades = append(res.Trades, types.Trade{
		Symbol:       fill.Symbol,
		Date:         fill.Date,
		Action:       fill.Action,
		Quantity:     fill.Quantity,
		Price:        fill.Price,
		Commission:   fill.Commission,
		SlippageCost: fill.SlippageCost,
		RealizedPnL:  fill.RealizedPnL,
		Reason:       fill.Reason,
	})
	res.Costs.Commission = res.Costs.Commission.Add(fill.Commission)
	res.Costs.Slippage = res.Costs.Slippage.Add(fill.SlippageCost)
	return nil
}

func closingPrices(bars map[string]types.Bar) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(bars))
	for sym, bar := range bars {
		out[sym] = bar.Close
	}
	return out
}
