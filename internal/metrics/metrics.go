package metrics

import (
	"math"

	"quantbt/internal/types"
)

// 本包全部为纯函数：同样的输入永远得到同样的输出，不做任何 IO。
// 所有比率在分母为零或样本量不足时一律返回 0，绝不抛错或产出 NaN/∞。

// TradingDaysPerYear 年化约定：252 个交易日。
const TradingDaysPerYear = 252

// DefaultMinObservations 比率类指标要求的最小样本量。
const DefaultMinObservations = 30

// Report 汇总一次回测的全部绩效与风险指标。
type Report struct {
	TotalReturn         float64 `json:"total_return"`
	AnnualizedReturn    float64 `json:"annualized_return"`
	Volatility          float64 `json:"volatility"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	DownsideDeviation   float64 `json:"downside_deviation"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	CalmarRatio         float64 `json:"calmar_ratio"`
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        float64 `json:"profit_factor"`
	AvgWin              float64 `json:"avg_win"`
	AvgLoss             float64 `json:"avg_loss"`
	TradeCount          int     `json:"trade_count"`
}

// Input 是指标计算的全部输入。MinObservations<=0 时取默认值。
type Input struct {
	EquityCurve     []types.EquityPoint
	Trades          []types.Trade
	InitialCapital  float64
	RiskFreeRate    float64
	MinObservations int
}

// Compute 汇总全部指标。
func Compute(in Input) Report {
	minObs := in.MinObservations
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}
	returns := dailyReturns(in.EquityCurve)
	vol := Volatility(returns)
	maxDD, ddDuration := MaxDrawdown(in.EquityCurve)
	annualized := AnnualizedReturn(in.EquityCurve, in.InitialCapital)
	rep := Report{
		TotalReturn:         TotalReturn(in.EquityCurve, in.InitialCapital),
		AnnualizedReturn:    annualized,
		Volatility:          vol,
		SharpeRatio:         SharpeRatio(returns, in.RiskFreeRate, minObs),
		SortinoRatio:        SortinoRatio(returns, in.RiskFreeRate, minObs),
		DownsideDeviation:   DownsideDeviation(returns),
		MaxDrawdown:         maxDD,
		MaxDrawdownDuration: ddDuration,
		CalmarRatio:         CalmarRatio(annualized, maxDD),
		TradeCount:          len(in.Trades),
	}
	rep.WinRate, rep.ProfitFactor, rep.AvgWin, rep.AvgLoss = tradeStats(in.Trades)
	return rep
}

func dailyReturns(curve []types.EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	for _, p := range curve {
		out = append(out, p.Return)
	}
	return out
}

func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// TotalReturn = (期末权益 − 初始资金) / 初始资金。
func TotalReturn(curve []types.EquityPoint, initialCapital float64) float64 {
	if len(curve) == 0 || initialCapital <= 0 {
		return 0
	}
	final := curve[len(curve)-1].Equity.InexactFloat64()
	return safe((final - initialCapital) / initialCapital)
}

// AnnualizedReturn 按 252 交易日复利年化。
func AnnualizedReturn(curve []types.EquityPoint, initialCapital float64) float64 {
	if len(curve) == 0 || initialCapital <= 0 {
		return 0
	}
	total := TotalReturn(curve, initialCapital)
	if total <= -1 {
		return -1
	}
	years := float64(len(curve)) / TradingDaysPerYear
	if years <= 0 {
		return 0
	}
	return safe(math.Pow(1+total, 1/years) - 1)
}

// Volatility = 样本标准差(日收益) × √252。样本少于 2 时为 0。
func Volatility(returns []float64) float64 {
	sd := sampleStdev(returns)
	return safe(sd * math.Sqrt(TradingDaysPerYear))
}

// SharpeRatio = (年化平均收益 − 无风险利率) / 年化波动。
// 样本不足 minObs 或波动为 0 时返回 0。
func SharpeRatio(returns []float64, riskFreeRate float64, minObs int) float64 {
	if len(returns) < minObs {
		return 0
	}
	vol := Volatility(returns)
	if vol == 0 {
		return 0
	}
	annualMean := mean(returns) * TradingDaysPerYear
	return safe((annualMean - riskFreeRate) / vol)
}

// SortinoRatio 用下行波动替代总波动。
func SortinoRatio(returns []float64, riskFreeRate float64, minObs int) float64 {
	if len(returns) < minObs {
		return 0
	}
	dd := DownsideDeviation(returns)
	if dd == 0 {
		return 0
	}
	annualMean := mean(returns) * TradingDaysPerYear
	return safe((annualMean - riskFreeRate) / dd)
}

// DownsideDeviation = 负收益样本标准差 × √252。
func DownsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	return safe(sampleStdev(negative) * math.Sqrt(TradingDaysPerYear))
}

// MaxDrawdown 返回最大回撤比例及其持续长度（峰到谷的 bar 数）。
func MaxDrawdown(curve []types.EquityPoint) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity.InexactFloat64()
	peakIdx := 0
	maxDD := 0.0
	duration := 0
	for i, p := range curve {
		eq := p.Equity.InexactFloat64()
		if eq > peak {
			peak = eq
			peakIdx = i
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - eq) / peak
		if dd > maxDD {
			maxDD = dd
			duration = i - peakIdx
		}
	}
	return safe(maxDD), duration
}

// CalmarRatio = 年化收益 / 最大回撤，回撤为 0 时返回 0。
func CalmarRatio(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return safe(annualizedReturn / maxDrawdown)
}

// tradeStats 只统计 SELL（平仓）记录的已实现盈亏。
func tradeStats(trades []types.Trade) (winRate, profitFactor, avgWin, avgLoss float64) {
	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.Action != types.ActionSell {
			continue
		}
		pnl := t.RealizedPnL.InexactFloat64()
		if pnl > 0 {
			wins++
			winSum += pnl
		} else if pnl < 0 {
			losses++
			lossSum += pnl
		}
	}
	closed := wins + losses
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
	}
	if lossSum != 0 {
		profitFactor = safe(winSum / math.Abs(lossSum))
	}
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdev 样本标准差（n−1）。
func sampleStdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
