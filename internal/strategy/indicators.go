package strategy

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// 指标一律返回 (value, ok)：历史不足或结果非有限时 ok=false，
// 调用方按“无信号”处理，不得把未定义当成 0。

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SMA 简单移动平均。
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	out := talib.Sma(values, period)
	v := out[len(out)-1]
	return v, finite(v)
}

// EMA 指数移动平均。
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	out := talib.Ema(values, period)
	v := out[len(out)-1]
	return v, finite(v)
}

// RSI 相对强弱，Wilder 平滑，需要 period+1 个点。
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) <= period {
		return 0, false
	}
	out := talib.Rsi(values, period)
	v := out[len(out)-1]
	return v, finite(v)
}

// Bollinger 布林带，返回 (mid, upper, lower)。
func Bollinger(values []float64, period int, stddev float64) (mid, upper, lower float64, ok bool) {
	if period <= 1 || stddev <= 0 || len(values) < period {
		return 0, 0, 0, false
	}
	up, md, lo := talib.BBands(values, period, stddev, stddev, talib.SMA)
	mid, upper, lower = md[len(md)-1], up[len(up)-1], lo[len(lo)-1]
	ok = finite(mid) && finite(upper) && finite(lower)
	return
}

// ATR 平均真实波幅，需要 period+1 根 K 线。
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n <= period || len(highs) != n || len(lows) != n {
		return 0, false
	}
	out := talib.Atr(highs, lows, closes, period)
	v := out[len(out)-1]
	return v, finite(v) && v > 0
}

// MACD 返回 (macd, signal, hist)。
func MACD(values []float64, fast, slow, signalPeriod int) (macdV, signalV, histV float64, ok bool) {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 {
		return 0, 0, 0, false
	}
	if len(values) < slow+signalPeriod {
		return 0, 0, 0, false
	}
	macd, signal, hist := talib.Macd(values, fast, slow, signalPeriod)
	macdV, signalV, histV = macd[len(macd)-1], signal[len(signal)-1], hist[len(hist)-1]
	ok = finite(macdV) && finite(signalV) && finite(histV)
	return
}

// HighestHigh 返回最近 window 根（不含最后 skipLast 根）的最高价。
func HighestHigh(highs []float64, window, skipLast int) (float64, bool) {
	return extreme(highs, window, skipLast, true)
}

// LowestLow 返回最近 window 根（不含最后 skipLast 根）的最低价。
func LowestLow(lows []float64, window, skipLast int) (float64, bool) {
	return extreme(lows, window, skipLast, false)
}

func extreme(values []float64, window, skipLast int, wantMax bool) (float64, bool) {
	if window <= 0 || skipLast < 0 {
		return 0, false
	}
	end := len(values) - skipLast
	if end < window {
		return 0, false
	}
	out := values[end-window]
	for _, v := range values[end-window : end] {
		if wantMax && v > out {
			out = v
		}
		if !wantMax && v < out {
			out = v
		}
	}
	return out, finite(out)
}
