package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	echartstypes "github.com/go-echarts/go-echarts/v2/types"

	"quantbt/internal/backtest"
	"quantbt/internal/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorDrawdown      = "#f87171"
	colorWin           = "#34d399"
	colorLoss          = "#fb7185"

	chartWidthPx     = 1600
	equityHeightPx   = 520
	drawdownHeightPx = 280
	tradesHeightPx   = 280
)

// WriteHTML 把一次回测结果渲染成单页 HTML 报告：
// 权益曲线、回撤曲线、逐笔已实现盈亏。
func WriteHTML(res *backtest.Result, path string) error {
	if res == nil {
		return fmt.Errorf("result 不能为空")
	}
	if len(res.EquityCurve) == 0 {
		return fmt.Errorf("权益曲线为空，无法渲染报告")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildEquityChart(res),
		buildDrawdownChart(res.EquityCurve),
		buildTradeChart(res.Trades),
	)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func buildXAxis(curve []types.EquityPoint) []string {
	x := make([]string, len(curve))
	for i, p := range curve {
		x[i] = p.Date.Format("2006-01-02")
	}
	return x
}

func buildEquityChart(res *backtest.Result) *charts.Line {
	m := res.Metrics
	subtitle := fmt.Sprintf("总收益 %.2f%% | 年化 %.2f%% | Sharpe %.2f | 最大回撤 %.2f%% | 交易 %d 笔",
		m.TotalReturn*100, m.AnnualizedReturn*100, m.SharpeRatio, m.MaxDrawdown*100, m.TradeCount)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", res.Config.Strategy, strings.Join(res.Config.Symbols, ",")),
			Subtitle:      subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	curve := res.EquityCurve
	equity := make([]opts.LineData, len(curve))
	cash := make([]opts.LineData, len(curve))
	for i, p := range curve {
		equity[i] = opts.LineData{Value: p.Equity.InexactFloat64()}
		cash[i] = opts.LineData{Value: p.Cash.InexactFloat64()}
	}
	line.SetXAxis(buildXAxis(curve))
	line.AddSeries("Equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Cash", cash, charts.WithLineStyleOpts(opts.LineStyle{Color: colorTextSecondary, Width: 1}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildDrawdownChart(curve []types.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", drawdownHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary, Formatter: "{value} %"}}),
	)
	data := make([]opts.LineData, len(curve))
	for i, p := range curve {
		data[i] = opts.LineData{Value: -p.Drawdown * 100}
	}
	line.SetXAxis(buildXAxis(curve))
	line.AddSeries("Drawdown %", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.25)}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildTradeChart(trades []types.Trade) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", tradesHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Realized P&L per Trade", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	x := make([]string, 0, len(trades))
	data := make([]opts.BarData, 0, len(trades))
	for _, t := range trades {
		if t.Action != types.ActionSell {
			continue
		}
		pnl := t.RealizedPnL.InexactFloat64()
		color := colorWin
		if pnl < 0 {
			color = colorLoss
		}
		x = append(x, fmt.Sprintf("%s %s", t.Date.Format("01-02"), t.Symbol))
		data = append(data, opts.BarData{Value: pnl, ItemStyle: &opts.ItemStyle{Color: color}})
	}
	bar.SetXAxis(x)
	bar.AddSeries("PnL", data)
	return bar
}
