package market

import (
	"context"
	"sort"
	"time"

	"quantbt/internal/types"
)

// Provider 是行情数据的外部协作方接口。
// 某日返回空 map 表示当天休市，调用方按“跳过”处理，不视为错误。
type Provider interface {
	// Calendar 返回 [start, end] 内按时间升序的交易日。
	Calendar(ctx context.Context, start, end time.Time) ([]time.Time, error)
	// MarketData 返回某交易日全部 symbol 的 Bar。
	MarketData(ctx context.Context, date time.Time) (map[string]types.Bar, error)
}

// DateKey 统一按自然日归一（回测按日推进，时分秒无意义）。
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// MemoryProvider 把全部历史数据物化在内存里，回测热循环内零 IO。
type MemoryProvider struct {
	byDate map[string]map[string]types.Bar
	dates  []time.Time
}

// NewMemoryProvider 由一组 Bar 构建。同一 (symbol, date) 以后写入者为准。
func NewMemoryProvider(bars []types.Bar) *MemoryProvider {
	p := &MemoryProvider{byDate: make(map[string]map[string]types.Bar)}
	seen := make(map[string]time.Time)
	for _, b := range bars {
		key := DateKey(b.Date)
		day, ok := p.byDate[key]
		if !ok {
			day = make(map[string]types.Bar)
			p.byDate[key] = day
			seen[key] = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		}
		day[b.Symbol] = b
	}
	p.dates = make([]time.Time, 0, len(seen))
	for _, d := range seen {
		p.dates = append(p.dates, d)
	}
	sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })
	return p
}

func (p *MemoryProvider) Calendar(_ context.Context, start, end time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, len(p.dates))
	for _, d := range p.dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *MemoryProvider) MarketData(_ context.Context, date time.Time) (map[string]types.Bar, error) {
	day, ok := p.byDate[DateKey(date)]
	if !ok {
		return map[string]types.Bar{}, nil
	}
	out := make(map[string]types.Bar, len(day))
	for sym, bar := range day {
		out[sym] = bar
	}
	return out, nil
}
