package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"quantbt/internal/logger"
	"quantbt/internal/market"
	"quantbt/internal/types"
)

// Binance 单次 kline 请求上限。
const maxKlineLimit = 1000

// Source 基于 go-binance SDK 拉取日线历史，喂给本地行情缓存。
// 只做 REST 历史拉取，不做实时订阅。
type Source struct {
	cfg    Config
	client *binance.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

// FetchDailyBars 拉取 [start, end] 区间的日线并转换为 Bar。
// 区间超过单次上限时按 1000 根分页，直到覆盖完整区间。
func (s *Source) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, types.NewValidationError("symbol 不能为空")
	}
	if end.Before(start) {
		return nil, types.NewValidationError("end 不能早于 start")
	}
	startMs := start.UTC().UnixMilli()
	endMs := end.UTC().UnixMilli()

	var out []types.Bar
	for startMs <= endMs {
		kls, err := s.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(startMs).
			EndTime(endMs).
			Limit(maxKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, &types.DataUnavailableError{Symbol: symbol, Date: time.UnixMilli(startMs).UTC()}
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			bar, err := parseKline(symbol, kl)
			if err != nil {
				logger.Warnf("[binance] 跳过无法解析的 kline %s@%d: %v", symbol, kl.OpenTime, err)
				continue
			}
			out = append(out, bar)
		}
		last := kls[len(kls)-1]
		next := last.OpenTime + int64(24*time.Hour/time.Millisecond)
		if next <= startMs {
			break
		}
		startMs = next
		if len(kls) < maxKlineLimit {
			break
		}
	}
	logger.Infof("[binance] %s 日线拉取完成，共 %d 根", symbol, len(out))
	return out, nil
}

// Sync 把区间内多个标的的日线写入本地缓存。
func (s *Source) Sync(ctx context.Context, store *market.Store, symbols []string, start, end time.Time) error {
	for _, sym := range symbols {
		bars, err := s.FetchDailyBars(ctx, sym, start, end)
		if err != nil {
			return err
		}
		if err := store.SaveBars(ctx, bars); err != nil {
			return err
		}
	}
	return nil
}

func parseKline(symbol string, kl *binance.Kline) (types.Bar, error) {
	open, err := decimal.NewFromString(kl.Open)
	if err != nil {
		return types.Bar{}, err
	}
	high, err := decimal.NewFromString(kl.High)
	if err != nil {
		return types.Bar{}, err
	}
	low, err := decimal.NewFromString(kl.Low)
	if err != nil {
		return types.Bar{}, err
	}
	closeP, err := decimal.NewFromString(kl.Close)
	if err != nil {
		return types.Bar{}, err
	}
	vol, err := decimal.NewFromString(kl.Volume)
	if err != nil {
		return types.Bar{}, err
	}
	return types.Bar{
		Symbol: symbol,
		Date:   time.UnixMilli(kl.OpenTime).UTC().Truncate(24 * time.Hour),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeP,
		Volume: vol.IntPart(),
	}, nil
}
