package app

import (
	"context"
	"fmt"
	"strings"

	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/gateway/binance"
	"quantbt/internal/logger"
	"quantbt/internal/market"
)

// MarketStack 持有行情数据源及其底层句柄。
type MarketStack struct {
	Provider market.Provider
	store    *market.Store
}

func (s *MarketStack) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// buildMarketStack 按 data.source 装配行情来源：
//
//	csv     — 一次性读入内存
//	sqlite  — 本地缓存，直接读取
//	binance — 先同步远端日线到缓存，再从缓存读取
func buildMarketStack(ctx context.Context, cfg *config.Config, btCfg backtest.Config) (*MarketStack, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Data.Source)) {
	case "csv":
		bars, err := market.LoadCSV(cfg.Data.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 行情失败: %w", err)
		}
		logger.Infof("✓ CSV 行情加载完成，共 %d 根", len(bars))
		return &MarketStack{Provider: market.NewMemoryProvider(bars)}, nil

	case "sqlite":
		cache, err := market.NewStore(cfg.Data.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("打开行情缓存失败: %w", err)
		}
		bars, err := cache.AllBars(ctx, btCfg.Start, btCfg.End)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		logger.Infof("✓ 行情缓存加载完成，共 %d 根", len(bars))
		return &MarketStack{Provider: market.NewMemoryProvider(bars), store: cache}, nil

	case "binance":
		cache, err := market.NewStore(cfg.Data.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("打开行情缓存失败: %w", err)
		}
		source, err := binance.New(cfg.Data.Binance)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		if err := source.Sync(ctx, cache, btCfg.Symbols, btCfg.Start, btCfg.End); err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("同步 binance 日线失败: %w", err)
		}
		bars, err := cache.AllBars(ctx, btCfg.Start, btCfg.End)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		return &MarketStack{Provider: market.NewMemoryProvider(bars), store: cache}, nil

	default:
		return nil, fmt.Errorf("未知数据源: %s", cfg.Data.Source)
	}
}
