package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quantbt/internal/backtest"
	"quantbt/internal/optimize"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Store 基于 gorm + sqlite 持久化回测与寻优结果。
// 属于外部协作方：核心引擎不依赖它也能完整运行。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（必要时创建）结果库。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}, &OptimizationModel{}, &OptimizationResultModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 把一次回测结果整体落库。
func (s *Store) SaveRun(ctx context.Context, res *backtest.Result) error {
	if res == nil {
		return fmt.Errorf("result 不能为空")
	}
	params, err := json.Marshal(res.Config.Params)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return err
	}
	equityJSON, err := json.Marshal(res.EquityCurve)
	if err != nil {
		return err
	}
	tradesJSON, err := json.Marshal(res.Trades)
	if err != nil {
		return err
	}
	status := StatusDone
	if res.Err != nil {
		status = StatusFailed
	}
	model := RunModel{
		ID:             res.RunID,
		Strategy:       res.Config.Strategy,
		Symbols:        strings.Join(res.Config.Symbols, ","),
		StartTS:        res.Config.Start.UnixMilli(),
		EndTS:          res.Config.End.UnixMilli(),
		InitialCapital: res.Config.InitialCapital,
		FinalCapital:   res.FinalCapital.InexactFloat64(),
		TotalReturn:    res.Metrics.TotalReturn,
		SharpeRatio:    res.Metrics.SharpeRatio,
		MaxDrawdown:    res.Metrics.MaxDrawdown,
		TradeCount:     len(res.Trades),
		Status:         status,
		Message:        res.ErrMessage,
		ParamsJSON:     params,
		MetricsJSON:    metricsJSON,
		EquityJSON:     equityJSON,
		TradesJSON:     tradesJSON,
		CreatedAtUnix:  time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Save(&model).Error
}

// GetRun 取单条回测记录。
func (s *Store) GetRun(ctx context.Context, id string) (*RunModel, error) {
	var model RunModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

// ListRuns 按创建时间倒序分页。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []RunModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Limit(limit).
		Omit("equity_json", "trades_json").
		Find(&models).Error
	return models, err
}

// CreateOptimization 登记一个寻优任务（running 状态）。
func (s *Store) CreateOptimization(ctx context.Context, id string, base backtest.Config, cfg optimize.Config, total int) error {
	spacesJSON, err := json.Marshal(cfg.Spaces)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	model := OptimizationModel{
		ID:            id,
		Strategy:      base.Strategy,
		Objective:     cfg.Objective,
		Minimize:      cfg.Minimize,
		TotalCombos:   total,
		Status:        StatusRunning,
		SpacesJSON:    spacesJSON,
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateOptimizationProgress 更新完成计数。
func (s *Store) UpdateOptimizationProgress(ctx context.Context, id string, completed int) error {
	return s.db.WithContext(ctx).Model(&OptimizationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"completed": completed, "updated_at": time.Now().Unix()}).Error
}

// FinishOptimization 落库最终状态与全部组合结果（按排名）。
func (s *Store) FinishOptimization(ctx context.Context, id string, results []optimize.Result, runErr error) error {
	status := StatusDone
	message := ""
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"completed":  len(results),
		"updated_at": time.Now().Unix(),
	}
	if len(results) > 0 {
		best := results[0]
		bestParams, err := json.Marshal(best.Parameters)
		if err != nil {
			return err
		}
		updates["best_score"] = best.Score
		updates["best_params_json"] = string(bestParams)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&OptimizationModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		rows := make([]OptimizationResultModel, 0, len(results))
		for i, r := range results {
			params, err := json.Marshal(r.Parameters)
			if err != nil {
				return err
			}
			metricsJSON, err := json.Marshal(r.Metrics)
			if err != nil {
				return err
			}
			rows = append(rows, OptimizationResultModel{
				JobID:       id,
				Rank:        i + 1,
				Score:       r.Score,
				ParamsJSON:  params,
				MetricsJSON: metricsJSON,
				RunError:    r.RunErr,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// GetOptimization 取任务及其结果（按排名升序）。
func (s *Store) GetOptimization(ctx context.Context, id string) (*OptimizationModel, []OptimizationResultModel, error) {
	var model OptimizationModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}
	var rows []OptimizationResultModel
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", id).Order("rank ASC").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return &model, rows, nil
}

// ListOptimizations 按创建时间倒序分页。
func (s *Store) ListOptimizations(ctx context.Context, limit int) ([]OptimizationModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []OptimizationModel
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error
	return models, err
}
