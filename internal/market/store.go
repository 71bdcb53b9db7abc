package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"quantbt/internal/types"
)

// Store 用 sqlite 缓存日线数据，重复寻优不必反复拉取远端。
// 价格按字符串落库，保持 decimal 精度不变。
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore 在 root 目录下打开（必要时创建）bars.db。
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("bar store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "bars.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureBarSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureBarSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume INTEGER NOT NULL,
		PRIMARY KEY (symbol, date)
	);`)
	return err
}

// SaveBars 幂等写入（同 symbol+date 覆盖）。
func (s *Store) SaveBars(ctx context.Context, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("bar store 已关闭")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bars
		(symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
		open=excluded.open, high=excluded.high, low=excluded.low,
		close=excluded.close, volume=excluded.volume`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, DateKey(b.Date),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RangeBars 返回 [start, end] 内某 symbol 的全部 Bar，按日期升序。
func (s *Store) RangeBars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("bar store 已关闭")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, date, open, high, low, close, volume
		FROM bars WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		symbol, DateKey(start), DateKey(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Bar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	return out, rows.Err()
}

// AllBars 返回范围内全部 symbol 的 Bar，用于构建 MemoryProvider。
func (s *Store) AllBars(ctx context.Context, start, end time.Time) ([]types.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("bar store 已关闭")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, date, open, high, low, close, volume
		FROM bars WHERE date >= ? AND date <= ? ORDER BY date ASC, symbol ASC`,
		DateKey(start), DateKey(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Bar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	return out, rows.Err()
}

func scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		symbol, dateStr           string
		open, high, low, closeStr string
		volume                    int64
	)
	if err := rows.Scan(&symbol, &dateStr, &open, &high, &low, &closeStr, &volume); err != nil {
		return types.Bar{}, err
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return types.Bar{}, fmt.Errorf("bar date 损坏: %w", err)
	}
	bar := types.Bar{Symbol: symbol, Date: date, Volume: volume}
	for _, pair := range []struct {
		raw string
		dst *decimal.Decimal
	}{{open, &bar.Open}, {high, &bar.High}, {low, &bar.Low}, {closeStr, &bar.Close}} {
		v, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return types.Bar{}, fmt.Errorf("bar price 损坏: %w", err)
		}
		*pair.dst = v
	}
	return bar, nil
}
