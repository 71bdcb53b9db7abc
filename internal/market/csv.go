package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quantbt/internal/types"
)

// LoadCSV 读取 symbol,date,open,high,low,close,volume 格式的历史数据。
// 首行若为表头则自动跳过。
func LoadCSV(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV 从任意 reader 解析 Bar 列表。
func ParseCSV(r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	var bars []types.Bar
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv 第 %d 行读取失败: %w", line+1, err)
		}
		line++
		if len(record) < 7 {
			return nil, fmt.Errorf("csv 第 %d 行字段不足: 需要 7 个，拿到 %d 个", line, len(record))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[1]), "date") {
			continue
		}
		bar, err := parseBarRecord(record)
		if err != nil {
			return nil, fmt.Errorf("csv 第 %d 行解析失败: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBarRecord(record []string) (types.Bar, error) {
	symbol := strings.ToUpper(strings.TrimSpace(record[0]))
	if symbol == "" {
		return types.Bar{}, fmt.Errorf("symbol 为空")
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
	if err != nil {
		return types.Bar{}, fmt.Errorf("date 无效: %w", err)
	}
	prices := make([]decimal.Decimal, 4)
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := decimal.NewFromString(strings.TrimSpace(record[2+i]))
		if err != nil {
			return types.Bar{}, fmt.Errorf("%s 无效: %w", name, err)
		}
		if v.IsNegative() {
			return types.Bar{}, fmt.Errorf("%s 不能为负", name)
		}
		prices[i] = v
	}
	volume, err := strconv.ParseInt(strings.TrimSpace(record[6]), 10, 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("volume 无效: %w", err)
	}
	if volume < 0 {
		return types.Bar{}, fmt.Errorf("volume 不能为负: %d", volume)
	}
	return types.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, nil
}
