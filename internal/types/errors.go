package types

import (
	"fmt"
	"time"
)

// 错误分层：
//   ValidationError      订单/参数被风控或校验拒绝，记录后继续跑；
//   DataUnavailableError 某交易日缺数据，跳过该日；
//   ExecutionError       撮合内部异常，中止当前回测但保留部分结果；
//   ConfigurationError   配置/参数空间非法，开跑前直接失败。

// ValidationError 表示订单或参数未通过校验。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation rejected: %s", e.Reason)
}

// NewValidationError 按 format 构造。
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// DataUnavailableError 表示某日缺少行情。
type DataUnavailableError struct {
	Date   time.Time
	Symbol string
}

func (e *DataUnavailableError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("market data unavailable: %s %s", e.Symbol, e.Date.Format("2006-01-02"))
	}
	return fmt.Sprintf("market data unavailable: %s", e.Date.Format("2006-01-02"))
}

// ExecutionError 表示撮合或账本出现不应发生的内部故障。
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("execution fault in %s", e.Op)
	}
	return fmt.Sprintf("execution fault in %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError 包装内部故障。
func NewExecutionError(op string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Err: err}
}

// ConfigurationError 表示配置或参数空间非法，不做恢复。
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError 按 format 构造。
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
