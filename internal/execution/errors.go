package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConfigError 表示调用方参数在结构上不合法，在任何网络交互前被拒绝。
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("execution: 参数非法: %s", e.Reason)
}

// InsufficientBalanceError 表示资金检查未通过（或余额查询失败被按不足处理）。
type InsufficientBalanceError struct {
	Asset    string
	Required decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("execution: %s 余额不足，需要约 %s", e.Asset, e.Required)
}

// PartialFailureError 表示多子单策略部分成功：前面的子单已在交易所生效，
// 而后续某笔失败。Succeeded 枚举所有在场子单及其交易所 ID，供操作员手工核对或撤销。
type PartialFailureError struct {
	Strategy    string
	Planned     int
	Succeeded   []ChildOrder
	FailedIndex int
	Cause       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("execution: %s 在第 %d/%d 笔子单失败，已有 %d 笔在场需人工处理: %v",
		e.Strategy, e.FailedIndex+1, e.Planned, len(e.Succeeded), e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

// abortErr 把子单失败折算成策略级错误：
// 尚无成功子单时是整单失败，否则是部分失败。
func abortErr(strategy string, planned int, succeeded []ChildOrder, failedIndex int, cause error) error {
	if len(succeeded) == 0 {
		return cause
	}
	return &PartialFailureError{
		Strategy:    strategy,
		Planned:     planned,
		Succeeded:   succeeded,
		FailedIndex: failedIndex,
		Cause:       cause,
	}
}
