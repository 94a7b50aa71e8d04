package exchange

import (
	"errors"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrUnknownSymbol 表示交易所不认识该交易对。
	ErrUnknownSymbol = errors.New("exchange: unknown symbol")
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange: on maintenance")
)

// Fault 封装一次网关调用失败，保留交易所原始错误码与消息。
type Fault struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("exchange: %s 调用失败 (code=%s): %s", f.Op, f.Code, f.Message)
	}
	return fmt.Sprintf("exchange: %s 调用失败: %s", f.Op, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// newFault 从底层错误构造 Fault，尽量提取 ccxt 错误分类作为错误码。
func newFault(op string, err error) *Fault {
	fault := &Fault{Op: op, Message: err.Error(), Err: err}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		fault.Code = fmt.Sprint(ccxtErr.Type)
		if ccxtErr.Message != "" {
			fault.Message = ccxtErr.Message
		}
	}

	return fault
}

// IsRetryable 判断错误是否属于瞬时故障，可在开启重试时再次尝试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
