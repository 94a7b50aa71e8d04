// Package execution 实现单笔下单与多子单执行策略（OCO、网格、TWAP）。
// 所有子单严格按序提交：前一笔结果未知前绝不提交下一笔。
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-trader/internal/exchange"
)

// Gateway 抽象交易所网关能力，便于测试替换。
type Gateway interface {
	SymbolConstraints(ctx context.Context, symbol string) (exchange.SymbolConstraints, error)
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SubmitOrder(ctx context.Context, spec exchange.OrderSpec) (exchange.OrderResult, error)
}

// BalanceGuard 抽象下单前的资金检查。
type BalanceGuard interface {
	HasSufficient(ctx context.Context, quantity, price decimal.Decimal) bool
	Asset() string
}

// Options 控制执行行为。
type Options struct {
	// SlicePrecision 为网格/TWAP 分片数量保留的小数位数。
	// 分片取整带来的总量漂移是接受的行为，不做补偿。
	SlicePrecision int32
}

// DefaultSlicePrecision 为分片数量默认保留的小数位数。
const DefaultSlicePrecision int32 = 6

// Engine 驱动校验、资金检查与委托提交的完整流水线。
// 每次策略调用独占自己的序号与部分结果累加器，组件之间没有共享可变状态。
type Engine struct {
	gateway Gateway
	guard   BalanceGuard
	logger  *zap.Logger
	opts    Options

	// wait 为 TWAP 片间等待，测试中替换为记录型实现。
	wait func(ctx context.Context, d time.Duration) error
}

// NewEngine 创建执行引擎。
func NewEngine(gateway Gateway, guard BalanceGuard, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SlicePrecision <= 0 {
		opts.SlicePrecision = DefaultSlicePrecision
	}
	return &Engine{
		gateway: gateway,
		guard:   guard,
		logger:  logger,
		opts:    opts,
		wait:    waitFor,
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ChildOrder 为策略中一笔已成功提交的子单。
type ChildOrder struct {
	Index     int
	OrderID   string
	Kind      exchange.OrderKind
	Side      exchange.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	Status    string
	PlacedAt  time.Time
}

// Report 为一次下单或策略调用的执行结果。
type Report struct {
	Strategy   string
	Symbol     string
	Planned    int
	Orders     []ChildOrder
	FinishedAt time.Time
}

// Completed 返回成功提交的子单数量。
func (r Report) Completed() int {
	return len(r.Orders)
}

// OrderParams 为单笔市价/限价委托的入参。
type OrderParams struct {
	Symbol   string
	Side     exchange.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal // 限价单必填
}

func (p OrderParams) validate(needPrice bool) error {
	if p.Symbol == "" {
		return &ConfigError{Reason: "symbol 不能为空"}
	}
	if !p.Side.Valid() {
		return &ConfigError{Reason: "side 必须为 BUY 或 SELL"}
	}
	if p.Quantity.Sign() <= 0 {
		return &ConfigError{Reason: "quantity 必须为正数"}
	}
	if needPrice && p.Price.Sign() <= 0 {
		return &ConfigError{Reason: "limit 委托必须提供正的 price"}
	}
	return nil
}
