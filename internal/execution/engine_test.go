package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"futures-trader/internal/exchange"
)

// fakeGateway 按序记录网关调用并返回可编排的结果。
type fakeGateway struct {
	constraints    exchange.SymbolConstraints
	constraintsErr error
	mark           decimal.Decimal
	markErr        error

	calls       []string
	submitted   []exchange.OrderSpec
	failAtCall  int // 第 N 次提交返回错误（1 起），0 表示从不失败
	submitFault error
}

func (g *fakeGateway) SymbolConstraints(_ context.Context, _ string) (exchange.SymbolConstraints, error) {
	g.calls = append(g.calls, "constraints")
	if g.constraintsErr != nil {
		return exchange.SymbolConstraints{}, g.constraintsErr
	}
	return g.constraints, nil
}

func (g *fakeGateway) MarkPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	g.calls = append(g.calls, "mark")
	if g.markErr != nil {
		return decimal.Zero, g.markErr
	}
	return g.mark, nil
}

func (g *fakeGateway) SubmitOrder(_ context.Context, spec exchange.OrderSpec) (exchange.OrderResult, error) {
	g.calls = append(g.calls, "submit")
	n := len(g.submitted) + 1
	if g.failAtCall != 0 && n == g.failAtCall {
		fault := g.submitFault
		if fault == nil {
			fault = &exchange.Fault{Op: "create_order", Code: "-1001", Message: "transient error"}
		}
		return exchange.OrderResult{}, fault
	}
	g.submitted = append(g.submitted, spec)
	return exchange.OrderResult{
		OrderID:   fmt.Sprintf("ORD-%d", n),
		Symbol:    spec.Symbol,
		Side:      string(spec.Side),
		Kind:      string(spec.Kind),
		Quantity:  spec.Quantity,
		Price:     spec.Price,
		Status:    "NEW",
		Timestamp: time.Now().UTC(),
	}, nil
}

func (g *fakeGateway) submitCount() int {
	count := 0
	for _, call := range g.calls {
		if call == "submit" {
			count++
		}
	}
	return count
}

// fakeGuard 记录每次检查使用的价格，可在第 N 次检查时拒绝。
type fakeGuard struct {
	denyAtCall int // 第 N 次检查返回 false（1 起），0 表示一直放行
	denyAll    bool
	prices     []decimal.Decimal
}

func (f *fakeGuard) HasSufficient(_ context.Context, _, price decimal.Decimal) bool {
	f.prices = append(f.prices, price)
	if f.denyAll {
		return false
	}
	return f.denyAtCall == 0 || len(f.prices) != f.denyAtCall
}

func (f *fakeGuard) Asset() string {
	return "USDT"
}

func testConstraints() exchange.SymbolConstraints {
	return exchange.SymbolConstraints{
		Symbol:       "BTCUSDT",
		MinQuantity:  decimal.RequireFromString("0.000001"),
		QuantityStep: decimal.RequireFromString("0.000001"),
		MinPrice:     decimal.RequireFromString("0.01"),
		PriceTick:    decimal.RequireFromString("0.01"),
	}
}

func newTestEngine(gw *fakeGateway, guard *fakeGuard) *Engine {
	return NewEngine(gw, guard, Options{}, nil)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}
