package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"futures-trader/internal/exchange"
	"futures-trader/internal/rules"
)

// PlaceMarket 提交一笔市价委托：只校验数量，按当前标记价格估算成本做资金检查。
// 任一步失败即短路，单笔委托不存在部分提交。
func (e *Engine) PlaceMarket(ctx context.Context, p OrderParams) (Report, error) {
	report := Report{Strategy: "market", Symbol: p.Symbol, Planned: 1}

	if err := p.validate(false); err != nil {
		return report, err
	}

	constraints, err := e.gateway.SymbolConstraints(ctx, p.Symbol)
	if err != nil {
		return report, err
	}
	if err := rules.CheckQuantity(constraints, p.Quantity); err != nil {
		return report, err
	}

	mark, err := e.gateway.MarkPrice(ctx, p.Symbol)
	if err != nil {
		return report, err
	}
	if !e.guard.HasSufficient(ctx, p.Quantity, mark) {
		return report, &InsufficientBalanceError{
			Asset:    e.guard.Asset(),
			Required: p.Quantity.Mul(mark),
		}
	}

	result, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:   p.Symbol,
		Side:     p.Side,
		Kind:     exchange.KindMarket,
		Quantity: p.Quantity,
	})
	if err != nil {
		return report, err
	}

	e.logger.Info("市价委托已提交",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.String("quantity", p.Quantity.String()),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
	)

	report.Orders = append(report.Orders, ChildOrder{
		OrderID:  result.OrderID,
		Kind:     exchange.KindMarket,
		Side:     p.Side,
		Quantity: result.Quantity,
		Status:   result.Status,
		PlacedAt: result.Timestamp,
	})
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// PlaceLimit 提交一笔限价委托（GTC）：校验数量与价格，按给定价格做资金检查。
func (e *Engine) PlaceLimit(ctx context.Context, p OrderParams) (Report, error) {
	report := Report{Strategy: "limit", Symbol: p.Symbol, Planned: 1}

	if err := p.validate(true); err != nil {
		return report, err
	}

	constraints, err := e.gateway.SymbolConstraints(ctx, p.Symbol)
	if err != nil {
		return report, err
	}
	if err := rules.Check(constraints, p.Quantity, &p.Price); err != nil {
		return report, err
	}

	if !e.guard.HasSufficient(ctx, p.Quantity, p.Price) {
		return report, &InsufficientBalanceError{
			Asset:    e.guard.Asset(),
			Required: p.Quantity.Mul(p.Price),
		}
	}

	result, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:      p.Symbol,
		Side:        p.Side,
		Kind:        exchange.KindLimit,
		Quantity:    p.Quantity,
		Price:       p.Price,
		TimeInForce: exchange.TimeInForceGTC,
	})
	if err != nil {
		return report, err
	}

	e.logger.Info("限价委托已提交",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.String("quantity", p.Quantity.String()),
		zap.String("price", p.Price.String()),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
	)

	report.Orders = append(report.Orders, ChildOrder{
		OrderID:  result.OrderID,
		Kind:     exchange.KindLimit,
		Side:     p.Side,
		Quantity: result.Quantity,
		Price:    result.Price,
		Status:   result.Status,
		PlacedAt: result.Timestamp,
	})
	report.FinishedAt = time.Now().UTC()
	return report, nil
}
