package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-trader/internal/exchange"
	"futures-trader/internal/rules"
)

// TWAPParams 描述一次 TWAP 执行：把总量均分成若干片，按固定间隔逐片提交。
type TWAPParams struct {
	Symbol        string
	Side          exchange.Side
	TotalQuantity decimal.Decimal
	NumSlices     int
	Interval      time.Duration
	Kind          exchange.OrderKind // MARKET 或 LIMIT
}

func (p TWAPParams) validate() error {
	if p.Symbol == "" {
		return &ConfigError{Reason: "symbol 不能为空"}
	}
	if !p.Side.Valid() {
		return &ConfigError{Reason: "side 必须为 BUY 或 SELL"}
	}
	if p.TotalQuantity.Sign() <= 0 {
		return &ConfigError{Reason: "total_quantity 必须为正数"}
	}
	if p.NumSlices < 1 {
		return &ConfigError{Reason: "num_slices 不得小于 1"}
	}
	if p.Interval <= 0 {
		return &ConfigError{Reason: "interval 必须为正"}
	}
	if p.Kind != exchange.KindMarket && p.Kind != exchange.KindLimit {
		return &ConfigError{Reason: "type 必须为 MARKET 或 LIMIT"}
	}
	return nil
}

// ExecuteTWAP 按序提交每一片：校验数量 → 取标记价格估算成本 → 资金检查 →
// 提交（市价，或以标记价格挂 GTC 限价）→ 非最后一片时等待固定间隔。
// 片 i 的结果未知前绝不提交片 i+1；相邻提交间隔不小于 Interval。
// 片 i 失败时放弃其后所有片，已完成片通过 PartialFailureError 报告。
func (e *Engine) ExecuteTWAP(ctx context.Context, p TWAPParams) (Report, error) {
	report := Report{Strategy: "twap", Symbol: p.Symbol, Planned: p.NumSlices}

	if err := p.validate(); err != nil {
		return report, err
	}

	constraints, err := e.gateway.SymbolConstraints(ctx, p.Symbol)
	if err != nil {
		return report, err
	}

	sliceQty := p.TotalQuantity.
		Div(decimal.NewFromInt(int64(p.NumSlices))).
		Round(e.opts.SlicePrecision)

	e.logger.Info("开始 TWAP 执行",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.Int("slices", p.NumSlices),
		zap.Duration("interval", p.Interval),
		zap.String("slice_quantity", sliceQty.String()),
		zap.String("type", string(p.Kind)),
	)

	for i := 0; i < p.NumSlices; i++ {
		if err := ctx.Err(); err != nil {
			return report, abortErr("twap", p.NumSlices, report.Orders, i, err)
		}

		if err := rules.CheckQuantity(constraints, sliceQty); err != nil {
			return report, abortErr("twap", p.NumSlices, report.Orders, i, err)
		}

		mark, err := e.gateway.MarkPrice(ctx, p.Symbol)
		if err != nil {
			return report, abortErr("twap", p.NumSlices, report.Orders, i, err)
		}

		if !e.guard.HasSufficient(ctx, sliceQty, mark) {
			return report, abortErr("twap", p.NumSlices, report.Orders, i, &InsufficientBalanceError{
				Asset:    e.guard.Asset(),
				Required: sliceQty.Mul(mark),
			})
		}

		spec := exchange.OrderSpec{
			Symbol:   p.Symbol,
			Side:     p.Side,
			Kind:     p.Kind,
			Quantity: sliceQty,
		}
		if p.Kind == exchange.KindLimit {
			spec.Price = mark.Round(constraints.PricePrecision())
			spec.TimeInForce = exchange.TimeInForceGTC
		}

		result, err := e.gateway.SubmitOrder(ctx, spec)
		if err != nil {
			return report, abortErr("twap", p.NumSlices, report.Orders, i, err)
		}

		e.logger.Info("TWAP 片已提交",
			zap.Int("slice", i+1),
			zap.Int("slices", p.NumSlices),
			zap.String("order_id", result.OrderID),
			zap.String("status", result.Status),
		)

		report.Orders = append(report.Orders, ChildOrder{
			Index:    i,
			OrderID:  result.OrderID,
			Kind:     p.Kind,
			Side:     p.Side,
			Quantity: sliceQty,
			Price:    spec.Price,
			Status:   result.Status,
			PlacedAt: result.Timestamp,
		})

		if i < p.NumSlices-1 {
			if err := e.wait(ctx, p.Interval); err != nil {
				return report, abortErr("twap", p.NumSlices, report.Orders, i+1, err)
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	e.logger.Info("TWAP 执行完成",
		zap.String("symbol", p.Symbol),
		zap.Int("placed", report.Completed()),
	)
	return report, nil
}
