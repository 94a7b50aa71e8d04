package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-trader/internal/exchange"
	"futures-trader/internal/rules"
)

// GridParams 描述一次网格执行：把总量均分到 [lower, upper] 上等距的价格档。
type GridParams struct {
	Symbol        string
	Side          exchange.Side
	TotalQuantity decimal.Decimal
	LowerPrice    decimal.Decimal
	UpperPrice    decimal.Decimal
	Count         int
}

func (p GridParams) validate() error {
	if p.Symbol == "" {
		return &ConfigError{Reason: "symbol 不能为空"}
	}
	if !p.Side.Valid() {
		return &ConfigError{Reason: "side 必须为 BUY 或 SELL"}
	}
	if p.TotalQuantity.Sign() <= 0 {
		return &ConfigError{Reason: "total_quantity 必须为正数"}
	}
	if p.Count < 2 {
		return &ConfigError{Reason: "grid_count 不得小于 2"}
	}
	if p.LowerPrice.Sign() <= 0 {
		return &ConfigError{Reason: "lower_price 必须为正数"}
	}
	if !p.UpperPrice.GreaterThan(p.LowerPrice) {
		return &ConfigError{Reason: "upper_price 必须大于 lower_price"}
	}
	return nil
}

// gridLevels 计算各档价格：step = (upper-lower)/(count-1)，
// 第 i 档价格为 lower + i*step，按交易对 tick 精度取整，首尾两档落在边界上。
func gridLevels(p GridParams, precision int32) []decimal.Decimal {
	step := p.UpperPrice.Sub(p.LowerPrice).
		Div(decimal.NewFromInt(int64(p.Count - 1)))

	levels := make([]decimal.Decimal, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		price := p.LowerPrice.
			Add(step.Mul(decimal.NewFromInt(int64(i)))).
			Round(precision)
		levels = append(levels, price)
	}
	return levels
}

// ExecuteGrid 按升序逐档提交 LIMIT 委托，严格串行。
// 第 i 档失败时放弃其后所有档；0..i-1 档已在交易所生效，
// 通过 PartialFailureError 报告成功档数与各档委托 ID。
// 分片数量取整后的总量漂移是接受的行为。
func (e *Engine) ExecuteGrid(ctx context.Context, p GridParams) (Report, error) {
	report := Report{Strategy: "grid", Symbol: p.Symbol, Planned: p.Count}

	if err := p.validate(); err != nil {
		return report, err
	}

	constraints, err := e.gateway.SymbolConstraints(ctx, p.Symbol)
	if err != nil {
		return report, err
	}

	levels := gridLevels(p, constraints.PricePrecision())
	sliceQty := p.TotalQuantity.
		Div(decimal.NewFromInt(int64(p.Count))).
		Round(e.opts.SlicePrecision)

	e.logger.Info("开始网格执行",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.Int("count", p.Count),
		zap.String("lower", p.LowerPrice.String()),
		zap.String("upper", p.UpperPrice.String()),
		zap.String("slice_quantity", sliceQty.String()),
	)

	for i, price := range levels {
		if err := ctx.Err(); err != nil {
			return report, abortErr("grid", p.Count, report.Orders, i, err)
		}

		if err := rules.Check(constraints, sliceQty, &price); err != nil {
			return report, abortErr("grid", p.Count, report.Orders, i, err)
		}

		if !e.guard.HasSufficient(ctx, sliceQty, price) {
			return report, abortErr("grid", p.Count, report.Orders, i, &InsufficientBalanceError{
				Asset:    e.guard.Asset(),
				Required: sliceQty.Mul(price),
			})
		}

		result, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
			Symbol:      p.Symbol,
			Side:        p.Side,
			Kind:        exchange.KindLimit,
			Quantity:    sliceQty,
			Price:       price,
			TimeInForce: exchange.TimeInForceGTC,
		})
		if err != nil {
			return report, abortErr("grid", p.Count, report.Orders, i, err)
		}

		e.logger.Info("网格档已提交",
			zap.Int("level", i+1),
			zap.Int("count", p.Count),
			zap.String("price", price.String()),
			zap.String("order_id", result.OrderID),
			zap.String("status", result.Status),
		)

		report.Orders = append(report.Orders, ChildOrder{
			Index:    i,
			OrderID:  result.OrderID,
			Kind:     exchange.KindLimit,
			Side:     p.Side,
			Quantity: sliceQty,
			Price:    price,
			Status:   result.Status,
			PlacedAt: result.Timestamp,
		})
	}

	report.FinishedAt = time.Now().UTC()
	e.logger.Info("网格执行完成",
		zap.String("symbol", p.Symbol),
		zap.Int("placed", report.Completed()),
	)
	return report, nil
}
