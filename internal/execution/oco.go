package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-trader/internal/exchange"
	"futures-trader/internal/rules"
)

// OCOParams 描述一对模拟 OCO 委托。两腿彼此独立提交，交易所侧没有联动：
// 一腿成交不会撤销另一腿，这是明确的运行限制而非缺陷。
type OCOParams struct {
	Symbol      string
	Side        exchange.Side
	Quantity    decimal.Decimal
	TakeProfit  decimal.Decimal // 止盈限价
	StopTrigger decimal.Decimal // 止损触发价（按标记价格触发）
	StopLimit   decimal.Decimal // 保留字段：STOP_MARKET 不使用，供未来 STOP_LIMIT 支持
}

func (p OCOParams) validate() error {
	if p.Symbol == "" {
		return &ConfigError{Reason: "symbol 不能为空"}
	}
	if !p.Side.Valid() {
		return &ConfigError{Reason: "side 必须为 BUY 或 SELL"}
	}
	if p.Quantity.Sign() <= 0 {
		return &ConfigError{Reason: "quantity 必须为正数"}
	}
	if p.TakeProfit.Sign() <= 0 || p.StopTrigger.Sign() <= 0 || p.StopLimit.Sign() <= 0 {
		return &ConfigError{Reason: "oco 必须同时提供正的 tp、stop 与 sl"}
	}
	return nil
}

// OCO 状态推进：VALIDATING → BALANCE_CHECK → SUBMIT_TP → SUBMIT_SL → DONE，
// 任一步失败即短路到 FAILED。
type ocoState string

const (
	ocoValidating   ocoState = "VALIDATING"
	ocoBalanceCheck ocoState = "BALANCE_CHECK"
	ocoSubmitTP     ocoState = "SUBMIT_TP"
	ocoSubmitSL     ocoState = "SUBMIT_SL"
	ocoDone         ocoState = "DONE"
	ocoFailed       ocoState = "FAILED"
)

// PlaceOCO 提交模拟 OCO：先止盈 LIMIT 腿，再止损 STOP_MARKET 腿。
// 两腿占用同一笔名义敞口且最终只会成交一腿，因此资金只按更贵的价格检查一次。
// 止盈腿成功而止损腿失败时返回 PartialFailureError，不会自动回滚已提交的腿。
func (e *Engine) PlaceOCO(ctx context.Context, p OCOParams) (Report, error) {
	report := Report{Strategy: "oco", Symbol: p.Symbol, Planned: 2}

	state := ocoValidating
	fail := func(err error) (Report, error) {
		failedAt := state
		state = ocoFailed
		e.logger.Warn("OCO 执行失败",
			zap.String("symbol", p.Symbol),
			zap.String("failed_at", string(failedAt)),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		report.FinishedAt = time.Now().UTC()
		return report, abortErr("oco", report.Planned, report.Orders, len(report.Orders), err)
	}

	if err := p.validate(); err != nil {
		return fail(err)
	}

	constraints, err := e.gateway.SymbolConstraints(ctx, p.Symbol)
	if err != nil {
		return fail(err)
	}
	if err := rules.Check(constraints, p.Quantity, &p.TakeProfit); err != nil {
		return fail(err)
	}
	if err := rules.CheckPrice(constraints, p.StopTrigger); err != nil {
		return fail(err)
	}

	state = ocoBalanceCheck
	worstPrice := p.TakeProfit
	if p.StopTrigger.GreaterThan(worstPrice) {
		worstPrice = p.StopTrigger
	}
	if !e.guard.HasSufficient(ctx, p.Quantity, worstPrice) {
		return fail(&InsufficientBalanceError{
			Asset:    e.guard.Asset(),
			Required: p.Quantity.Mul(worstPrice),
		})
	}

	state = ocoSubmitTP
	tp, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:      p.Symbol,
		Side:        p.Side,
		Kind:        exchange.KindLimit,
		Quantity:    p.Quantity,
		Price:       p.TakeProfit,
		TimeInForce: exchange.TimeInForceGTC,
	})
	if err != nil {
		return fail(err)
	}
	e.logger.Info("止盈腿已提交",
		zap.String("symbol", p.Symbol),
		zap.String("order_id", tp.OrderID),
		zap.String("price", p.TakeProfit.String()),
	)
	report.Orders = append(report.Orders, ChildOrder{
		Index:    0,
		OrderID:  tp.OrderID,
		Kind:     exchange.KindLimit,
		Side:     p.Side,
		Quantity: tp.Quantity,
		Price:    p.TakeProfit,
		Status:   tp.Status,
		PlacedAt: tp.Timestamp,
	})

	state = ocoSubmitSL
	sl, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:    p.Symbol,
		Side:      p.Side,
		Kind:      exchange.KindStopMarket,
		Quantity:  p.Quantity,
		StopPrice: p.StopTrigger,
	})
	if err != nil {
		// 止盈腿已在场，这里是部分失败而非整单失败。
		return fail(err)
	}
	e.logger.Info("止损腿已提交",
		zap.String("symbol", p.Symbol),
		zap.String("order_id", sl.OrderID),
		zap.String("stop_price", p.StopTrigger.String()),
	)
	report.Orders = append(report.Orders, ChildOrder{
		Index:     1,
		OrderID:   sl.OrderID,
		Kind:      exchange.KindStopMarket,
		Side:      p.Side,
		Quantity:  sl.Quantity,
		StopPrice: p.StopTrigger,
		Status:    sl.Status,
		PlacedAt:  sl.Timestamp,
	})

	state = ocoDone
	e.logger.Info("OCO 执行完成",
		zap.String("symbol", p.Symbol),
		zap.String("state", string(state)),
		zap.String("tp_order_id", tp.OrderID),
		zap.String("sl_order_id", sl.OrderID),
	)
	report.FinishedAt = time.Now().UTC()
	return report, nil
}
