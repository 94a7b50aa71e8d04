// Package account 提供下单前的资金检查。
package account

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// balanceSource 抽象余额查询，便于测试替换。
type balanceSource interface {
	AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Guard 在提交委托前确认结算资产余额足以覆盖名义成本。
// 已知局限：不考虑已有持仓、杠杆与维持保证金，是一个保守近似。
type Guard struct {
	source balanceSource
	asset  string
	logger *zap.Logger
}

// NewGuard 创建资金检查器，asset 为结算资产（如 USDT）。
func NewGuard(source balanceSource, asset string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		source: source,
		asset:  asset,
		logger: logger,
	}
}

// Asset 返回结算资产代码。
func (g *Guard) Asset() string {
	return g.asset
}

// HasSufficient 判断余额是否覆盖 quantity*price 的名义成本。
// 余额查询失败时视为不足（fail closed），绝不放行未知余额状态的委托。
func (g *Guard) HasSufficient(ctx context.Context, quantity, price decimal.Decimal) bool {
	required := quantity.Mul(price)

	available, err := g.source.AvailableBalance(ctx, g.asset)
	if err != nil {
		g.logger.Error("查询余额失败，按余额不足处理",
			zap.String("asset", g.asset),
			zap.Error(err),
		)
		return false
	}

	g.logger.Debug("余额检查",
		zap.String("asset", g.asset),
		zap.String("required", required.String()),
		zap.String("available", available.String()),
	)

	return available.GreaterThanOrEqual(required)
}
