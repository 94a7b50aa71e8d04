package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid 判断方向是否合法。
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderKind 表示委托类型。
type OrderKind string

const (
	KindMarket     OrderKind = "MARKET"
	KindLimit      OrderKind = "LIMIT"
	KindStopMarket OrderKind = "STOP_MARKET"
)

// TimeInForceGTC 为限价单默认有效期：成交或撤销前一直有效。
const TimeInForceGTC = "GTC"

// SymbolConstraints 为交易所发布的单交易对量化约束。
// 字段全部由原始过滤器字符串经 decimal 解析得到，保证精度无损。
type SymbolConstraints struct {
	Symbol       string
	MinQuantity  decimal.Decimal
	QuantityStep decimal.Decimal
	MinPrice     decimal.Decimal
	PriceTick    decimal.Decimal
}

// PricePrecision 返回价格应保留的小数位数，由 tick 的指数推出。
func (c SymbolConstraints) PricePrecision() int32 {
	exp := c.PriceTick.Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// OrderSpec 描述一笔待提交的委托，构造后不再修改。
type OrderSpec struct {
	Symbol      string
	Side        Side
	Kind        OrderKind
	Quantity    decimal.Decimal
	Price       decimal.Decimal // 限价单必填
	StopPrice   decimal.Decimal // STOP_MARKET 触发价
	TimeInForce string
}

// OrderResult 为交易所返回的委托回执，仅由网关构造。
type OrderResult struct {
	OrderID   string
	Symbol    string
	Side      string
	Kind      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Status    string
	Timestamp time.Time
}
