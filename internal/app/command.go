package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"futures-trader/internal/exchange"
	"futures-trader/internal/execution"
)

// 支持的命令。
const (
	CommandMarket = "market"
	CommandLimit  = "limit"
	CommandOCO    = "oco"
	CommandGrid   = "grid"
	CommandTWAP   = "twap"
)

// Command 承载一次 CLI 调用的原始入参。数值字段保持十进制字符串形态，
// 由本层经 decimal 解析后才进入核心，缺失或畸形一律拒绝，不做静默兜底。
type Command struct {
	Name   string
	Symbol string
	Side   string

	// market / limit / oco
	Quantity string
	Price    string

	// oco
	TakeProfit  string
	StopTrigger string
	StopLimit   string

	// grid / twap
	TotalQuantity string
	LowerPrice    string
	UpperPrice    string
	GridCount     int
	NumSlices     int
	IntervalSecs  int
	OrderType     string
}

func (c Command) side() exchange.Side {
	return exchange.Side(strings.ToUpper(strings.TrimSpace(c.Side)))
}

func (c Command) symbol() string {
	return strings.ToUpper(strings.TrimSpace(c.Symbol))
}

// Args 返回用于审计日志的入参摘要，不含空字段。
func (c Command) Args() map[string]string {
	args := map[string]string{"side": c.Side}
	set := func(key, value string) {
		if value != "" {
			args[key] = value
		}
	}
	set("quantity", c.Quantity)
	set("price", c.Price)
	set("tp", c.TakeProfit)
	set("stop", c.StopTrigger)
	set("sl", c.StopLimit)
	set("total_quantity", c.TotalQuantity)
	set("lower_price", c.LowerPrice)
	set("upper_price", c.UpperPrice)
	if c.GridCount != 0 {
		args["grid_count"] = fmt.Sprintf("%d", c.GridCount)
	}
	if c.NumSlices != 0 {
		args["num_slices"] = fmt.Sprintf("%d", c.NumSlices)
	}
	if c.IntervalSecs != 0 {
		args["interval"] = fmt.Sprintf("%d", c.IntervalSecs)
	}
	set("type", c.OrderType)
	return args
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, &execution.ConfigError{Reason: fmt.Sprintf("%s 不能为空", field)}
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &execution.ConfigError{Reason: fmt.Sprintf("%s=%q 不是合法的十进制数", field, trimmed)}
	}
	return value, nil
}

func (c Command) toOrderParams(needPrice bool) (execution.OrderParams, error) {
	quantity, err := parseDecimal("quantity", c.Quantity)
	if err != nil {
		return execution.OrderParams{}, err
	}

	params := execution.OrderParams{
		Symbol:   c.symbol(),
		Side:     c.side(),
		Quantity: quantity,
	}

	if needPrice {
		price, err := parseDecimal("price", c.Price)
		if err != nil {
			return execution.OrderParams{}, err
		}
		params.Price = price
	}

	return params, nil
}

func (c Command) toOCOParams() (execution.OCOParams, error) {
	quantity, err := parseDecimal("quantity", c.Quantity)
	if err != nil {
		return execution.OCOParams{}, err
	}
	tp, err := parseDecimal("tp", c.TakeProfit)
	if err != nil {
		return execution.OCOParams{}, err
	}
	stop, err := parseDecimal("stop", c.StopTrigger)
	if err != nil {
		return execution.OCOParams{}, err
	}
	sl, err := parseDecimal("sl", c.StopLimit)
	if err != nil {
		return execution.OCOParams{}, err
	}

	return execution.OCOParams{
		Symbol:      c.symbol(),
		Side:        c.side(),
		Quantity:    quantity,
		TakeProfit:  tp,
		StopTrigger: stop,
		StopLimit:   sl,
	}, nil
}

func (c Command) toGridParams() (execution.GridParams, error) {
	total, err := parseDecimal("total_quantity", c.TotalQuantity)
	if err != nil {
		return execution.GridParams{}, err
	}
	lower, err := parseDecimal("lower_price", c.LowerPrice)
	if err != nil {
		return execution.GridParams{}, err
	}
	upper, err := parseDecimal("upper_price", c.UpperPrice)
	if err != nil {
		return execution.GridParams{}, err
	}

	return execution.GridParams{
		Symbol:        c.symbol(),
		Side:          c.side(),
		TotalQuantity: total,
		LowerPrice:    lower,
		UpperPrice:    upper,
		Count:         c.GridCount,
	}, nil
}

func (c Command) toTWAPParams() (execution.TWAPParams, error) {
	total, err := parseDecimal("total_quantity", c.TotalQuantity)
	if err != nil {
		return execution.TWAPParams{}, err
	}

	kind := exchange.OrderKind(strings.ToUpper(strings.TrimSpace(c.OrderType)))
	if kind == "" {
		kind = exchange.KindMarket
	}

	return execution.TWAPParams{
		Symbol:        c.symbol(),
		Side:          c.side(),
		TotalQuantity: total,
		NumSlices:     c.NumSlices,
		Interval:      time.Duration(c.IntervalSecs) * time.Second,
		Kind:          kind,
	}, nil
}
