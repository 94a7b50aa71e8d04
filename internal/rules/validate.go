// Package rules 实现交易所量化规则校验。
// 所有整除性判断都在 decimal 上进行，绝不使用二进制浮点求余：
// 0.001 这类步长在 float64 下不可精确表示，浮点判断会在倍数附近误判。
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"futures-trader/internal/exchange"
)

// 校验字段。
const (
	FieldQuantity = "quantity"
	FieldPrice    = "price"
)

// 违反的规则。
const (
	RuleMin  = "min"
	RuleStep = "step"
)

// ValidationError 描述一次量化校验失败：哪个字段、违反哪条规则、
// 具体数值与阈值，供调用方构造可操作的提示。
type ValidationError struct {
	Symbol    string
	Field     string
	Rule      string
	Value     decimal.Decimal
	Threshold decimal.Decimal
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case RuleMin:
		return fmt.Sprintf("rules: %s 的 %s=%s 低于最小值 %s",
			e.Symbol, e.Field, e.Value, e.Threshold)
	default:
		return fmt.Sprintf("rules: %s 的 %s=%s 不满足步长 %s",
			e.Symbol, e.Field, e.Value, e.Threshold)
	}
}

// CheckQuantity 校验数量满足最小值与步长规则。
// 纯函数：相同输入必然得到相同结论，不做任何取整或纠正。
func CheckQuantity(c exchange.SymbolConstraints, quantity decimal.Decimal) error {
	return check(c.Symbol, FieldQuantity, quantity, c.MinQuantity, c.QuantityStep)
}

// CheckPrice 校验价格满足最小值与 tick 规则。
func CheckPrice(c exchange.SymbolConstraints, price decimal.Decimal) error {
	return check(c.Symbol, FieldPrice, price, c.MinPrice, c.PriceTick)
}

// Check 按委托内容依次校验数量与可选价格。
func Check(c exchange.SymbolConstraints, quantity decimal.Decimal, price *decimal.Decimal) error {
	if err := CheckQuantity(c, quantity); err != nil {
		return err
	}
	if price != nil {
		return CheckPrice(c, *price)
	}
	return nil
}

func check(symbol, field string, value, min, step decimal.Decimal) error {
	if value.LessThan(min) {
		return &ValidationError{
			Symbol:    symbol,
			Field:     field,
			Rule:      RuleMin,
			Value:     value,
			Threshold: min,
		}
	}

	// (value - min) 必须是 step 的精确整数倍。
	if !value.Sub(min).Mod(step).IsZero() {
		return &ValidationError{
			Symbol:    symbol,
			Field:     field,
			Rule:      RuleStep,
			Value:     value,
			Threshold: step,
		}
	}

	return nil
}
