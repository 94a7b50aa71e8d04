package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"futures-trader/internal/exchange"
	"futures-trader/internal/rules"
)

func TestPlaceMarket_UsesMarkPriceForBalanceCheck(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints(), mark: dec(t, "50000")}
	guard := &fakeGuard{}
	engine := newTestEngine(gw, guard)

	report, err := engine.PlaceMarket(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Quantity: dec(t, "0.002"),
	})
	if err != nil {
		t.Fatalf("PlaceMarket returned error: %v", err)
	}

	if len(guard.prices) != 1 || !guard.prices[0].Equal(dec(t, "50000")) {
		t.Errorf("balance check should use mark price, got %v", guard.prices)
	}
	if len(gw.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(gw.submitted))
	}
	spec := gw.submitted[0]
	if spec.Kind != exchange.KindMarket {
		t.Errorf("expected MARKET, got %s", spec.Kind)
	}
	if spec.Price.Sign() != 0 {
		t.Errorf("market order must not carry a price, got %s", spec.Price)
	}
	if report.Completed() != 1 || report.Orders[0].OrderID != "ORD-1" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Orders[0].PlacedAt.IsZero() {
		t.Error("child order must carry the gateway submission time")
	}
}

func TestPlaceMarket_StepViolationStopsBeforeSubmission(t *testing.T) {
	constraints := testConstraints()
	constraints.QuantityStep = dec(t, "0.001")
	constraints.MinQuantity = dec(t, "0.001")
	gw := &fakeGateway{constraints: constraints, mark: dec(t, "50000")}
	guard := &fakeGuard{}
	engine := newTestEngine(gw, guard)

	_, err := engine.PlaceMarket(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Quantity: dec(t, "0.0015"),
	})

	var verr *rules.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(guard.prices) != 0 {
		t.Error("balance must not be checked after validation failure")
	}
	if gw.submitCount() != 0 {
		t.Error("order must not be submitted after validation failure")
	}
}

func TestPlaceMarket_InsufficientBalancePreventsSubmission(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints(), mark: dec(t, "50000")}
	guard := &fakeGuard{denyAll: true}
	engine := newTestEngine(gw, guard)

	_, err := engine.PlaceMarket(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Quantity: dec(t, "0.002"),
	})

	var berr *InsufficientBalanceError
	if !errors.As(err, &berr) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
	if !berr.Required.Equal(dec(t, "100")) {
		t.Errorf("expected required=100, got %s", berr.Required)
	}
	if gw.submitCount() != 0 {
		t.Error("order must not be submitted after balance denial")
	}
}

func TestPlaceLimit_ValidatesPriceAndSubmitsGTC(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	guard := &fakeGuard{}
	engine := newTestEngine(gw, guard)

	report, err := engine.PlaceLimit(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideSell,
		Quantity: dec(t, "0.002"),
		Price:    dec(t, "51000.50"),
	})
	if err != nil {
		t.Fatalf("PlaceLimit returned error: %v", err)
	}

	if len(guard.prices) != 1 || !guard.prices[0].Equal(dec(t, "51000.50")) {
		t.Errorf("balance check should use the limit price, got %v", guard.prices)
	}
	spec := gw.submitted[0]
	if spec.Kind != exchange.KindLimit || spec.TimeInForce != exchange.TimeInForceGTC {
		t.Errorf("expected LIMIT/GTC, got %s/%s", spec.Kind, spec.TimeInForce)
	}
	if report.Orders[0].Price.Cmp(decimal.Zero) == 0 {
		t.Error("limit report should echo the price")
	}
}

func TestPlaceLimit_RejectsMisalignedPrice(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	engine := newTestEngine(gw, &fakeGuard{})

	_, err := engine.PlaceLimit(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Quantity: dec(t, "0.002"),
		Price:    dec(t, "51000.505"), // tick 为 0.01
	})

	var verr *rules.ValidationError
	if !errors.As(err, &verr) || verr.Field != rules.FieldPrice {
		t.Fatalf("expected price validation error, got %v", err)
	}
	if gw.submitCount() != 0 {
		t.Error("order must not be submitted after price rejection")
	}
}

func TestPlaceLimit_MissingPriceIsConfigError(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	engine := newTestEngine(gw, &fakeGuard{})

	_, err := engine.PlaceLimit(context.Background(), OrderParams{
		Symbol:   "BTCUSDT",
		Side:     exchange.SideBuy,
		Quantity: dec(t, "0.002"),
	})

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("config errors must precede any gateway call, got %v", gw.calls)
	}
}
