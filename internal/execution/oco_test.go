package execution

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"futures-trader/internal/exchange"
)

func ocoParams(t *testing.T) OCOParams {
	t.Helper()
	return OCOParams{
		Symbol:      "BTCUSDT",
		Side:        exchange.SideSell,
		Quantity:    dec(t, "0.002"),
		TakeProfit:  dec(t, "52000"),
		StopTrigger: dec(t, "48000"),
		StopLimit:   dec(t, "47900"),
	}
}

func TestPlaceOCO_SubmitsBothLegsInOrder(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	guard := &fakeGuard{}
	engine := newTestEngine(gw, guard)

	report, err := engine.PlaceOCO(context.Background(), ocoParams(t))
	if err != nil {
		t.Fatalf("PlaceOCO returned error: %v", err)
	}

	if len(gw.submitted) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(gw.submitted))
	}
	tp, sl := gw.submitted[0], gw.submitted[1]
	if tp.Kind != exchange.KindLimit || tp.TimeInForce != exchange.TimeInForceGTC {
		t.Errorf("take-profit leg should be LIMIT/GTC, got %s/%s", tp.Kind, tp.TimeInForce)
	}
	if sl.Kind != exchange.KindStopMarket || !sl.StopPrice.Equal(dec(t, "48000")) {
		t.Errorf("stop leg should be STOP_MARKET@48000, got %s@%s", sl.Kind, sl.StopPrice)
	}
	if report.Completed() != 2 {
		t.Errorf("expected 2 children in report, got %d", report.Completed())
	}
}

func TestPlaceOCO_BalanceCheckedOnceAtWorsePrice(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	guard := &fakeGuard{}
	engine := newTestEngine(gw, guard)

	if _, err := engine.PlaceOCO(context.Background(), ocoParams(t)); err != nil {
		t.Fatalf("PlaceOCO returned error: %v", err)
	}

	if len(guard.prices) != 1 {
		t.Fatalf("expected a single balance check, got %d", len(guard.prices))
	}
	if !guard.prices[0].Equal(dec(t, "52000")) {
		t.Errorf("balance should be checked at the worse price 52000, got %s", guard.prices[0])
	}
}

func TestPlaceOCO_TakeProfitFailureSkipsStopLeg(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints(), failAtCall: 1}
	engine := newTestEngine(gw, &fakeGuard{})

	_, err := engine.PlaceOCO(context.Background(), ocoParams(t))

	var fault *exchange.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected gateway fault, got %v", err)
	}
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		t.Fatal("zero successful legs must be a total failure, not a partial one")
	}
	if gw.submitCount() != 1 {
		t.Errorf("stop leg must never be attempted after TP failure, got %d submits", gw.submitCount())
	}
}

func TestPlaceOCO_StopLegFailureIsPartialNamingTPOrder(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints(), failAtCall: 2}
	engine := newTestEngine(gw, &fakeGuard{})

	report, err := engine.PlaceOCO(context.Background(), ocoParams(t))

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if len(partial.Succeeded) != 1 || partial.Succeeded[0].OrderID != "ORD-1" {
		t.Errorf("partial failure must name the live TP order, got %+v", partial.Succeeded)
	}
	if partial.Succeeded[0].Kind != exchange.KindLimit {
		t.Errorf("live leg should be the LIMIT take-profit, got %s", partial.Succeeded[0].Kind)
	}
	if report.Completed() != 1 {
		t.Errorf("report should carry the one live leg, got %d", report.Completed())
	}
}

func TestPlaceOCO_ValidatesBothPricesBeforeAnySubmission(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	engine := newTestEngine(gw, &fakeGuard{})

	p := ocoParams(t)
	p.StopTrigger = dec(t, "48000.005") // tick 为 0.01
	if _, err := engine.PlaceOCO(context.Background(), p); err == nil {
		t.Fatal("misaligned stop trigger must be rejected")
	}
	if gw.submitCount() != 0 {
		t.Error("nothing may be submitted when either leg fails validation")
	}
}

func TestPlaceOCO_MissingFieldIsConfigError(t *testing.T) {
	gw := &fakeGateway{constraints: testConstraints()}
	engine := newTestEngine(gw, &fakeGuard{})

	p := ocoParams(t)
	p.StopLimit = dec(t, "0")
	_, err := engine.PlaceOCO(context.Background(), p)

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected config error for missing sl, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("config errors must precede any gateway call, got %v", gw.calls)
	}
}

func TestPlaceOCO_FailureLogsTerminalState(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	gw := &fakeGateway{constraints: testConstraints(), failAtCall: 2}
	engine := NewEngine(gw, &fakeGuard{}, Options{}, zap.New(core))

	if _, err := engine.PlaceOCO(context.Background(), ocoParams(t)); err == nil {
		t.Fatal("expected stop leg failure")
	}

	entries := observed.FilterMessage("OCO 执行失败").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["state"] != "FAILED" {
		t.Errorf("terminal state should be FAILED, got %v", fields["state"])
	}
	if fields["failed_at"] != "SUBMIT_SL" {
		t.Errorf("failure should be attributed to the stop leg, got %v", fields["failed_at"])
	}
}
