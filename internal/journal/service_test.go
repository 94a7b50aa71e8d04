package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"futures-trader/internal/config"
	"futures-trader/internal/execution"
	"futures-trader/internal/exchange"
	"futures-trader/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, st
}

func countEvents(t *testing.T, st *store.Store, eventType EventType) int {
	t.Helper()
	var count int
	err := st.DB().QueryRow(
		`SELECT COUNT(*) FROM execution_log WHERE event_type = ?`, string(eventType),
	).Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return count
}

func TestRecordReportWritesChildOrdersAndCompletion(t *testing.T) {
	svc, st := newTestService(t)

	report := execution.Report{
		Strategy: "grid",
		Symbol:   "BTCUSDT",
		Planned:  2,
		Orders: []execution.ChildOrder{
			{Index: 0, OrderID: "ORD-1", Kind: exchange.KindLimit, Quantity: decimal.RequireFromString("0.5")},
			{Index: 1, OrderID: "ORD-2", Kind: exchange.KindLimit, Quantity: decimal.RequireFromString("0.5")},
		},
	}

	svc.RecordReport(context.Background(), report)

	if got := countEvents(t, st, EventOrderPlaced); got != 2 {
		t.Errorf("expected 2 order_placed events, got %d", got)
	}
	if got := countEvents(t, st, EventCommandCompleted); got != 1 {
		t.Errorf("expected 1 command_completed event, got %d", got)
	}
}

func TestRecordFailureDistinguishesPartialFromTotal(t *testing.T) {
	svc, st := newTestService(t)

	cause := errors.New("submit rejected")
	partial := &execution.PartialFailureError{
		Strategy:    "twap",
		Planned:     3,
		Succeeded:   []execution.ChildOrder{{Index: 0, OrderID: "ORD-1"}},
		FailedIndex: 1,
		Cause:       cause,
	}
	report := execution.Report{Strategy: "twap", Symbol: "BTCUSDT", Planned: 3, Orders: partial.Succeeded}

	svc.RecordFailure(context.Background(), "twap", "BTCUSDT", report, partial)
	if got := countEvents(t, st, EventPartialFailure); got != 1 {
		t.Errorf("expected 1 partial_failure event, got %d", got)
	}
	if got := countEvents(t, st, EventCommandFailed); got != 0 {
		t.Errorf("partial failure must not also record command_failed, got %d", got)
	}
	if got := countEvents(t, st, EventOrderPlaced); got != 1 {
		t.Errorf("expected 1 order_placed event for the live child, got %d", got)
	}

	svc.RecordFailure(context.Background(), "market", "BTCUSDT", execution.Report{}, cause)
	if got := countEvents(t, st, EventCommandFailed); got != 1 {
		t.Errorf("expected 1 command_failed event, got %d", got)
	}
}

func TestRecordCommandStarted(t *testing.T) {
	svc, st := newTestService(t)

	svc.RecordCommandStarted(context.Background(), "limit", "ETHUSDT",
		map[string]string{"side": "BUY", "quantity": "1.5", "price": "2000"})

	if got := countEvents(t, st, EventCommandStarted); got != 1 {
		t.Errorf("expected 1 command_started event, got %d", got)
	}
}
