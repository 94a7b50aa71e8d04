// Package journal 将执行事件追加写入 SQLite，作为人工核对的审计日志。
// 它只是外部落盘，不是可恢复的订单状态：进程重启后不据此续跑任何策略。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"futures-trader/internal/execution"
	"futures-trader/internal/store"
)

// Service 负责持久化执行事件。所有写入都是尽力而为：
// 日志失败绝不影响订单流程本身。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化执行日志服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS execution_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	command TEXT NOT NULL,
	symbol TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_log_command ON execution_log(command);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_log (event_type, command, symbol, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(event.Type), event.Command, event.Symbol, string(payload),
		event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordCommandStarted 记录命令开始。
func (s *Service) RecordCommandStarted(ctx context.Context, command, symbol string, args map[string]string) {
	s.record(ctx, Event{
		Type:    EventCommandStarted,
		Command: command,
		Symbol:  symbol,
		Payload: CommandPayload{Args: args},
	})
}

// RecordReport 记录命令的最终执行摘要及每笔已提交子单。
func (s *Service) RecordReport(ctx context.Context, report execution.Report) {
	for _, order := range report.Orders {
		s.record(ctx, Event{
			Type:    EventOrderPlaced,
			Command: report.Strategy,
			Symbol:  report.Symbol,
			Payload: OrderPayload{Order: order},
		})
	}
	s.record(ctx, Event{
		Type:    EventCommandCompleted,
		Command: report.Strategy,
		Symbol:  report.Symbol,
		Payload: ReportPayload{Planned: report.Planned, Completed: report.Completed()},
	})
}

// RecordFailure 记录命令失败。部分失败单独记一条，枚举在场子单供人工处理。
func (s *Service) RecordFailure(ctx context.Context, command, symbol string, report execution.Report, cause error) {
	for _, order := range report.Orders {
		s.record(ctx, Event{
			Type:    EventOrderPlaced,
			Command: command,
			Symbol:  symbol,
			Payload: OrderPayload{Order: order},
		})
	}

	var partial *execution.PartialFailureError
	if errors.As(cause, &partial) {
		s.record(ctx, Event{
			Type:    EventPartialFailure,
			Command: command,
			Symbol:  symbol,
			Payload: PartialFailurePayload{
				Planned:     partial.Planned,
				FailedIndex: partial.FailedIndex,
				Succeeded:   partial.Succeeded,
				Cause:       partial.Cause.Error(),
			},
		})
		return
	}

	s.record(ctx, Event{
		Type:    EventCommandFailed,
		Command: command,
		Symbol:  symbol,
		Payload: FailurePayload{Cause: cause.Error()},
	})
}

func (s *Service) record(ctx context.Context, event Event) {
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("执行日志写入失败",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}
