package journal

import (
	"time"

	"futures-trader/internal/execution"
)

// EventType 标识执行日志事件类别。
type EventType string

const (
	EventCommandStarted   EventType = "command_started"
	EventOrderPlaced      EventType = "order_placed"
	EventPartialFailure   EventType = "partial_failure"
	EventCommandCompleted EventType = "command_completed"
	EventCommandFailed    EventType = "command_failed"
)

// Event 为写入执行日志的单条记录。
type Event struct {
	Type      EventType
	Command   string
	Symbol    string
	Timestamp time.Time
	Payload   interface{}
}

// CommandPayload 记录一次命令的入参摘要。
type CommandPayload struct {
	Args map[string]string `json:"args"`
}

// OrderPayload 记录一笔已提交子单。
type OrderPayload struct {
	Order execution.ChildOrder `json:"order"`
}

// PartialFailurePayload 记录部分失败时的在场子单与失败原因。
type PartialFailurePayload struct {
	Planned     int                    `json:"planned"`
	FailedIndex int                    `json:"failed_index"`
	Succeeded   []execution.ChildOrder `json:"succeeded"`
	Cause       string                 `json:"cause"`
}

// ReportPayload 记录命令完成时的执行摘要。
type ReportPayload struct {
	Planned   int `json:"planned"`
	Completed int `json:"completed"`
}

// FailurePayload 记录命令整体失败的原因。
type FailurePayload struct {
	Cause string `json:"cause"`
}
