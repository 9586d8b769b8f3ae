package model

import "time"

// EventType 引擎对外发布的事件类型
type EventType string

const (
	EventStrategyAdded       EventType = "strategyAdded"
	EventStrategyRemoved     EventType = "strategyRemoved"
	EventSignalGenerated     EventType = "signalGenerated"
	EventSignalRejected      EventType = "signalRejected"
	EventTradeExecuted       EventType = "tradeExecuted"
	EventPaperTradeExecuted  EventType = "paperTradeExecuted"
	EventTradeRejected       EventType = "tradeRejected"
	EventTradeExecutionError EventType = "tradeExecutionError"
	EventOrderCompleted      EventType = "orderCompleted"
	EventOrderCancelError    EventType = "orderCancelError"
	EventOrderUpdateError    EventType = "orderUpdateError"
	EventStrategyError       EventType = "strategyError"
	EventPnLUpdated          EventType = "pnlUpdated"
	EventEngineStarted       EventType = "engineStarted"
	EventEngineStopped       EventType = "engineStopped"
)

// Event 引擎向外部发布通道写入的事件
// 引擎只负责发布，持久化和推送由外部协作方消费完成
type Event struct {
	Type       EventType
	StrategyID string // 相关策略 ID，可为空
	Payload    any    // 相关的信号/订单/错误内容
	Timestamp  time.Time
}
