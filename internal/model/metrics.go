package model

// EngineMetrics 引擎运行计数器，只由引擎写入，外部只读
type EngineMetrics struct {
	TotalSignals     int
	ExecutedTrades   int
	RejectedSignals  int
	ActiveStrategies int
	TotalPnL         float64
	SuccessRate      float64 // ExecutedTrades / TotalSignals，TotalSignals 为 0 时恒为 0
}
