package model

import (
	"fmt"
	"time"
)

// Side 交易方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回相反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Signal 是策略层向引擎发出的方向性交易建议，创建后不可变
// 每个策略同一时刻最多保留一个 lastSignal，用于冷却期判断
type Signal struct {
	Symbol          string
	Side            Side
	Strength        float64 // 信号强度 [0,1]
	Confidence      float64 // 置信度 [0,100]
	Reason          string  // 信号生成的文字描述
	StrategyID      string  // 来源策略 ID
	Indicators      map[string]float64 // 生成时使用的指标值快照
	Price           float64 // 期望的入场价格
	StopLossPrice   float64 // 止损价格 (0 表示未设置)
	TakeProfitPrice float64 // 止盈价格 (0 表示未设置)
	Timestamp       time.Time
}

func (s *Signal) String() string {
	return fmt.Sprintf("SIGNAL [%s %s] @ %.4f | Strength: %.2f | Confidence: %.1f | SL: %.4f | TP: %.4f | %s",
		s.Side, s.Symbol, s.Price, s.Strength, s.Confidence, s.StopLossPrice, s.TakeProfitPrice, s.Reason)
}
