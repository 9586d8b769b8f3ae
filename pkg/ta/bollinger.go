package ta

import (
	"fmt"
	"math"

	"crypto-trade-engine/internal/model"
)

// Bollinger 布林带
// 中轨 = SMA，上下轨 = 中轨 ± k 倍同窗口标准差
type Bollinger struct {
	symbol    string
	timeframe string
	period    int
	k         float64
}

// NewBollinger 构造布林带指标，period 和 k 必须为正
func NewBollinger(symbol, timeframe string, period int, k float64) (*Bollinger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("bollinger: period must be positive, got %d", period)
	}
	if k <= 0 {
		return nil, fmt.Errorf("bollinger: band width multiplier must be positive, got %.2f", k)
	}
	return &Bollinger{symbol: symbol, timeframe: timeframe, period: period, k: k}, nil
}

func (b *Bollinger) Name() string    { return fmt.Sprintf("BBANDS_%d", b.period) }
func (b *Bollinger) MinPeriods() int { return b.period }

func (b *Bollinger) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < b.period {
		return nil, insufficient(b.Name(), b.period, len(window))
	}

	prices := closes(window)
	middles := smaSeries(prices, b.period)
	results := make([]Result, len(middles))

	for i, mid := range middles {
		// 与中轨同窗口的总体标准差
		var variance float64
		for j := i; j < i+b.period; j++ {
			d := prices[j] - mid
			variance += d * d
		}
		std := math.Sqrt(variance / float64(b.period))

		results[i] = Result{
			Timestamp: window[i+b.period-1].Timestamp,
			Value:     mid,
			Meta: map[string]any{
				"middle": mid,
				"upper":  mid + b.k*std,
				"lower":  mid - b.k*std,
				"stddev": std,
			},
		}
	}
	return results, nil
}
