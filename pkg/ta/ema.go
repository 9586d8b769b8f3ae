package ta

import (
	"fmt"

	"crypto-trade-engine/internal/model"
)

// EMA 指数移动平均
// 首值用前 period 个收盘价的 SMA 作为种子，乘数 = 2/(period+1)
type EMA struct {
	symbol    string
	timeframe string
	period    int
}

// NewEMA 构造 EMA 指标，period 必须为正
func NewEMA(symbol, timeframe string, period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema: period must be positive, got %d", period)
	}
	return &EMA{symbol: symbol, timeframe: timeframe, period: period}, nil
}

func (e *EMA) Name() string    { return fmt.Sprintf("EMA_%d", e.period) }
func (e *EMA) MinPeriods() int { return e.period }

func (e *EMA) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < e.period {
		return nil, insufficient(e.Name(), e.period, len(window))
	}

	values := emaSeries(closes(window), e.period)
	results := make([]Result, len(values))
	for i, v := range values {
		results[i] = Result{
			Timestamp: window[i+e.period-1].Timestamp,
			Value:     v,
		}
	}
	return results, nil
}
