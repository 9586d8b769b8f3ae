package ta

import (
	"fmt"

	"crypto-trade-engine/internal/model"
)

// SMA 简单移动平均
type SMA struct {
	symbol    string
	timeframe string
	period    int
}

// NewSMA 构造 SMA 指标，period 必须为正
func NewSMA(symbol, timeframe string, period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: period must be positive, got %d", period)
	}
	return &SMA{symbol: symbol, timeframe: timeframe, period: period}, nil
}

func (s *SMA) Name() string    { return fmt.Sprintf("SMA_%d", s.period) }
func (s *SMA) MinPeriods() int { return s.period }

func (s *SMA) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < s.period {
		return nil, insufficient(s.Name(), s.period, len(window))
	}

	values := smaSeries(closes(window), s.period)
	results := make([]Result, len(values))
	for i, v := range values {
		results[i] = Result{
			Timestamp: window[i+s.period-1].Timestamp,
			Value:     v,
		}
	}
	return results, nil
}
