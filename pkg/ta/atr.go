package ta

import (
	"fmt"
	"math"

	"crypto-trade-engine/internal/model"
)

// ATR 平均真实波动范围
// TR = max(high-low, |high-prevClose|, |low-prevClose|)
// ATR 为 TR 的 Wilder 指数平滑，种子取前 period 个 TR 的简单均值
type ATR struct {
	symbol    string
	timeframe string
	period    int
}

// NewATR 构造 ATR 指标，period 必须为正
func NewATR(symbol, timeframe string, period int) (*ATR, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr: period must be positive, got %d", period)
	}
	return &ATR{symbol: symbol, timeframe: timeframe, period: period}, nil
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR_%d", a.period) }

// MinPeriods TR 需要前收盘价，所以需要 period+1 根 K 线
func (a *ATR) MinPeriods() int { return a.period + 1 }

func (a *ATR) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < a.MinPeriods() {
		return nil, insufficient(a.Name(), a.MinPeriods(), len(window))
	}

	n := len(window)
	trs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		hl := window[i].High - window[i].Low
		hc := math.Abs(window[i].High - window[i-1].Close)
		lc := math.Abs(window[i].Low - window[i-1].Close)
		trs[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	var atr float64
	for i := 0; i < a.period; i++ {
		atr += trs[i]
	}
	atr /= float64(a.period)

	results := make([]Result, 0, n-a.period)
	results = append(results, Result{Timestamp: window[a.period].Timestamp, Value: atr})

	for i := a.period; i < len(trs); i++ {
		atr = (atr*float64(a.period-1) + trs[i]) / float64(a.period)
		results = append(results, Result{Timestamp: window[i+1].Timestamp, Value: atr})
	}
	return results, nil
}
