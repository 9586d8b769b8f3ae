package ta

import (
	"fmt"
	"time"

	"crypto-trade-engine/internal/model"
)

// RSI 分区分类元数据取值
const (
	ZoneOverbought = "overbought"
	ZoneOversold   = "oversold"
	ZoneNeutral    = "neutral"
)

// RSI 相对强弱指数
// 平均涨跌幅使用 Wilder 平滑 (对每步价差做 alpha=1/period 的指数平滑)
// RSI = 100 - 100/(1+avgGain/avgLoss)，钳制在 [0,100]
// avgLoss 恰好为 0 时 RSI = 100
type RSI struct {
	symbol     string
	timeframe  string
	period     int
	overbought float64
	oversold   float64
}

// NewRSI 构造 RSI 指标
// period 必须为正，oversold 阈值必须低于 overbought 阈值
func NewRSI(symbol, timeframe string, period int, overbought, oversold float64) (*RSI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: period must be positive, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi: oversold threshold (%.1f) must be below overbought (%.1f)", oversold, overbought)
	}
	return &RSI{
		symbol:     symbol,
		timeframe:  timeframe,
		period:     period,
		overbought: overbought,
		oversold:   oversold,
	}, nil
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI_%d", r.period) }

// MinPeriods 需要 period 个价差，即 period+1 根 K 线
func (r *RSI) MinPeriods() int { return r.period + 1 }

func (r *RSI) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < r.MinPeriods() {
		return nil, insufficient(r.Name(), r.MinPeriods(), len(window))
	}

	prices := closes(window)
	n := len(prices)

	// 每步价差拆分为涨幅和跌幅 (跌幅取正值)
	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	// 种子: 前 period 个价差的简单均值
	var avgGain, avgLoss float64
	for i := 0; i < r.period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	results := make([]Result, 0, n-r.period)
	results = append(results, r.point(window[r.period].Timestamp, avgGain, avgLoss))

	for i := r.period; i < n-1; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		results = append(results, r.point(window[i+1].Timestamp, avgGain, avgLoss))
	}
	return results, nil
}

// point 根据平均涨跌幅构造单个 RSI 结果，附带分区分类
func (r *RSI) point(ts time.Time, avgGain, avgLoss float64) Result {
	var rsi float64
	if avgLoss == 0 {
		rsi = 100.0
	} else {
		rs := avgGain / avgLoss
		rsi = 100.0 - 100.0/(1.0+rs)
	}
	rsi = clamp(rsi, 0, 100)

	zone := ZoneNeutral
	if rsi >= r.overbought {
		zone = ZoneOverbought
	} else if rsi <= r.oversold {
		zone = ZoneOversold
	}

	return Result{
		Timestamp: ts,
		Value:     rsi,
		Meta: map[string]any{
			"zone":       zone,
			"overbought": r.overbought,
			"oversold":   r.oversold,
		},
	}
}
