// Package ta 提供基于有序 K 线序列的无状态技术指标计算
// 所有指标的结果都与输入窗口的尾部对齐:
// 第一个结果对应窗口中第一个拥有足够历史数据的位置
package ta

import (
	"errors"
	"fmt"
	"time"

	"crypto-trade-engine/internal/model"
)

// ErrInsufficientData 窗口长度不足以计算指标时返回
var ErrInsufficientData = errors.New("insufficient data")

// Result 单个指标计算结果
type Result struct {
	Timestamp time.Time
	Value     float64
	Meta      map[string]any // 结构化元数据，例如 MACD 的 line/signal/histogram
}

// Indicator 技术指标的统一接口
// 指标实例与单个交易对/周期绑定，Calculate 对完整窗口重新计算
type Indicator interface {
	Name() string
	// MinPeriods 返回计算出第一个结果所需的最小窗口长度
	MinPeriods() int
	Calculate(window []model.Candle) ([]Result, error)
}

// insufficient 构造统一的数据不足错误
func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: %w: need %d candles, got %d", name, ErrInsufficientData, need, got)
}

// closes 提取收盘价序列
func closes(window []model.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

// smaSeries 计算滚动均值序列，结果与输入尾部对齐
// 返回长度为 len(values)-period+1，result[0] 对应输入下标 period-1
func smaSeries(values []float64, period int) []float64 {
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// emaSeries 计算指数加权均值序列，首值取前 period 个点的 SMA 作为种子
// 乘数 = 2/(period+1)，结果与输入尾部对齐
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, 0, len(values)-period+1)
	k := 2.0 / (float64(period) + 1.0)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out = append(out, seed)

	prev := seed
	for i := period; i < len(values); i++ {
		ema := values[i]*k + prev*(1.0-k)
		out = append(out, ema)
		prev = ema
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
