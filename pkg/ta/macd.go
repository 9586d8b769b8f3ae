package ta

import (
	"fmt"

	"crypto-trade-engine/internal/model"
)

// MACD 交叉方向元数据取值
const (
	CrossoverBullish = "bullish"
	CrossoverBearish = "bearish"
	CrossoverNone    = "none"
)

// MACD 指数平滑异同移动平均
// MACD 线 = fastEMA - slowEMA (两条序列对齐到同一时间戳)
// 信号线 = EMA(MACD 线, signalPeriod)，柱状图 = MACD - 信号线
// 柱状图符号在相邻两个结果之间由 <=0 变为 >0 时记一次 bullish 交叉，
// 由 >=0 变为 <0 时记一次 bearish 交叉；第一个柱状图值没有前点，不记交叉
type MACD struct {
	symbol       string
	timeframe    string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD 构造 MACD 指标
// 所有周期必须为正，且 fastPeriod 必须小于 slowPeriod
func NewMACD(symbol, timeframe string, fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, fmt.Errorf("macd: all periods must be positive, got fast=%d slow=%d signal=%d",
			fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("macd: fast period (%d) must be less than slow period (%d)", fastPeriod, slowPeriod)
	}
	return &MACD{
		symbol:       symbol,
		timeframe:    timeframe,
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
	}, nil
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

// MinPeriods 第一个信号线值需要 slowPeriod+signalPeriod-1 根 K 线
func (m *MACD) MinPeriods() int { return m.slowPeriod + m.signalPeriod - 1 }

func (m *MACD) Calculate(window []model.Candle) ([]Result, error) {
	if len(window) < m.MinPeriods() {
		return nil, insufficient(m.Name(), m.MinPeriods(), len(window))
	}

	prices := closes(window)

	fastEMA := emaSeries(prices, m.fastPeriod) // 首值对应下标 fastPeriod-1
	slowEMA := emaSeries(prices, m.slowPeriod) // 首值对应下标 slowPeriod-1

	// 对齐: MACD 线从 slowPeriod-1 开始，fastEMA 需要偏移
	offset := m.slowPeriod - m.fastPeriod
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}

	// 信号线: 对 MACD 线再做 EMA，首值对应 MACD 下标 signalPeriod-1
	signalLine := emaSeries(macdLine, m.signalPeriod)

	results := make([]Result, len(signalLine))
	prevHist := 0.0
	for i, sig := range signalLine {
		macd := macdLine[i+m.signalPeriod-1]
		hist := macd - sig

		crossover := CrossoverNone
		if i > 0 {
			if prevHist <= 0 && hist > 0 {
				crossover = CrossoverBullish
			} else if prevHist >= 0 && hist < 0 {
				crossover = CrossoverBearish
			}
		}
		prevHist = hist

		// K 线下标: (signalPeriod-1+i) 是 MACD 下标，再加 slowPeriod-1
		candleIdx := i + m.MinPeriods() - 1
		results[i] = Result{
			Timestamp: window[candleIdx].Timestamp,
			Value:     macd,
			Meta: map[string]any{
				"macd":      macd,
				"signal":    sig,
				"histogram": hist,
				"crossover": crossover,
			},
		}
	}
	return results, nil
}
