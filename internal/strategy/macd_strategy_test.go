package strategy

import (
	"testing"

	"crypto-trade-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMACDStrategy(t *testing.T, params map[string]float64) Strategy {
	t.Helper()
	if params == nil {
		params = map[string]float64{}
	}
	// 置信度门槛压低，测试只关心交叉的触发语义
	if _, ok := params["minConfidence"]; !ok {
		params["minConfidence"] = 10
	}
	s, err := New(model.StrategyConfig{
		ID:        "macd-test",
		Name:      "MACD test",
		Type:      TypeMACDCrossover,
		Symbols:   []string{"BTC-USDT"},
		Timeframe: "1m",
		Params:    params,
		Active:    true,
	}, nopLogger())
	require.NoError(t, err)
	return s
}

// flatThenTrend 先横盘 flat 根，再按 step 逐根变动 trend 根
func flatThenTrend(flat, trend int, step float64) []float64 {
	out := make([]float64, 0, flat+trend)
	price := 100.0
	for i := 0; i < flat; i++ {
		out = append(out, price)
	}
	for i := 0; i < trend; i++ {
		price += step
		out = append(out, price)
	}
	return out
}

func TestMACDStrategySingleBuyOnBullishCrossover(t *testing.T) {
	s := newTestMACDStrategy(t, nil)
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	signals := feedAndCollect(t, s, candlesFromCloses("BTC-USDT", flatThenTrend(40, 25, 1)))
	require.Len(t, signals, 1, "a single trend change must produce exactly one signal")

	sig := signals[0]
	assert.Equal(t, model.SideBuy, sig.Side)
	assert.Contains(t, sig.Reason, "bullish")
	assert.Equal(t, "macd-test", sig.StrategyID)
	assert.Contains(t, sig.Indicators, "macd")
	assert.Contains(t, sig.Indicators, "signal")
	assert.Contains(t, sig.Indicators, "histogram")
	assert.Greater(t, sig.Indicators["histogram"], 0.0)
}

func TestMACDStrategySingleSellOnBearishCrossover(t *testing.T) {
	s := newTestMACDStrategy(t, nil)
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	signals := feedAndCollect(t, s, candlesFromCloses("BTC-USDT", flatThenTrend(40, 25, -1)))
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, model.SideSell, sig.Side)
	assert.Contains(t, sig.Reason, "bearish")
	assert.Less(t, sig.Indicators["histogram"], 0.0)
}

func TestMACDStrategyMinHistogramFiltersWeakCrossover(t *testing.T) {
	// 把噪声门槛拉得比任何可能的柱状图幅度都高，交叉被全部过滤
	s := newTestMACDStrategy(t, map[string]float64{"minHistogram": 1000})
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	signals := feedAndCollect(t, s, candlesFromCloses("BTC-USDT", flatThenTrend(40, 25, 1)))
	assert.Empty(t, signals)
}

func TestMACDStrategyFlatMarketIsSilent(t *testing.T) {
	s := newTestMACDStrategy(t, nil)
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	signals := feedAndCollect(t, s, candlesFromCloses("BTC-USDT", flatThenTrend(60, 0, 0)))
	assert.Empty(t, signals)
}

func TestMACDStrategyInvalidPeriods(t *testing.T) {
	_, err := New(model.StrategyConfig{
		Type:    TypeMACDCrossover,
		Symbols: []string{"BTC-USDT"},
		Params:  map[string]float64{"fastPeriod": 26, "slowPeriod": 12},
	}, nopLogger())
	assert.Error(t, err)

	_, err = New(model.StrategyConfig{
		Type:    TypeMACDCrossover,
		Symbols: []string{"BTC-USDT"},
		Params:  map[string]float64{"trendLookback": 1},
	}, nopLogger())
	assert.Error(t, err)
}
