package strategy

import (
	"testing"
	"time"

	"crypto-trade-engine/internal/model"
	"crypto-trade-engine/pkg/ta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// candlesFromCloses 按收盘价序列合成 K 线，时间戳逐分钟递增
func candlesFromCloses(symbol string, closes []float64) []model.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Symbol:    symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

// feedAndCollect 逐根喂入 K 线并收集产生的全部信号
// 窗口不足导致的指标错误是预期的暖机现象，原样跳过
func feedAndCollect(t *testing.T, s Strategy, candles []model.Candle) []*model.Signal {
	t.Helper()
	var signals []*model.Signal
	for _, c := range candles {
		if err := s.AddMarketData(c); err != nil {
			require.ErrorIs(t, err, ta.ErrInsufficientData)
			continue
		}
		sig, err := s.Run()
		require.NoError(t, err)
		if sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

func fallingThenRising(falling, rising int) []float64 {
	out := make([]float64, 0, falling+rising)
	price := 120.0
	for i := 0; i < falling; i++ {
		out = append(out, price)
		price--
	}
	for i := 0; i < rising; i++ {
		price++
		out = append(out, price)
	}
	return out
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := New(model.StrategyConfig{
		Type:    "martingale",
		Symbols: []string{"BTC-USDT"},
	}, nopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "martingale")
}

func TestFactoryRequiresSymbols(t *testing.T) {
	_, err := New(model.StrategyConfig{Type: TypeRSIThreshold}, nopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")
}

func TestFactoryAssignsDefaultID(t *testing.T) {
	s, err := New(model.StrategyConfig{
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
	}, nopLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
}

func TestRegisteredTypes(t *testing.T) {
	types := RegisteredTypes()
	assert.Contains(t, types, TypeRSIThreshold)
	assert.Contains(t, types, TypeMACDCrossover)
}

func TestInactiveStrategyProducesNoSignal(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-inactive",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
		Active:  true,
	}, nopLogger())
	require.NoError(t, err)

	// 单边下跌的历史本应触发 BUY
	history := candlesFromCloses("BTC-USDT", fallingThenRising(20, 0))
	require.NoError(t, s.Initialize("BTC-USDT", history))

	s.SetActive(false)
	sig, err := s.Run()
	require.NoError(t, err)
	assert.Nil(t, sig)

	s.SetActive(true)
	sig, err = s.Run()
	require.NoError(t, err)
	assert.NotNil(t, sig)
}

func TestMismatchedSymbolCandleIsIgnored(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-sym",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
		Active:  true,
	}, nopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	// 非绑定交易对的 K 线不进入窗口，也不触发指标计算
	other := candlesFromCloses("ETH-USDT", []float64{100})[0]
	require.NoError(t, s.AddMarketData(other))

	sig, err := s.Run()
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestCreateOrderRequestSizing(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-size",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
		RiskParams: map[string]float64{
			"portfolioValue":     10000,
			"maxPositionPercent": 0.1,
			"riskPerTrade":       100,
		},
	}, nopLogger())
	require.NoError(t, err)

	sig := &model.Signal{
		Symbol:        "BTC-USDT",
		Side:          model.SideBuy,
		Price:         100,
		StopLossPrice: 95,
		StrategyID:    "rsi-size",
	}
	req, err := s.CreateOrderRequest(sig)
	require.NoError(t, err)

	// min(0.1×10000/100, 100/|100-95|) = min(10, 20) = 10
	assert.InDelta(t, 10.0, req.Size, 1e-12)
	assert.Equal(t, model.OrderTypeMarket, req.Type)
	assert.Equal(t, model.TIFGoodTillCancel, req.TimeInForce)
	assert.Equal(t, model.SideBuy, req.Side)
	assert.NotEmpty(t, req.ClientOrderID)
}

func TestCreateOrderRequestRiskBudgetDominates(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-risk",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
		RiskParams: map[string]float64{
			"portfolioValue":     10000,
			"maxPositionPercent": 0.1,
			"riskPerTrade":       1,
		},
	}, nopLogger())
	require.NoError(t, err)

	sig := &model.Signal{Symbol: "BTC-USDT", Side: model.SideSell, Price: 100, StopLossPrice: 105}
	req, err := s.CreateOrderRequest(sig)
	require.NoError(t, err)

	// 风险预算 1 / 止损距离 5 = 0.2，小于百分比上限的 10
	assert.InDelta(t, 0.2, req.Size, 1e-12)
}

func TestCreateOrderRequestNilSignal(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-nil",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
	}, nopLogger())
	require.NoError(t, err)

	_, err = s.CreateOrderRequest(nil)
	assert.Error(t, err)
}

func TestCreateOrderRequestNoPrice(t *testing.T) {
	s, err := New(model.StrategyConfig{
		ID:      "rsi-np",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
	}, nopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Initialize("BTC-USDT", nil))

	// 信号无价格且窗口为空，无法定仓
	_, err = s.CreateOrderRequest(&model.Signal{Symbol: "BTC-USDT", Side: model.SideBuy})
	assert.Error(t, err)
}

func TestReversalCooldownSuppressesOppositeSignal(t *testing.T) {
	// 同一份行情跑两遍: 冷却期拉满时反向信号被完全抑制，
	// 冷却期为 0 时正常发出
	series := fallingThenRising(20, 45)

	run := func(cooldownMinutes float64) []*model.Signal {
		s, err := New(model.StrategyConfig{
			ID:        "rsi-cd",
			Type:      TypeRSIThreshold,
			Symbols:   []string{"BTC-USDT"},
			Timeframe: "1m",
			Active:    true,
			Params:    map[string]float64{"cooldownMinutes": cooldownMinutes},
		}, nopLogger())
		require.NoError(t, err)
		require.NoError(t, s.Initialize("BTC-USDT", nil))
		return feedAndCollect(t, s, candlesFromCloses("BTC-USDT", series))
	}

	countSides := func(signals []*model.Signal) (buys, sells int) {
		for _, sig := range signals {
			if sig.Side == model.SideBuy {
				buys++
			} else {
				sells++
			}
		}
		return
	}

	noCooldown := run(0)
	buys, sells := countSides(noCooldown)
	assert.Greater(t, buys, 0)
	assert.Greater(t, sells, 0, "rising leg should reach overbought and emit SELL")

	// 行情总跨度约 65 分钟，120 分钟冷却覆盖全程
	withCooldown := run(120)
	buys, sells = countSides(withCooldown)
	assert.Greater(t, buys, 0)
	assert.Zero(t, sells, "opposite-side signal must be suppressed inside the cooldown window")
}

func TestStopLossBeyondRiskLimitRejected(t *testing.T) {
	// stopLossPercent 0.08 超出默认 maxStopLossPercent 0.05，信号在策略层被拦下
	s, err := New(model.StrategyConfig{
		ID:      "rsi-sl",
		Type:    TypeRSIThreshold,
		Symbols: []string{"BTC-USDT"},
		Active:  true,
		Params:  map[string]float64{"stopLossPercent": 0.08},
	}, nopLogger())
	require.NoError(t, err)

	history := candlesFromCloses("BTC-USDT", fallingThenRising(20, 0))
	require.NoError(t, s.Initialize("BTC-USDT", history))

	sig, err := s.Run()
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Nil(t, s.LastSignal())
}
