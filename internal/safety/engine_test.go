package safety

import (
	"testing"

	"crypto-trade-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEngine() *Engine {
	return NewEngine(Config{
		MaxPositionSize: 0.25,
		MaxDailyTrades:  50,
		MaxDrawdown:     0.2,
		MinConfidence:   50,
	}, zap.NewNop().Sugar())
}

func testSignal() *model.Signal {
	return &model.Signal{
		Symbol:     "BTC-USDT",
		Side:       model.SideBuy,
		Confidence: 80,
		StrategyID: "s1",
	}
}

func okContext() Context {
	return Context{
		TradesToday:     3,
		PortfolioValue:  10000,
		CurrentDrawdown: 0.05,
		EstimatedValue:  1000,
	}
}

func findCheck(t *testing.T, checks []model.SafetyCheck, typ string) model.SafetyCheck {
	t.Helper()
	for _, c := range checks {
		if c.Type == typ {
			return c
		}
	}
	t.Fatalf("check %s not found", typ)
	return model.SafetyCheck{}
}

func TestValidateSignalAllPass(t *testing.T) {
	checks, valid := testEngine().ValidateSignal(testSignal(), okContext())
	assert.True(t, valid)
	require.Len(t, checks, 5)
	for _, c := range checks {
		assert.True(t, c.Passed, "check %s: %s", c.Type, c.Message)
		assert.NotEmpty(t, c.Message)
	}
}

func TestPositionSizeFailureIsHighAndVetoes(t *testing.T) {
	ctx := okContext()
	ctx.EstimatedValue = 5000 // 50% of portfolio, limit 25%

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.False(t, valid)

	c := findCheck(t, checks, model.CheckPositionSize)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityHigh, c.Severity)
}

func TestNonPositivePortfolioFailsPositionCheck(t *testing.T) {
	ctx := okContext()
	ctx.PortfolioValue = 0

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.False(t, valid)
	assert.False(t, findCheck(t, checks, model.CheckPositionSize).Passed)
}

func TestDailyLimitFailureIsMediumAndDoesNotVeto(t *testing.T) {
	ctx := okContext()
	ctx.TradesToday = 50

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.True(t, valid)

	c := findCheck(t, checks, model.CheckDailyTradeLimit)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityMedium, c.Severity)
}

func TestDrawdownFailureAloneVetoes(t *testing.T) {
	ctx := okContext()
	ctx.CurrentDrawdown = 0.3

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.False(t, valid)

	c := findCheck(t, checks, model.CheckDrawdown)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityCritical, c.Severity)

	// 其余检查仍然全部执行并上报
	require.Len(t, checks, 5)
	for _, other := range checks {
		if other.Type != model.CheckDrawdown {
			assert.True(t, other.Passed)
		}
	}
}

func TestConfidenceFloorFailureDoesNotVeto(t *testing.T) {
	sig := testSignal()
	sig.Confidence = 40

	checks, valid := testEngine().ValidateSignal(sig, okContext())
	assert.True(t, valid)

	c := findCheck(t, checks, model.CheckConfidenceFloor)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityMedium, c.Severity)
}

func TestConflictingOrderVetoes(t *testing.T) {
	ctx := okContext()
	ctx.ActiveOrders = []*model.Order{
		{
			OrderRequest: model.OrderRequest{Symbol: "BTC-USDT", Side: model.SideSell},
			OrderID:      "o1",
			Status:       model.OrderStatusOpen,
		},
	}

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.False(t, valid)

	c := findCheck(t, checks, model.CheckConflictingOrder)
	assert.False(t, c.Passed)
	assert.Equal(t, model.SeverityHigh, c.Severity)
}

func TestTerminalAndSameSideOrdersDoNotConflict(t *testing.T) {
	ctx := okContext()
	ctx.ActiveOrders = []*model.Order{
		// 终态的反向订单不算冲突
		{
			OrderRequest: model.OrderRequest{Symbol: "BTC-USDT", Side: model.SideSell},
			Status:       model.OrderStatusFilled,
		},
		// 同方向的挂单不算冲突
		{
			OrderRequest: model.OrderRequest{Symbol: "BTC-USDT", Side: model.SideBuy},
			Status:       model.OrderStatusOpen,
		},
		// 其他交易对的反向挂单不算冲突
		{
			OrderRequest: model.OrderRequest{Symbol: "ETH-USDT", Side: model.SideSell},
			Status:       model.OrderStatusOpen,
		},
	}

	checks, valid := testEngine().ValidateSignal(testSignal(), ctx)
	assert.True(t, valid)
	assert.True(t, findCheck(t, checks, model.CheckConflictingOrder).Passed)
}

func TestFailureReasons(t *testing.T) {
	checks := []model.SafetyCheck{
		{Type: model.CheckPositionSize, Passed: true, Severity: model.SeverityHigh, Message: "fine"},
		{Type: model.CheckDrawdown, Passed: false, Severity: model.SeverityCritical, Message: "too deep"},
	}
	reasons := FailureReasons(checks)
	require.Len(t, reasons, 1)
	assert.Equal(t, "[DRAWDOWN/CRITICAL] too deep", reasons[0])

	assert.Empty(t, FailureReasons(nil))
}
