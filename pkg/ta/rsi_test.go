package ta

import (
	"errors"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSIConstructorValidation(t *testing.T) {
	_, err := NewRSI("BTC-USDT", "1m", 0, 70, 30)
	assert.Error(t, err)

	// oversold 阈值必须低于 overbought
	_, err = NewRSI("BTC-USDT", "1m", 14, 30, 70)
	assert.Error(t, err)
}

func TestRSIInsufficientData(t *testing.T) {
	rsi, err := NewRSI("BTC-USDT", "1m", 14, 70, 30)
	require.NoError(t, err)
	assert.Equal(t, 15, rsi.MinPeriods())

	// 恰好少一根
	_, err = rsi.Calculate(candlesFromCloses(make([]float64, 14)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	rsi, err := NewRSI("BTC-USDT", "1m", 5, 70, 30)
	require.NoError(t, err)

	results, err := rsi.Calculate(candlesFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, err)
	require.Len(t, results, 3) // len - (period+1) + 1

	for _, r := range results {
		assert.Equal(t, 100.0, r.Value)
		assert.Equal(t, ZoneOverbought, r.Meta["zone"])
	}
}

func TestRSIAllLossesIsZero(t *testing.T) {
	rsi, err := NewRSI("BTC-USDT", "1m", 5, 70, 30)
	require.NoError(t, err)

	results, err := rsi.Calculate(candlesFromCloses([]float64{8, 7, 6, 5, 4, 3, 2, 1}))
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, 0.0, r.Value)
		assert.Equal(t, ZoneOversold, r.Meta["zone"])
	}
}

func TestRSINeutralZone(t *testing.T) {
	rsi, err := NewRSI("BTC-USDT", "1m", 4, 70, 30)
	require.NoError(t, err)

	// 交替涨跌，RSI 停留在中间区域
	results, err := rsi.Calculate(candlesFromCloses([]float64{100, 101, 100, 101, 100, 101, 100, 101}))
	require.NoError(t, err)

	last := results[len(results)-1]
	assert.Greater(t, last.Value, 30.0)
	assert.Less(t, last.Value, 70.0)
	assert.Equal(t, ZoneNeutral, last.Meta["zone"])
	assert.Equal(t, 70.0, last.Meta["overbought"])
	assert.Equal(t, 30.0, last.Meta["oversold"])
}

func TestRSIMatchesTalib(t *testing.T) {
	closes := []float64{
		100, 102, 101, 103, 105, 104, 106, 108, 107, 109,
		108, 106, 107, 105, 103, 104, 102, 100, 101, 99,
		98, 100, 102, 104, 103, 105, 107, 106, 108, 110,
	}
	period := 14

	rsi, err := NewRSI("BTC-USDT", "1m", period, 70, 30)
	require.NoError(t, err)
	results, err := rsi.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	reference := talib.Rsi(closes, period)
	require.Len(t, results, len(closes)-period)
	for j, r := range results {
		assert.InDelta(t, reference[j+period], r.Value, 1e-9, "result %d", j)
	}
}

func TestRSITailAlignment(t *testing.T) {
	rsi, err := NewRSI("BTC-USDT", "1m", 3, 70, 30)
	require.NoError(t, err)

	window := candlesFromCloses([]float64{1, 2, 3, 4, 5, 6})
	results, err := rsi.Calculate(window)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, window[3].Timestamp, results[0].Timestamp)
	assert.Equal(t, window[5].Timestamp, results[2].Timestamp)
}
