package ta

import (
	"errors"
	"testing"
	"time"

	"crypto-trade-engine/internal/model"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestATRInsufficientData(t *testing.T) {
	atr, err := NewATR("BTC-USDT", "1m", 14)
	require.NoError(t, err)
	assert.Equal(t, 15, atr.MinPeriods())

	_, err = atr.Calculate(candlesFromCloses(make([]float64, 14)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestATRConstantRangeSeries(t *testing.T) {
	// 每根 K 线 high-low 恒为 2 且无跳空，ATR 恒等于 2
	atr, err := NewATR("BTC-USDT", "1m", 5)
	require.NoError(t, err)

	results, err := atr.Calculate(candlesFromCloses([]float64{100, 100, 100, 100, 100, 100, 100, 100}))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.InDelta(t, 2.0, r.Value, 1e-12)
	}
}

func TestATRMatchesTalib(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	highs := []float64{102, 105, 104, 107, 110, 108, 111, 114, 112, 115, 118, 116, 119, 122, 120, 123, 126, 124, 127, 130}
	lows := []float64{98, 101, 100, 102, 105, 104, 106, 109, 108, 110, 113, 112, 114, 117, 116, 118, 121, 120, 122, 125}
	closes := []float64{100, 103, 102, 105, 108, 106, 109, 112, 110, 113, 116, 114, 117, 120, 118, 121, 124, 122, 125, 128}

	window := make([]model.Candle, len(closes))
	for i := range closes {
		window[i] = model.Candle{
			Symbol:    "BTC-USDT",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      closes[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
		}
	}

	period := 14
	atr, err := NewATR("BTC-USDT", "1m", period)
	require.NoError(t, err)
	results, err := atr.Calculate(window)
	require.NoError(t, err)

	reference := talib.Atr(highs, lows, closes, period)
	require.Len(t, results, len(closes)-period)
	for j, r := range results {
		assert.InDelta(t, reference[j+period], r.Value, 1e-9, "result %d", j)
	}
}
