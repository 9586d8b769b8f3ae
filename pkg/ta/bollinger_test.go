package ta

import (
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBollingerConstructorValidation(t *testing.T) {
	_, err := NewBollinger("BTC-USDT", "1m", 0, 2)
	assert.Error(t, err)

	_, err = NewBollinger("BTC-USDT", "1m", 20, 0)
	assert.Error(t, err)
}

func TestBollingerFlatSeriesCollapses(t *testing.T) {
	bb, err := NewBollinger("BTC-USDT", "1m", 5, 2)
	require.NoError(t, err)

	results, err := bb.Calculate(candlesFromCloses([]float64{100, 100, 100, 100, 100, 100, 100}))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.Equal(t, 100.0, r.Meta["middle"])
		assert.Equal(t, 100.0, r.Meta["upper"])
		assert.Equal(t, 100.0, r.Meta["lower"])
		assert.Equal(t, 0.0, r.Meta["stddev"])
	}
}

func TestBollingerMatchesTalib(t *testing.T) {
	closes := []float64{
		100, 102, 101, 103, 105, 104, 106, 108, 107, 109,
		108, 106, 107, 105, 103, 104, 102, 100, 101, 99,
		98, 100, 102, 104, 103, 105, 107, 106, 108, 110,
	}
	period, k := 20, 2.0

	bb, err := NewBollinger("BTC-USDT", "1m", period, k)
	require.NoError(t, err)
	results, err := bb.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	upper, middle, lower := talib.BBands(closes, period, k, k, talib.SMA)
	require.Len(t, results, len(closes)-period+1)
	for j, r := range results {
		idx := j + period - 1
		assert.InDelta(t, middle[idx], r.Meta["middle"].(float64), 1e-9)
		assert.InDelta(t, upper[idx], r.Meta["upper"].(float64), 1e-9)
		assert.InDelta(t, lower[idx], r.Meta["lower"].(float64), 1e-9)
	}
}

func TestBollingerBandsAreSymmetric(t *testing.T) {
	bb, err := NewBollinger("BTC-USDT", "1m", 4, 2)
	require.NoError(t, err)

	results, err := bb.Calculate(candlesFromCloses([]float64{100, 104, 98, 102, 106, 96, 100}))
	require.NoError(t, err)

	for _, r := range results {
		mid := r.Meta["middle"].(float64)
		upper := r.Meta["upper"].(float64)
		lower := r.Meta["lower"].(float64)
		assert.InDelta(t, upper-mid, mid-lower, 1e-12)
		assert.GreaterOrEqual(t, upper, mid)
	}
}
