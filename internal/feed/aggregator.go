package feed

import (
	"math"
	"time"

	"crypto-trade-engine/internal/model"

	"go.uber.org/zap"
)

// candleAggregator 按 Tick 时间戳把逐笔数据聚合成固定周期的 K 线
// Tick 驱动模式: 当新 Tick 落入下一个周期时，上一根 K 线视为完成并发出
type candleAggregator struct {
	symbol   string
	interval time.Duration
	current  model.Candle
	started  bool
	outCh    chan model.Candle
	logger   *zap.SugaredLogger
}

func newCandleAggregator(symbol string, interval time.Duration, outCh chan model.Candle, logger *zap.SugaredLogger) *candleAggregator {
	return &candleAggregator{
		symbol:   symbol,
		interval: interval,
		outCh:    outCh,
		logger:   logger,
	}
}

// process 把单个 Tick 聚合进当前 K 线，必要时先发出已完成的那根
func (a *candleAggregator) process(t Tick) {
	tickTime := time.UnixMilli(t.Timestamp)
	bucketStart := tickTime.Truncate(a.interval)

	if a.started && bucketStart.After(a.current.Timestamp) {
		completed := a.current
		select {
		case a.outCh <- completed:
		default:
			a.logger.Warnw("Candle output channel full! Dropping completed candle",
				"symbol", a.symbol, "ts", completed.Timestamp)
		}

		// 新 K 线开盘价取上一根的收盘价
		a.current = model.Candle{
			Symbol:    a.symbol,
			Timestamp: bucketStart,
			Open:      completed.Close,
			High:      t.Price,
			Low:       t.Price,
		}
	}

	if !a.started {
		a.current = model.Candle{
			Symbol:    a.symbol,
			Timestamp: bucketStart,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
		}
		a.started = true
	}

	a.current.Close = t.Price
	a.current.High = math.Max(a.current.High, t.Price)
	a.current.Low = math.Min(a.current.Low, t.Price)
	a.current.Volume += t.Volume
}
