package strategy

import (
	"fmt"
	"math"

	"crypto-trade-engine/internal/model"
	"crypto-trade-engine/pkg/ta"

	"go.uber.org/zap"
)

// TypeRSIThreshold RSI 阈值策略的类型标签
const TypeRSIThreshold = "rsi_threshold"

// RSIStrategy 阈值策略:
// 最新 RSI 进入 oversold 区且 <= 下限阈值时发 BUY，
// 进入 overbought 区且 >= 上限阈值时发 SELL
// 强度随突破阈值的距离线性增长，置信度 = 60 + 2×距离 (封顶 95)
type RSIStrategy struct {
	BaseStrategy

	period        int
	overbought    float64
	oversold      float64
	minConfidence float64
}

func newRSIStrategy(cfg model.StrategyConfig, logger *zap.SugaredLogger) (Strategy, error) {
	s := &RSIStrategy{
		BaseStrategy:  newBase(cfg, logger),
		period:        int(cfg.Param("period", 14)),
		overbought:    cfg.Param("overbought", 70),
		oversold:      cfg.Param("oversold", 30),
		minConfidence: cfg.Param("minConfidence", 60),
	}
	// 构造期校验: 指标构造失败直接失败，不做静默兜底
	if _, err := ta.NewRSI("", cfg.Timeframe, s.period, s.overbought, s.oversold); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RSIStrategy) Initialize(symbol string, history []model.Candle) error {
	rsi, err := ta.NewRSI(symbol, s.timeframe, s.period, s.overbought, s.oversold)
	if err != nil {
		return err
	}
	s.indicators["rsi"] = rsi
	return s.initBase(symbol, history)
}

func (s *RSIStrategy) Run() (*model.Signal, error) {
	return s.runWith(s.generateSignal)
}

func (s *RSIStrategy) generateSignal() (*model.Signal, error) {
	res, ok := s.latest("rsi")
	if !ok {
		return nil, nil
	}
	rsi := res.Value
	zone, _ := res.Meta["zone"].(string)
	price := s.lastClose()

	var side model.Side
	var distance float64
	var reason string

	switch {
	case zone == ta.ZoneOversold && rsi <= s.oversold:
		side = model.SideBuy
		distance = s.oversold - rsi
		reason = fmt.Sprintf("RSI %.2f at or below oversold threshold %.2f", rsi, s.oversold)
	case zone == ta.ZoneOverbought && rsi >= s.overbought:
		side = model.SideSell
		distance = rsi - s.overbought
		reason = fmt.Sprintf("RSI %.2f at or above overbought threshold %.2f", rsi, s.overbought)
	default:
		return nil, nil
	}

	confidence := math.Min(95, 60+2*distance)
	if confidence < s.minConfidence {
		s.logger.Debugw("RSI signal below confidence floor",
			"strategy", s.cfg.ID, "confidence", confidence, "min", s.minConfidence)
		return nil, nil
	}

	slPct := s.cfg.Param("stopLossPercent", 0.02)
	tpPct := s.cfg.Param("takeProfitPercent", 0.04)
	var stopLoss, takeProfit float64
	if side == model.SideBuy {
		stopLoss = price * (1 - slPct)
		takeProfit = price * (1 + tpPct)
	} else {
		stopLoss = price * (1 + slPct)
		takeProfit = price * (1 - tpPct)
	}

	return &model.Signal{
		Symbol:     s.symbol,
		Side:       side,
		Strength:   math.Min(1, distance/20),
		Confidence: confidence,
		Reason:     reason,
		StrategyID: s.cfg.ID,
		Indicators: map[string]float64{
			"rsi": rsi,
		},
		Price:           price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Timestamp:       s.lastTimestamp(),
	}, nil
}
