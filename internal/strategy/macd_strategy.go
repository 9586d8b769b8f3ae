package strategy

import (
	"fmt"
	"math"

	"crypto-trade-engine/internal/model"
	"crypto-trade-engine/pkg/ta"

	"go.uber.org/zap"
)

// TypeMACDCrossover MACD 交叉策略的类型标签
const TypeMACDCrossover = "macd_crossover"

// MACDStrategy 交叉策略:
// bullish 交叉发 BUY，bearish 交叉发 SELL，
// 柱状图幅度低于 minHistogram 的交叉视为零轴附近的噪声被过滤，
// 短期柱状图趋势与信号方向不一致时同样拒绝
type MACDStrategy struct {
	BaseStrategy

	fastPeriod    int
	slowPeriod    int
	signalPeriod  int
	minHistogram  float64
	trendLookback int
	minConfidence float64
}

func newMACDStrategy(cfg model.StrategyConfig, logger *zap.SugaredLogger) (Strategy, error) {
	s := &MACDStrategy{
		BaseStrategy:  newBase(cfg, logger),
		fastPeriod:    int(cfg.Param("fastPeriod", 12)),
		slowPeriod:    int(cfg.Param("slowPeriod", 26)),
		signalPeriod:  int(cfg.Param("signalPeriod", 9)),
		minHistogram:  cfg.Param("minHistogram", 0),
		trendLookback: int(cfg.Param("trendLookback", 5)),
		minConfidence: cfg.Param("minConfidence", 60),
	}
	if s.trendLookback < 2 {
		return nil, fmt.Errorf("macd strategy: trendLookback must be at least 2, got %d", s.trendLookback)
	}
	if _, err := ta.NewMACD("", cfg.Timeframe, s.fastPeriod, s.slowPeriod, s.signalPeriod); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MACDStrategy) Initialize(symbol string, history []model.Candle) error {
	macd, err := ta.NewMACD(symbol, s.timeframe, s.fastPeriod, s.slowPeriod, s.signalPeriod)
	if err != nil {
		return err
	}
	s.indicators["macd"] = macd
	return s.initBase(symbol, history)
}

func (s *MACDStrategy) Run() (*model.Signal, error) {
	return s.runWith(s.generateSignal)
}

func (s *MACDStrategy) generateSignal() (*model.Signal, error) {
	results := s.results["macd"]
	if len(results) == 0 {
		return nil, nil
	}
	latest := results[len(results)-1]

	crossover, _ := latest.Meta["crossover"].(string)
	if crossover == ta.CrossoverNone || crossover == "" {
		return nil, nil
	}

	hist, _ := latest.Meta["histogram"].(float64)
	macd, _ := latest.Meta["macd"].(float64)
	signalLine, _ := latest.Meta["signal"].(float64)
	price := s.lastClose()

	// 零轴附近的噪声过滤
	if math.Abs(hist) < s.minHistogram {
		return nil, nil
	}

	var side model.Side
	if crossover == ta.CrossoverBullish {
		side = model.SideBuy
	} else {
		side = model.SideSell
	}

	// 短期趋势过滤: 最近 N 个柱状图点的首尾差必须与信号方向一致
	if n := s.trendLookback; len(results) >= n {
		oldest, _ := results[len(results)-n].Meta["histogram"].(float64)
		trend := hist - oldest
		if (side == model.SideBuy && trend <= 0) || (side == model.SideSell && trend >= 0) {
			s.logger.Debugw("MACD signal rejected: short-term histogram trend disagrees",
				"strategy", s.cfg.ID, "side", side, "trend", trend)
			return nil, nil
		}
	}

	// 置信度: 柱状图幅度 + MACD/信号线离差 + 零轴位置
	confidence := 55.0
	if price > 0 {
		confidence += math.Min(20, math.Abs(hist)/price*20000)
		confidence += math.Min(10, math.Abs(macd-signalLine)/price*10000)
	}
	if (side == model.SideBuy && macd > 0) || (side == model.SideSell && macd < 0) {
		confidence += 10
	}
	confidence = math.Min(95, confidence)
	if confidence < s.minConfidence {
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

	strength := 0.5
	if math.Abs(macd) > 0 {
		strength = math.Min(1, math.Abs(hist)/math.Abs(macd))
	}

	return &model.Signal{
		Symbol:     s.symbol,
		Side:       side,
		Strength:   strength,
		Confidence: confidence,
		Reason: fmt.Sprintf("MACD %s crossover, histogram %.6f (macd %.6f, signal %.6f)",
			crossover, hist, macd, signalLine),
		StrategyID: s.cfg.ID,
		Indicators: map[string]float64{
			"macd":      macd,
			"signal":    signalLine,
			"histogram": hist,
		},
		Price:           price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Timestamp:       s.lastTimestamp(),
	}, nil
}
