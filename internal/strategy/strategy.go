package strategy

import (
	"fmt"
	"math"
	"time"

	"crypto-trade-engine/internal/model"
	"crypto-trade-engine/pkg/ta"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 窗口最大长度，超过后按 FIFO 丢弃最旧的 K 线
const maxWindowSize = 500

// 冷却期默认 30 分钟: 反向信号在冷却期内被抑制
const defaultCooldownMinutes = 30.0

// Strategy 是所有交易策略的统一抽象
// 策略实例的全部可变状态 (窗口、指标、lastSignal) 由引擎串行驱动，
// 策略自身不做并发保护
type Strategy interface {
	ID() string
	Config() model.StrategyConfig
	IsActive() bool
	SetActive(active bool)

	// Initialize 构建指标实例，并对种子历史跑一次计算
	Initialize(symbol string, history []model.Candle) error
	// AddMarketData 追加一根 K 线并重算全部指标
	AddMarketData(c model.Candle) error
	// UpdateMarketData 整体替换窗口并重算全部指标
	UpdateMarketData(window []model.Candle) error

	// Run 执行一次决策: 未激活或无数据时返回 nil
	// 生成的信号通过校验后才返回，并记录为 lastSignal
	Run() (*model.Signal, error)

	// CreateOrderRequest 按风控参数对已批准的信号定仓
	CreateOrderRequest(sig *model.Signal) (*model.OrderRequest, error)

	LastSignal() *model.Signal
}

// BaseStrategy 持有策略的可变上下文，供具体策略嵌入
type BaseStrategy struct {
	cfg        model.StrategyConfig
	symbol     string
	timeframe  string
	window     []model.Candle
	indicators map[string]ta.Indicator
	results    map[string][]ta.Result // 每个指标最近一次的完整结果序列
	lastSignal *model.Signal
	active     bool
	logger     *zap.SugaredLogger
}

func newBase(cfg model.StrategyConfig, logger *zap.SugaredLogger) BaseStrategy {
	return BaseStrategy{
		cfg:        cfg,
		timeframe:  cfg.Timeframe,
		indicators: make(map[string]ta.Indicator),
		results:    make(map[string][]ta.Result),
		active:     cfg.Active,
		logger:     logger,
	}
}

func (b *BaseStrategy) ID() string { return b.cfg.ID }

func (b *BaseStrategy) Config() model.StrategyConfig { return b.cfg }

func (b *BaseStrategy) IsActive() bool { return b.active }

func (b *BaseStrategy) SetActive(active bool) { b.active = active }

func (b *BaseStrategy) LastSignal() *model.Signal { return b.lastSignal }

func (b *BaseStrategy) Symbol() string { return b.symbol }

// initBase 绑定交易对并灌入种子历史
func (b *BaseStrategy) initBase(symbol string, history []model.Candle) error {
	b.symbol = symbol
	b.window = b.window[:0]
	for _, c := range history {
		b.window = append(b.window, c)
	}
	b.trimWindow()
	if len(b.window) == 0 {
		return nil
	}
	return b.recompute()
}

func (b *BaseStrategy) AddMarketData(c model.Candle) error {
	// 窗口只接受绑定交易对的 K 线
	if c.Symbol != "" && b.symbol != "" && c.Symbol != b.symbol {
		return nil
	}
	b.window = append(b.window, c)
	b.trimWindow()
	return b.recompute()
}

func (b *BaseStrategy) UpdateMarketData(window []model.Candle) error {
	b.window = append(b.window[:0], window...)
	b.trimWindow()
	return b.recompute()
}

func (b *BaseStrategy) trimWindow() {
	if len(b.window) > maxWindowSize {
		b.window = b.window[len(b.window)-maxWindowSize:]
	}
}

// recompute 对当前窗口重算所有指标
// 数据不足是周期性的正常情况，原样返回给引擎上报，下一根 K 线会重试
func (b *BaseStrategy) recompute() error {
	for name, ind := range b.indicators {
		results, err := ind.Calculate(b.window)
		if err != nil {
			return fmt.Errorf("strategy %s: indicator %s: %w", b.cfg.ID, name, err)
		}
		b.results[name] = results
	}
	return nil
}

// latest 返回指定指标的最新结果
func (b *BaseStrategy) latest(name string) (ta.Result, bool) {
	rs := b.results[name]
	if len(rs) == 0 {
		return ta.Result{}, false
	}
	return rs[len(rs)-1], true
}

// lastClose 返回窗口最新收盘价
func (b *BaseStrategy) lastClose() float64 {
	if len(b.window) == 0 {
		return 0
	}
	return b.window[len(b.window)-1].Close
}

// lastTimestamp 返回窗口最新 K 线的时间戳
func (b *BaseStrategy) lastTimestamp() time.Time {
	if len(b.window) == 0 {
		return time.Now()
	}
	return b.window[len(b.window)-1].Timestamp
}

// runWith 通用的 Run 骨架: 激活检查 -> 生成 -> 校验 -> 记录 lastSignal
func (b *BaseStrategy) runWith(generate func() (*model.Signal, error)) (*model.Signal, error) {
	if !b.active || len(b.window) == 0 {
		return nil, nil
	}
	sig, err := generate()
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, nil
	}
	if !b.validateSignal(sig) {
		return nil, nil
	}
	b.lastSignal = sig
	return sig, nil
}

// validateSignal 策略自身的信号校验: 冷却期 + 止损/止盈风控上限
func (b *BaseStrategy) validateSignal(sig *model.Signal) bool {
	// 冷却期: 方向反转的信号距离上一个反向信号不足冷却窗口时被抑制
	cooldown := time.Duration(b.cfg.Param("cooldownMinutes", defaultCooldownMinutes)) * time.Minute
	if b.lastSignal != nil && b.lastSignal.Side != sig.Side {
		if sig.Timestamp.Sub(b.lastSignal.Timestamp) < cooldown {
			b.logger.Debugw("Signal suppressed by cooldown",
				"strategy", b.cfg.ID, "side", sig.Side, "lastSide", b.lastSignal.Side)
			return false
		}
	}

	// 止损/止盈隐含的百分比超出风控上限则拒绝
	maxSL := b.cfg.RiskParam("maxStopLossPercent", 0.05)
	maxTP := b.cfg.RiskParam("maxTakeProfitPercent", 0.10)
	if sig.Price > 0 {
		if sig.StopLossPrice > 0 {
			slPct := math.Abs(sig.Price-sig.StopLossPrice) / sig.Price
			if slPct > maxSL {
				b.logger.Debugw("Signal rejected: stop loss beyond risk limit",
					"strategy", b.cfg.ID, "slPct", slPct, "max", maxSL)
				return false
			}
		}
		if sig.TakeProfitPrice > 0 {
			tpPct := math.Abs(sig.TakeProfitPrice-sig.Price) / sig.Price
			if tpPct > maxTP {
				b.logger.Debugw("Signal rejected: take profit beyond risk limit",
					"strategy", b.cfg.ID, "tpPct", tpPct, "max", maxTP)
				return false
			}
		}
	}
	return true
}

// CreateOrderRequest 定仓规则:
// size = min(maxPositionPercent × portfolioValue / price, riskBudget / |price - stopLoss|)
// 无止损价时只用百分比上限
func (b *BaseStrategy) CreateOrderRequest(sig *model.Signal) (*model.OrderRequest, error) {
	if sig == nil {
		return nil, fmt.Errorf("strategy %s: cannot size a nil signal", b.cfg.ID)
	}
	price := sig.Price
	if price <= 0 {
		price = b.lastClose()
	}
	if price <= 0 {
		return nil, fmt.Errorf("strategy %s: no price available for sizing", b.cfg.ID)
	}

	portfolioValue := b.cfg.RiskParam("portfolioValue", 10000)
	maxPosPct := b.cfg.RiskParam("maxPositionPercent", 0.1)
	riskBudget := b.cfg.RiskParam("riskPerTrade", portfolioValue*0.01)

	size := maxPosPct * portfolioValue / price
	if sig.StopLossPrice > 0 {
		stopDistance := math.Abs(price - sig.StopLossPrice)
		if stopDistance > 0 {
			size = math.Min(size, riskBudget/stopDistance)
		}
	}
	if size <= 0 {
		return nil, fmt.Errorf("strategy %s: computed position size is not positive", b.cfg.ID)
	}

	return &model.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Type:          model.OrderTypeMarket,
		Size:          size,
		ClientOrderID: uuid.NewString(),
		TimeInForce:   model.TIFGoodTillCancel,
	}, nil
}
