// Package engine 实现交易引擎编排层:
// 持有 (策略, 连接器) 注册表，把行情分发给相关策略，
// 将产生的信号送入安全校验，执行通过的信号 (纸面或实盘)，
// 并用后台循环对账所有活跃订单的状态
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"crypto-trade-engine/internal/connector"
	"crypto-trade-engine/internal/model"
	"crypto-trade-engine/internal/safety"
	"crypto-trade-engine/internal/strategy"
	"crypto-trade-engine/pkg/ta"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sync"
)

// Config 引擎配置
type Config struct {
	MaxConcurrentOrders int           `mapstructure:"maxConcurrentOrders"`
	MaxDailyTrades      int           `mapstructure:"maxDailyTrades"`
	EmergencyStopLoss   float64       `mapstructure:"emergencyStopLoss"` // 最大允许回撤比例
	EnablePaperTrading  bool          `mapstructure:"enablePaperTrading"`
	MaxPositionSize     float64       `mapstructure:"maxPositionSize"` // 单笔订单价值占组合的上限
	MinConfidence       float64       `mapstructure:"minConfidence"`   // 全局置信度下限
	MonitorInterval     time.Duration `mapstructure:"monitorInterval"` // 订单监控间隔
	SeedHistoryLimit    int           `mapstructure:"seedHistoryLimit"`
}

// 注册表条目: 策略和它专属的连接器
type registration struct {
	strat strategy.Strategy
	conn  connector.Connector
}

// 活跃订单表条目
type activeOrder struct {
	order *model.Order
	conn  connector.Connector
}

// 按均价成本法跟踪每个交易对的持仓，用于已实现 PnL
type position struct {
	size    float64
	avgCost float64
}

// TradingEngine 状态机: stopped -> running -> stopped
// 注册表和活跃订单表只由引擎自身写入 (单写者)，全部变更经引擎方法串行化
type TradingEngine struct {
	cfg    Config
	safety *safety.Engine
	logger *zap.SugaredLogger

	mu            sync.RWMutex
	running       bool
	halted        bool // 紧急停止后拒绝新信号
	strategies    map[string]*registration
	activeOrders  map[string]*activeOrder
	pendingOrders int // 下单在途的预留额度，和活跃订单一起计入并发上限
	positions     map[string]*position
	metrics       model.EngineMetrics
	peakPnL       float64
	tradesToday   int
	tradeDay      string // UTC 日期，跨天时重置当日计数

	events chan model.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 构造引擎，零值配置会落到安全默认
func New(cfg Config, logger *zap.SugaredLogger) *TradingEngine {
	if cfg.MaxConcurrentOrders <= 0 {
		cfg.MaxConcurrentOrders = 10
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = 50
	}
	if cfg.EmergencyStopLoss <= 0 {
		cfg.EmergencyStopLoss = 0.2
	}
	if cfg.MaxPositionSize <= 0 {
		cfg.MaxPositionSize = 0.25
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 50
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	if cfg.SeedHistoryLimit <= 0 {
		cfg.SeedHistoryLimit = 100
	}

	return &TradingEngine{
		cfg: cfg,
		safety: safety.NewEngine(safety.Config{
			MaxPositionSize: cfg.MaxPositionSize,
			MaxDailyTrades:  cfg.MaxDailyTrades,
			MaxDrawdown:     cfg.EmergencyStopLoss,
			MinConfidence:   cfg.MinConfidence,
		}, logger),
		logger:       logger,
		strategies:   make(map[string]*registration),
		activeOrders: make(map[string]*activeOrder),
		positions:    make(map[string]*position),
		events:       make(chan model.Event, 256),
		tradeDay:     time.Now().UTC().Format("2006-01-02"),
	}
}

// Events 返回引擎的对外事件通道
func (e *TradingEngine) Events() <-chan model.Event { return e.events }

// publish 非阻塞发布事件，通道满时丢弃并告警
func (e *TradingEngine) publish(t model.EventType, strategyID string, payload any) {
	evt := model.Event{Type: t, StrategyID: strategyID, Payload: payload, Timestamp: time.Now()}
	select {
	case e.events <- evt:
	default:
		e.logger.Warnw("Event channel full! Dropping event", "type", t, "strategy", strategyID)
	}
}

// Start 启动引擎和订单监控循环，已在运行则报错
func (e *TradingEngine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.halted = false
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(1)
	go e.monitorLoop()

	e.logger.Info("Trading engine started")
	e.publish(model.EventEngineStarted, "", nil)
	return nil
}

// Stop 停止引擎: 先尽力撤销全部活跃订单 (容忍单个失败)，再翻转为 stopped
// 对已停止的引擎调用是幂等的
func (e *TradingEngine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	actives := e.snapshotActive()
	e.mu.Unlock()

	e.wg.Wait()
	e.cancelOrders(context.Background(), actives)

	e.logger.Info("Trading engine stopped")
	e.publish(model.EventEngineStopped, "", nil)
	return nil
}

// IsRunning 返回引擎是否在运行
func (e *TradingEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// cancelOrders 并发撤销一批订单，逐个容忍失败
func (e *TradingEngine) cancelOrders(ctx context.Context, actives []*activeOrder) {
	var g errgroup.Group
	for _, ao := range actives {
		g.Go(func() error {
			resp, err := ao.conn.CancelOrder(ctx, ao.order.Symbol, ao.order.OrderID)
			if err != nil || !resp.Success {
				msg := ""
				if err != nil {
					msg = err.Error()
				} else {
					msg = resp.Error
				}
				e.logger.Warnw("Order cancel failed",
					"orderID", ao.order.OrderID, "symbol", ao.order.Symbol, "error", msg)
				e.publish(model.EventOrderCancelError, ao.order.StrategyID, map[string]any{
					"order": *ao.order,
					"error": msg,
				})
				return nil
			}

			e.mu.Lock()
			delete(e.activeOrders, ao.order.OrderID)
			e.mu.Unlock()
			cancelled := resp.Data
			e.publish(model.EventOrderCompleted, ao.order.StrategyID, cancelled)
			return nil
		})
	}
	g.Wait()
}

// AddStrategy 经工厂构造策略，用连接器的历史 K 线做种子初始化，然后注册
func (e *TradingEngine) AddStrategy(cfg model.StrategyConfig, conn connector.Connector) error {
	strat, err := strategy.New(cfg, e.logger)
	if err != nil {
		return err
	}
	id := strat.ID()

	symbol := cfg.Symbols[0]
	var history []model.Candle
	resp, err := conn.GetCandles(context.Background(), symbol, cfg.Timeframe, e.cfg.SeedHistoryLimit)
	if err != nil {
		// 种子历史拿不到不阻塞注册，策略会在后续行情中逐步积累窗口
		e.logger.Warnw("Seed history unavailable", "strategy", id, "symbol", symbol, "error", err)
	} else if resp.Success {
		history = resp.Data
	}
	if err := strat.Initialize(symbol, history); err != nil {
		return fmt.Errorf("initialize strategy %s: %w", id, err)
	}

	e.mu.Lock()
	if _, exists := e.strategies[id]; exists {
		e.mu.Unlock()
		return fmt.Errorf("strategy %s already registered", id)
	}
	e.strategies[id] = &registration{strat: strat, conn: conn}
	e.metrics.ActiveStrategies = len(e.strategies)
	e.mu.Unlock()

	e.logger.Infow("Strategy registered", "strategy", id, "type", cfg.Type, "symbols", cfg.Symbols)
	e.publish(model.EventStrategyAdded, id, cfg)
	return nil
}

// RemoveStrategy 停用并注销策略，不撤销其已挂出的订单
func (e *TradingEngine) RemoveStrategy(id string) error {
	e.mu.Lock()
	reg, found := e.strategies[id]
	if !found {
		e.mu.Unlock()
		return fmt.Errorf("strategy not found: %s", id)
	}
	reg.strat.SetActive(false)
	delete(e.strategies, id)
	e.metrics.ActiveStrategies = len(e.strategies)
	e.mu.Unlock()

	e.logger.Infow("Strategy removed", "strategy", id)
	e.publish(model.EventStrategyRemoved, id, nil)
	return nil
}

// AddMarketData 单根 K 线的分发入口
func (e *TradingEngine) AddMarketData(symbol string, c model.Candle) {
	e.ProcessMarketData(symbol, []model.Candle{c})
}

// ProcessMarketData 行情分发:
// 筛选订阅了该交易对且处于激活状态的策略，逐个喂数据并运行，
// 单个策略的失败被捕获为 strategyError 事件，不影响其他策略
func (e *TradingEngine) ProcessMarketData(symbol string, candles []model.Candle) {
	type evaluated struct {
		reg *registration
		sig *model.Signal
	}
	var results []evaluated

	e.mu.Lock()
	for id, reg := range e.strategies {
		if !reg.strat.IsActive() || !reg.strat.Config().HasSymbol(symbol) {
			continue
		}
		sig, err := e.evaluateStrategy(reg, candles)
		if err != nil {
			e.logger.Warnw("Strategy evaluation failed", "strategy", id, "error", err)
			e.publish(model.EventStrategyError, id, err.Error())
			continue
		}
		if sig != nil {
			results = append(results, evaluated{reg: reg, sig: sig})
		}
	}
	e.mu.Unlock()

	for _, r := range results {
		e.processSignal(r.reg, r.sig)
	}
}

// evaluateStrategy 喂入一批 K 线并运行一次决策 (调用方需持有写锁)
// 热身期的数据不足不能中断喂入: 批次里的每根 K 线都要进窗口，
// 只有最后一根喂完仍不足时才按本周期的 strategyError 上报
func (e *TradingEngine) evaluateStrategy(reg *registration, candles []model.Candle) (*model.Signal, error) {
	var lastErr error
	for _, c := range candles {
		err := reg.strat.AddMarketData(c)
		if err != nil && !errors.Is(err, ta.ErrInsufficientData) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return reg.strat.Run()
}

// processSignal 私有信号管道:
// 计数 -> 实际定仓 -> 安全校验 -> 纸面或实盘执行
func (e *TradingEngine) processSignal(reg *registration, sig *model.Signal) {
	e.publish(model.EventSignalGenerated, sig.StrategyID, sig)

	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		e.logger.Warnw("Signal dropped: engine halted by emergency stop", "strategy", sig.StrategyID)
		return
	}
	e.maybeResetDaily()
	e.metrics.TotalSignals++

	// 先定仓再校验: 仓位检查用的是策略实际算出的订单价值
	req, err := reg.strat.CreateOrderRequest(sig)
	if err != nil {
		e.metrics.RejectedSignals++
		e.recomputeRate()
		e.mu.Unlock()
		e.publish(model.EventStrategyError, sig.StrategyID, err.Error())
		return
	}

	price := sig.Price
	if price <= 0 && req.Price > 0 {
		price = req.Price
	}
	portfolioValue := reg.strat.Config().RiskParam("portfolioValue", 10000)
	sctx := safety.Context{
		ActiveOrders:    e.activeOrderList(),
		TradesToday:     e.tradesToday,
		PortfolioValue:  portfolioValue,
		CurrentDrawdown: e.currentDrawdown(portfolioValue),
		EstimatedValue:  req.Size * price,
	}
	e.mu.Unlock()

	checks, valid := e.safety.ValidateSignal(sig, sctx)
	if !valid {
		e.mu.Lock()
		e.metrics.RejectedSignals++
		e.recomputeRate()
		e.mu.Unlock()
		e.publish(model.EventSignalRejected, sig.StrategyID, map[string]any{
			"signal":  sig,
			"checks":  checks,
			"reasons": safety.FailureReasons(checks),
		})
		return
	}

	if e.cfg.EnablePaperTrading {
		e.executePaper(reg, sig, req)
	} else {
		e.executeLive(reg, sig, req)
	}
}

// executePaper 纸面执行: 不触碰连接器，本地合成一笔立即成交的订单
func (e *TradingEngine) executePaper(reg *registration, sig *model.Signal, req *model.OrderRequest) {
	now := time.Now()
	order := model.Order{
		OrderRequest: *req,
		OrderID:      "paper-" + uuid.NewString(),
		StrategyID:   sig.StrategyID,
		Status:       model.OrderStatusFilled,
		FilledSize:   req.Size,
		AvgFillPrice: sig.Price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	e.mu.Lock()
	e.metrics.ExecutedTrades++
	e.tradesToday++
	e.recordFill(&order)
	e.recomputeRate()
	e.mu.Unlock()

	e.logger.Infow("Paper trade executed",
		"strategy", sig.StrategyID, "symbol", req.Symbol, "side", req.Side,
		"size", req.Size, "price", sig.Price)
	e.publish(model.EventPaperTradeExecuted, sig.StrategyID, order)
}

// executeLive 实盘执行: 下单成功进入活跃订单表，失败降级为拒绝事件
// 并发额度在锁内预留: 在途的下单也占一个名额，防止并发信号同时越过上限
func (e *TradingEngine) executeLive(reg *registration, sig *model.Signal, req *model.OrderRequest) {
	e.mu.Lock()
	if len(e.activeOrders)+e.pendingOrders >= e.cfg.MaxConcurrentOrders {
		e.metrics.RejectedSignals++
		e.recomputeRate()
		e.mu.Unlock()
		e.publish(model.EventTradeRejected, sig.StrategyID, map[string]any{
			"signal": sig,
			"error":  fmt.Sprintf("max concurrent orders reached (%d)", e.cfg.MaxConcurrentOrders),
		})
		return
	}
	e.pendingOrders++
	e.mu.Unlock()

	resp, err := reg.conn.PlaceOrder(context.Background(), *req)
	if err != nil {
		e.mu.Lock()
		e.pendingOrders--
		e.metrics.RejectedSignals++
		e.recomputeRate()
		e.mu.Unlock()
		e.publish(model.EventTradeExecutionError, sig.StrategyID, map[string]any{
			"signal": sig,
			"error":  err.Error(),
		})
		return
	}
	if !resp.Success {
		e.mu.Lock()
		e.pendingOrders--
		e.metrics.RejectedSignals++
		e.recomputeRate()
		e.mu.Unlock()
		e.publish(model.EventTradeRejected, sig.StrategyID, map[string]any{
			"signal": sig,
			"error":  resp.Error,
		})
		return
	}

	order := resp.Data
	order.StrategyID = sig.StrategyID

	e.mu.Lock()
	e.pendingOrders--
	e.metrics.ExecutedTrades++
	e.tradesToday++
	if order.Status.IsTerminal() {
		// 市价单可能直接返回终态，不进入活跃订单表
		if order.Status == model.OrderStatusFilled {
			e.recordFill(&order)
		}
	} else {
		e.activeOrders[order.OrderID] = &activeOrder{order: &order, conn: reg.conn}
	}
	e.recomputeRate()
	e.mu.Unlock()

	e.logger.Infow("Trade executed",
		"strategy", sig.StrategyID, "symbol", order.Symbol, "side", order.Side,
		"size", order.Size, "orderID", order.OrderID, "status", order.Status)
	e.publish(model.EventTradeExecuted, sig.StrategyID, order)
	if order.Status.IsTerminal() {
		e.publish(model.EventOrderCompleted, sig.StrategyID, order)
	}
}

// monitorLoop 固定间隔并发刷新所有活跃订单，逐个容忍失败
func (e *TradingEngine) monitorLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.refreshActiveOrders()
		}
	}
}

// refreshActiveOrders 并发回查每个活跃订单的状态并替换本地副本
// 刷新到终态的订单移出活跃表并发布完成事件
func (e *TradingEngine) refreshActiveOrders() {
	e.mu.RLock()
	actives := e.snapshotActive()
	e.mu.RUnlock()
	if len(actives) == 0 {
		return
	}

	var g errgroup.Group
	for _, ao := range actives {
		g.Go(func() error {
			resp, err := ao.conn.GetOrder(context.Background(), ao.order.Symbol, ao.order.OrderID)
			if err != nil || !resp.Success {
				msg := ""
				if err != nil {
					msg = err.Error()
				} else {
					msg = resp.Error
				}
				e.publish(model.EventOrderUpdateError, ao.order.StrategyID, map[string]any{
					"orderID": ao.order.OrderID,
					"error":   msg,
				})
				return nil
			}

			refreshed := resp.Data
			refreshed.StrategyID = ao.order.StrategyID
			refreshed.ClientOrderID = ao.order.ClientOrderID

			e.mu.Lock()
			if existing, found := e.activeOrders[refreshed.OrderID]; found {
				existing.order = &refreshed
				if refreshed.Status.IsTerminal() {
					delete(e.activeOrders, refreshed.OrderID)
					if refreshed.Status == model.OrderStatusFilled {
						e.recordFill(&refreshed)
					}
				}
			}
			e.mu.Unlock()

			if refreshed.Status.IsTerminal() {
				e.publish(model.EventOrderCompleted, refreshed.StrategyID, refreshed)
			}
			return nil
		})
	}
	g.Wait()
}

// EmergencyStop 始终可用的逃生通道:
// 撤销所有连接器上的全部活跃订单并停止处理新信号
// 不由任何单项安全检查自动触发，由调用方决定
func (e *TradingEngine) EmergencyStop(ctx context.Context) {
	e.mu.Lock()
	e.halted = true
	actives := e.snapshotActive()
	e.mu.Unlock()

	e.logger.Warnw("EMERGENCY STOP: cancelling all active orders", "count", len(actives))
	e.cancelOrders(ctx, actives)
}

// GetActiveOrders 返回活跃订单的副本
func (e *TradingEngine) GetActiveOrders() []model.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	orders := make([]model.Order, 0, len(e.activeOrders))
	for _, ao := range e.activeOrders {
		orders = append(orders, *ao.order)
	}
	return orders
}

// Metrics 返回运行指标的副本
func (e *TradingEngine) Metrics() model.EngineMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m := e.metrics
	m.ActiveStrategies = len(e.strategies)
	return m
}

// ---- 内部辅助 (调用方需持有锁) ----

func (e *TradingEngine) snapshotActive() []*activeOrder {
	actives := make([]*activeOrder, 0, len(e.activeOrders))
	for _, ao := range e.activeOrders {
		actives = append(actives, ao)
	}
	return actives
}

func (e *TradingEngine) activeOrderList() []*model.Order {
	orders := make([]*model.Order, 0, len(e.activeOrders))
	for _, ao := range e.activeOrders {
		orders = append(orders, ao.order)
	}
	return orders
}

// maybeResetDaily UTC 跨天时重置当日成交计数
func (e *TradingEngine) maybeResetDaily() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != e.tradeDay {
		e.tradeDay = today
		e.tradesToday = 0
	}
}

// recomputeRate successRate = executedTrades / totalSignals，totalSignals 为 0 时保持 0
func (e *TradingEngine) recomputeRate() {
	if e.metrics.TotalSignals > 0 {
		e.metrics.SuccessRate = float64(e.metrics.ExecutedTrades) / float64(e.metrics.TotalSignals)
	} else {
		e.metrics.SuccessRate = 0
	}
}

// currentDrawdown 相对历史 PnL 峰值的回撤比例
func (e *TradingEngine) currentDrawdown(portfolioValue float64) float64 {
	if portfolioValue <= 0 {
		return 0
	}
	dd := (e.peakPnL - e.metrics.TotalPnL) / portfolioValue
	return math.Max(0, dd)
}

// recordFill 用均价成本法把成交记入持仓，卖出时实现 PnL
func (e *TradingEngine) recordFill(order *model.Order) {
	if order.FilledSize <= 0 || order.AvgFillPrice <= 0 {
		return
	}
	pos, found := e.positions[order.Symbol]
	if !found {
		pos = &position{}
		e.positions[order.Symbol] = pos
	}

	if order.Side == model.SideBuy {
		newSize := pos.size + order.FilledSize
		pos.avgCost = (pos.avgCost*pos.size + order.AvgFillPrice*order.FilledSize) / newSize
		pos.size = newSize
		return
	}

	// 卖出: 只对已有持仓部分实现盈亏
	closing := math.Min(order.FilledSize, pos.size)
	if closing <= 0 {
		return
	}
	realized := (order.AvgFillPrice - pos.avgCost) * closing
	pos.size -= closing
	if pos.size == 0 {
		pos.avgCost = 0
	}
	e.metrics.TotalPnL += realized
	if e.metrics.TotalPnL > e.peakPnL {
		e.peakPnL = e.metrics.TotalPnL
	}
	e.publish(model.EventPnLUpdated, order.StrategyID, map[string]any{
		"realized": realized,
		"totalPnL": e.metrics.TotalPnL,
	})
}
