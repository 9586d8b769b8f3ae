package connector

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"crypto-trade-engine/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedConfig 模拟场所配置
type SimulatedConfig struct {
	Name            string
	InitialBalances map[string]float64 // 币种 -> 初始可用余额
	InitialPrices   map[string]float64 // 交易对 -> 初始价格
	TickInterval    time.Duration      // 价格随机游走的步进间隔
	Volatility      float64            // 单步最大波动比例，例如 0.001
}

// Simulated 内存模拟场所
// 持有余额表、订单表和成交表；后台 tick 按有界随机游走扰动每个交易对的最新价
// 市价单按当前模拟价立即成交 (零手续费)，限价单保持 OPEN 直到被撤销
// (本模拟不实现限价撮合)
type Simulated struct {
	cfg    SimulatedConfig
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	balances  map[string]*model.Balance
	orders    map[string]*model.Order
	fills     map[string][]model.Fill // orderID -> 成交明细
	lastPrice map[string]float64
	history   []*model.Order // 已完结订单，按完结时间排列

	rng    *rand.Rand
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSimulated 构造模拟场所
func NewSimulated(cfg SimulatedConfig, logger *zap.SugaredLogger) *Simulated {
	if cfg.Name == "" {
		cfg.Name = "simulated"
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.001
	}

	s := &Simulated{
		cfg:       cfg,
		logger:    logger,
		balances:  make(map[string]*model.Balance),
		orders:    make(map[string]*model.Order),
		fills:     make(map[string][]model.Fill),
		lastPrice: make(map[string]float64),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:    make(chan struct{}),
	}
	for currency, free := range cfg.InitialBalances {
		s.balances[currency] = &model.Balance{Currency: currency, Free: free}
	}
	for symbol, price := range cfg.InitialPrices {
		s.lastPrice[symbol] = price
	}
	return s
}

// Start 启动后台价格 tick
func (s *Simulated) Start() {
	s.wg.Add(1)
	go s.tickLoop()
}

// Stop 停止后台价格 tick，幂等
func (s *Simulated) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// tickLoop 固定间隔对每个交易对的最新价做有界随机游走
func (s *Simulated) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			for symbol, price := range s.lastPrice {
				step := (s.rng.Float64()*2 - 1) * s.cfg.Volatility
				s.lastPrice[symbol] = price * (1 + step)
			}
			s.mu.Unlock()
		}
	}
}

// SetPrice 直接设置某交易对的模拟价格 (纸面交易和测试使用)
func (s *Simulated) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice[symbol] = price
}

func (s *Simulated) Name() string { return s.cfg.Name }

// splitSymbol "BTC-USDT" -> ("BTC", "USDT")
func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return parts[0], parts[1], nil
}

// ---- 市场数据 ----

func (s *Simulated) GetVenueInfo(ctx context.Context) (Response[model.VenueInfo], error) {
	return ok(model.VenueInfo{Name: s.cfg.Name, ServerTime: time.Now()}), nil
}

func (s *Simulated) GetTradingPairs(ctx context.Context) (Response[[]model.TradingPair], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := make([]model.TradingPair, 0, len(s.lastPrice))
	for symbol := range s.lastPrice {
		base, quote, err := splitSymbol(symbol)
		if err != nil {
			continue
		}
		pairs = append(pairs, model.TradingPair{Symbol: symbol, Base: base, Quote: quote, Active: true})
	}
	return ok(pairs), nil
}

func (s *Simulated) GetTicker(ctx context.Context, symbol string) (Response[model.Ticker], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, found := s.lastPrice[symbol]
	if !found {
		return fail[model.Ticker](fmt.Sprintf("symbol not found: %s", symbol)), nil
	}
	return ok(model.Ticker{
		Symbol:    symbol,
		Last:      price,
		Bid:       price,
		Ask:       price,
		Timestamp: time.Now(),
	}), nil
}

func (s *Simulated) GetOrderBook(ctx context.Context, symbol string, depth int) (Response[model.OrderBook], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, found := s.lastPrice[symbol]
	if !found {
		return fail[model.OrderBook](fmt.Sprintf("symbol not found: %s", symbol)), nil
	}
	if depth <= 0 {
		depth = 10
	}
	// 围绕最新价合成对称的订单簿
	book := model.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for i := 1; i <= depth; i++ {
		offset := price * 0.0001 * float64(i)
		book.Bids = append(book.Bids, model.BookLevel{Price: price - offset, Size: 1})
		book.Asks = append(book.Asks, model.BookLevel{Price: price + offset, Size: 1})
	}
	return ok(book), nil
}

func (s *Simulated) GetRecentTrades(ctx context.Context, symbol string, limit int) (Response[[]model.PublicTrade], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, found := s.lastPrice[symbol]; !found {
		return fail[[]model.PublicTrade](fmt.Sprintf("symbol not found: %s", symbol)), nil
	}
	var trades []model.PublicTrade
	for _, orderFills := range s.fills {
		for _, f := range orderFills {
			if f.Symbol != symbol {
				continue
			}
			trades = append(trades, model.PublicTrade{
				TradeID:   f.FillID,
				Symbol:    f.Symbol,
				Price:     f.Price,
				Size:      f.Size,
				Side:      f.Side,
				Timestamp: f.Timestamp,
			})
			if limit > 0 && len(trades) >= limit {
				return ok(trades), nil
			}
		}
	}
	return ok(trades), nil
}

func (s *Simulated) GetCandles(ctx context.Context, symbol, timeframe string, limit int) (Response[[]model.Candle], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, found := s.lastPrice[symbol]; !found {
		return fail[[]model.Candle](fmt.Sprintf("symbol not found: %s", symbol)), nil
	}
	// 模拟场所没有真实历史，不做合成: 平坦的假序列会把 RSI 钉在 100，
	// 策略一接入就在伪造数据上开仓。返回空序列，让策略从实时行情热身
	return ok([]model.Candle{}), nil
}

// ---- 交易 ----

func (s *Simulated) PlaceOrder(ctx context.Context, req model.OrderRequest) (Response[model.Order], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, quote, err := splitSymbol(req.Symbol)
	if err != nil {
		return fail[model.Order](err.Error()), nil
	}
	price, found := s.lastPrice[req.Symbol]
	if !found {
		return fail[model.Order](fmt.Sprintf("symbol not found: %s", req.Symbol)), nil
	}
	if req.Size <= 0 {
		return fail[model.Order]("order size must be positive"), nil
	}

	now := time.Now()
	order := &model.Order{
		OrderRequest: req,
		OrderID:      uuid.NewString(),
		Status:       model.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	switch req.Type {
	case model.OrderTypeMarket:
		// 市价单按当前模拟价立即成交，零手续费，
		// 同步更新两侧余额 (BUY 扣计价币加基础币，SELL 相反)
		cost := req.Size * price
		if req.Side == model.SideBuy {
			if s.available(quote) < cost {
				return fail[model.Order](fmt.Sprintf("insufficient %s balance: need %.8f, have %.8f",
					quote, cost, s.available(quote))), nil
			}
			s.credit(quote, -cost)
			s.credit(base, req.Size)
		} else {
			if s.available(base) < req.Size {
				return fail[model.Order](fmt.Sprintf("insufficient %s balance: need %.8f, have %.8f",
					base, req.Size, s.available(base))), nil
			}
			s.credit(base, -req.Size)
			s.credit(quote, cost)
		}

		order.Status = model.OrderStatusFilled
		order.FilledSize = req.Size
		order.AvgFillPrice = price
		s.fills[order.OrderID] = append(s.fills[order.OrderID], model.Fill{
			FillID:    uuid.NewString(),
			OrderID:   order.OrderID,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Price:     price,
			Size:      req.Size,
			Timestamp: now,
		})
		s.history = append(s.history, order)
		s.logger.Infow("Sim ORDER FILLED",
			"symbol", req.Symbol, "side", req.Side, "size", req.Size, "price", price)

	case model.OrderTypeLimit:
		if req.Price <= 0 {
			return fail[model.Order]("limit order requires a positive price"), nil
		}
		// 限价单不撮合，保持 OPEN 直到被撤销
		order.Status = model.OrderStatusOpen

	default:
		return fail[model.Order](fmt.Sprintf("unsupported order type: %s", req.Type)), nil
	}

	s.orders[order.OrderID] = order
	return ok(*order), nil
}

func (s *Simulated) CancelOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := s.orders[orderID]
	if !found {
		return fail[model.Order](fmt.Sprintf("order not found: %s", orderID)), nil
	}
	if order.Status.IsTerminal() {
		return fail[model.Order](fmt.Sprintf("order %s already terminal: %s", orderID, order.Status)), nil
	}
	order.Status = model.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	s.history = append(s.history, order)
	s.logger.Infow("Sim ORDER CANCELLED", "symbol", symbol, "orderID", orderID)
	return ok(*order), nil
}

func (s *Simulated) GetOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, found := s.orders[orderID]
	if !found {
		return fail[model.Order](fmt.Sprintf("order not found: %s", orderID)), nil
	}
	return ok(*order), nil
}

func (s *Simulated) GetOpenOrders(ctx context.Context, symbol string) (Response[[]model.Order], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []model.Order
	for _, o := range s.orders {
		if o.Status.IsTerminal() {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		open = append(open, *o)
	}
	return ok(open), nil
}

func (s *Simulated) GetOrderHistory(ctx context.Context, symbol string, limit int) (Response[[]model.Order], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var history []model.Order
	for i := len(s.history) - 1; i >= 0; i-- {
		o := s.history[i]
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		history = append(history, *o)
		if limit > 0 && len(history) >= limit {
			break
		}
	}
	return ok(history), nil
}

func (s *Simulated) GetOrderFills(ctx context.Context, orderID string) (Response[[]model.Fill], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fills, found := s.fills[orderID]
	if !found {
		return fail[[]model.Fill](fmt.Sprintf("no fills for order: %s", orderID)), nil
	}
	out := make([]model.Fill, len(fills))
	copy(out, fills)
	return ok(out), nil
}

func (s *Simulated) GetBalances(ctx context.Context) (Response[[]model.Balance], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make([]model.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		balances = append(balances, *b)
	}
	return ok(balances), nil
}

func (s *Simulated) GetBalance(ctx context.Context, currency string) (Response[model.Balance], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, found := s.balances[currency]
	if !found {
		return ok(model.Balance{Currency: currency}), nil
	}
	return ok(*b), nil
}

// available 返回可用余额，未知币种为 0 (调用方需持有锁)
func (s *Simulated) available(currency string) float64 {
	if b, found := s.balances[currency]; found {
		return b.Free
	}
	return 0
}

// credit 调整可用余额，币种不存在时创建 (调用方需持有锁)
func (s *Simulated) credit(currency string, delta float64) {
	b, found := s.balances[currency]
	if !found {
		b = &model.Balance{Currency: currency}
		s.balances[currency] = b
	}
	b.Free += delta
}
