// Package connector 定义引擎与交易场所之间的统一契约
// 每个操作返回统一的成功/错误信封: 场所级失败 (拒单、找不到交易对)
// 写入信封，从不作为 Go error 抛出；error 只承载传输层故障
package connector

import (
	"context"
	"time"

	"crypto-trade-engine/internal/model"
)

// Response 统一响应信封
type Response[T any] struct {
	Success   bool
	Data      T
	Error     string
	Timestamp time.Time
}

// ok 构造成功信封
func ok[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data, Timestamp: time.Now()}
}

// fail 构造场所级失败信封
func fail[T any](msg string) Response[T] {
	return Response[T]{Success: false, Error: msg, Timestamp: time.Now()}
}

// Connector 交易场所连接器
// 市场数据和交易两族操作，由模拟场所和真实场所各实现一次
type Connector interface {
	Name() string

	// ---- 市场数据 ----
	GetVenueInfo(ctx context.Context) (Response[model.VenueInfo], error)
	GetTradingPairs(ctx context.Context) (Response[[]model.TradingPair], error)
	GetTicker(ctx context.Context, symbol string) (Response[model.Ticker], error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (Response[model.OrderBook], error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) (Response[[]model.PublicTrade], error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) (Response[[]model.Candle], error)

	// ---- 交易 ----
	PlaceOrder(ctx context.Context, req model.OrderRequest) (Response[model.Order], error)
	CancelOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error)
	GetOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error)
	GetOpenOrders(ctx context.Context, symbol string) (Response[[]model.Order], error)
	GetOrderHistory(ctx context.Context, symbol string, limit int) (Response[[]model.Order], error)
	GetOrderFills(ctx context.Context, orderID string) (Response[[]model.Fill], error)
	GetBalances(ctx context.Context) (Response[[]model.Balance], error)
	GetBalance(ctx context.Context, currency string) (Response[model.Balance], error)
}
