package model

import "time"

// Candle 代表一根已完成的 K 线（价格观测值），由外部数据源产生，不可变
type Candle struct {
	Symbol    string  // 所属交易对，例如 "BTC-USDT"
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker 代表交易所返回的最新行情快照
type Ticker struct {
	Symbol    string
	Last      float64 // 最新成交价
	Bid       float64
	Ask       float64
	High24h   float64
	Low24h    float64
	Volume24h float64
	Timestamp time.Time
}

// BookLevel 订单簿的单个档位
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook 订单簿快照（买卖双边，按价格优先排序）
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// PublicTrade 公共成交记录
type PublicTrade struct {
	TradeID   string
	Symbol    string
	Price     float64
	Size      float64
	Side      Side // 主动成交方向
	Timestamp time.Time
}

// TradingPair 交易对元信息
type TradingPair struct {
	Symbol   string // 例如 "BTC-USDT"
	Base     string // 例如 "BTC"
	Quote    string // 例如 "USDT"
	MinSize  float64
	TickSize float64
	Active   bool
}

// VenueInfo 交易所/场所元信息
type VenueInfo struct {
	Name       string
	ServerTime time.Time
}

// Balance 账户单币种余额
type Balance struct {
	Currency string
	Free     float64 // 可用余额
	Locked   float64 // 冻结余额（挂单占用）
}

// Total 返回总余额 (可用 + 冻结)
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// Fill 订单的单笔成交明细
type Fill struct {
	FillID    string
	OrderID   string
	Symbol    string
	Side      Side
	Price     float64
	Size      float64
	Fee       float64
	Timestamp time.Time
}
