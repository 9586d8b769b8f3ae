package model

import "time"

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET" // 市价单
	OrderTypeLimit  OrderType = "LIMIT"  // 限价单
)

// TimeInForce 订单有效期策略
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC" // 成交为止
	TIFImmediate      TimeInForce = "IOC" // 立即成交，剩余撤销
	TIFFillOrKill     TimeInForce = "FOK" // 全部成交或立即撤销
)

// OrderStatus 订单状态机: PENDING -> OPEN -> {FILLED | CANCELLED | REJECTED | EXPIRED}
// 终态是单向的，进入终态后订单从活跃订单表移除且不再回来
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// IsTerminal 判断订单是否处于终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderRequest 由策略从已批准的信号构造，不单独持久化，总是转化为 Order
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Size          float64
	Price         float64 // 限价单价格，市价单为 0
	ClientOrderID string  // 客户端自分配 ID
	TimeInForce   TimeInForce
}

// Order 包含 OrderRequest 的全部字段，外加交易所分配的信息
// 在进入终态前由交易引擎的活跃订单表独占持有
type Order struct {
	OrderRequest

	OrderID      string // 交易所分配的订单 ID
	StrategyID   string // 产生该订单的策略
	Status       OrderStatus
	FilledSize   float64
	AvgFillPrice float64
	Fee          float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
