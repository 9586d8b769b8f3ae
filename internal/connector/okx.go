package connector

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-trade-engine/internal/model"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// OkxConfig 定义 Okx 连接器所需的全部配置
type OkxConfig struct {
	APIKey     string
	SecretKey  string // base64 编码的密钥，签名前解码
	Passphrase string
	RESTURL    string // 例如 https://www.okx.com
}

// Okx 真实场所连接器: 全部操作是同步的 HTTPS 请求/响应，不需要长连接
// 私有请求用账户密钥对 timestamp+method+path+body 做 HMAC-SHA256 签名
type Okx struct {
	cfg        OkxConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
	now        func() time.Time // 测试时可替换
}

// NewOkx 构造 Okx 连接器
func NewOkx(cfg OkxConfig, logger *zap.SugaredLogger) *Okx {
	return &Okx{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

func (o *Okx) Name() string { return "okx" }

// sign 计算私有请求签名: base64(HMAC-SHA256(timestamp+method+path+body))
// 密钥先做 base64 解码再参与运算
func (o *Okx) sign(timestamp, method, path, body string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(o.cfg.SecretKey)
	if err != nil {
		return "", fmt.Errorf("okx: secret key is not valid base64: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// doRequest 发送请求并返回原始响应体
// 返回的 error 只代表传输层故障；场所级错误码由调用方从响应体里判定
func (o *Okx) doRequest(ctx context.Context, method, path string, body []byte, private bool) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.cfg.RESTURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if private {
		timestamp := o.now().UTC().Format("2006-01-02T15:04:05.000Z")
		signature, err := o.sign(timestamp, method, path, string(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("OK-ACCESS-KEY", o.cfg.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", signature)
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.cfg.Passphrase)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// venueError 检查响应的业务错误码，code != "0" 即为场所级失败
func venueError(raw []byte) (string, bool) {
	code := gjson.GetBytes(raw, "code").String()
	if code == "0" || code == "" {
		return "", false
	}
	msg := gjson.GetBytes(raw, "msg").String()
	if msg == "" {
		msg = "venue error code " + code
	}
	return msg, true
}

// mapOrderStatus 将 Okx 状态词汇映射到规范状态枚举
func mapOrderStatus(state string) model.OrderStatus {
	switch state {
	case "live", "partially_filled":
		return model.OrderStatusOpen
	case "filled":
		return model.OrderStatusFilled
	case "canceled", "mmp_canceled":
		return model.OrderStatusCancelled
	case "rejected":
		return model.OrderStatusRejected
	case "expired":
		return model.OrderStatusExpired
	default:
		return model.OrderStatusPending
	}
}

// mapTimeframe K 线周期到 Okx bar 参数 ("1h" -> "1H")
func mapTimeframe(timeframe string) string {
	if len(timeframe) < 2 {
		return timeframe
	}
	unit := timeframe[len(timeframe)-1]
	if unit == 'h' || unit == 'd' || unit == 'w' {
		return timeframe[:len(timeframe)-1] + strings.ToUpper(string(unit))
	}
	return timeframe
}

// parseOrder 解析 Okx 订单对象
func parseOrder(v gjson.Result) model.Order {
	createdMs := v.Get("cTime").Int()
	updatedMs := v.Get("uTime").Int()
	return model.Order{
		OrderRequest: model.OrderRequest{
			Symbol:        v.Get("instId").String(),
			Side:          model.Side(strings.ToUpper(v.Get("side").String())),
			Type:          model.OrderType(strings.ToUpper(v.Get("ordType").String())),
			Size:          v.Get("sz").Float(),
			Price:         v.Get("px").Float(),
			ClientOrderID: v.Get("clOrdId").String(),
			TimeInForce:   model.TIFGoodTillCancel,
		},
		OrderID:      v.Get("ordId").String(),
		Status:       mapOrderStatus(v.Get("state").String()),
		FilledSize:   v.Get("accFillSz").Float(),
		AvgFillPrice: v.Get("avgPx").Float(),
		Fee:          -v.Get("fee").Float(), // Okx 手续费为负数
		CreatedAt:    time.UnixMilli(createdMs),
		UpdatedAt:    time.UnixMilli(updatedMs),
	}
}

// ---- 市场数据 ----

func (o *Okx) GetVenueInfo(ctx context.Context) (Response[model.VenueInfo], error) {
	raw, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/time", nil, false)
	if err != nil {
		return Response[model.VenueInfo]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.VenueInfo](msg), nil
	}
	ms := gjson.GetBytes(raw, "data.0.ts").Int()
	return ok(model.VenueInfo{Name: "okx", ServerTime: time.UnixMilli(ms)}), nil
}

func (o *Okx) GetTradingPairs(ctx context.Context) (Response[[]model.TradingPair], error) {
	raw, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments?instType=SPOT", nil, false)
	if err != nil {
		return Response[[]model.TradingPair]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.TradingPair](msg), nil
	}
	var pairs []model.TradingPair
	gjson.GetBytes(raw, "data").ForEach(func(_, v gjson.Result) bool {
		pairs = append(pairs, model.TradingPair{
			Symbol:   v.Get("instId").String(),
			Base:     v.Get("baseCcy").String(),
			Quote:    v.Get("quoteCcy").String(),
			MinSize:  v.Get("minSz").Float(),
			TickSize: v.Get("tickSz").Float(),
			Active:   v.Get("state").String() == "live",
		})
		return true
	})
	return ok(pairs), nil
}

func (o *Okx) GetTicker(ctx context.Context, symbol string) (Response[model.Ticker], error) {
	raw, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker?instId="+symbol, nil, false)
	if err != nil {
		return Response[model.Ticker]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.Ticker](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0")
	if !v.Exists() {
		return fail[model.Ticker](fmt.Sprintf("symbol not found: %s", symbol)), nil
	}
	return ok(model.Ticker{
		Symbol:    symbol,
		Last:      v.Get("last").Float(),
		Bid:       v.Get("bidPx").Float(),
		Ask:       v.Get("askPx").Float(),
		High24h:   v.Get("high24h").Float(),
		Low24h:    v.Get("low24h").Float(),
		Volume24h: v.Get("vol24h").Float(),
		Timestamp: time.UnixMilli(v.Get("ts").Int()),
	}), nil
}

func (o *Okx) GetOrderBook(ctx context.Context, symbol string, depth int) (Response[model.OrderBook], error) {
	if depth <= 0 {
		depth = 20
	}
	path := fmt.Sprintf("/api/v5/market/books?instId=%s&sz=%d", symbol, depth)
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return Response[model.OrderBook]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.OrderBook](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0")
	book := model.OrderBook{Symbol: symbol, Timestamp: time.UnixMilli(v.Get("ts").Int())}
	parseLevels := func(key string) []model.BookLevel {
		var levels []model.BookLevel
		v.Get(key).ForEach(func(_, level gjson.Result) bool {
			arr := level.Array()
			if len(arr) >= 2 {
				levels = append(levels, model.BookLevel{Price: arr[0].Float(), Size: arr[1].Float()})
			}
			return true
		})
		return levels
	}
	book.Bids = parseLevels("bids")
	book.Asks = parseLevels("asks")
	return ok(book), nil
}

func (o *Okx) GetRecentTrades(ctx context.Context, symbol string, limit int) (Response[[]model.PublicTrade], error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/api/v5/market/trades?instId=%s&limit=%d", symbol, limit)
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return Response[[]model.PublicTrade]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.PublicTrade](msg), nil
	}
	var trades []model.PublicTrade
	gjson.GetBytes(raw, "data").ForEach(func(_, v gjson.Result) bool {
		trades = append(trades, model.PublicTrade{
			TradeID:   v.Get("tradeId").String(),
			Symbol:    symbol,
			Price:     v.Get("px").Float(),
			Size:      v.Get("sz").Float(),
			Side:      model.Side(strings.ToUpper(v.Get("side").String())),
			Timestamp: time.UnixMilli(v.Get("ts").Int()),
		})
		return true
	})
	return ok(trades), nil
}

func (o *Okx) GetCandles(ctx context.Context, symbol, timeframe string, limit int) (Response[[]model.Candle], error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", symbol, mapTimeframe(timeframe), limit)
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return Response[[]model.Candle]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.Candle](msg), nil
	}
	// Okx 返回最新在前，翻转为时间升序
	rows := gjson.GetBytes(raw, "data").Array()
	candles := make([]model.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		arr := rows[i].Array()
		if len(arr) < 6 {
			continue
		}
		candles = append(candles, model.Candle{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(arr[0].Int()),
			Open:      arr[1].Float(),
			High:      arr[2].Float(),
			Low:       arr[3].Float(),
			Close:     arr[4].Float(),
			Volume:    arr[5].Float(),
		})
	}
	return ok(candles), nil
}

// ---- 交易 ----

func (o *Okx) PlaceOrder(ctx context.Context, req model.OrderRequest) (Response[model.Order], error) {
	payload := map[string]string{
		"instId":  req.Symbol,
		"tdMode":  "cash",
		"side":    strings.ToLower(string(req.Side)),
		"ordType": strings.ToLower(string(req.Type)),
		"sz":      strconv.FormatFloat(req.Size, 'f', -1, 64),
		"clOrdId": strings.ReplaceAll(req.ClientOrderID, "-", ""),
	}
	if req.Type == model.OrderTypeLimit {
		payload["px"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	} else {
		// 市价单按基础币数量下单
		payload["tgtCcy"] = "base_ccy"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response[model.Order]{}, err
	}

	raw, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", body, true)
	if err != nil {
		return Response[model.Order]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.Order](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0")
	// 下单应答只带订单号，回查一次拿完整状态
	ordID := v.Get("ordId").String()
	if v.Get("sCode").String() != "0" {
		return fail[model.Order](v.Get("sMsg").String()), nil
	}
	getResp, err := o.GetOrder(ctx, req.Symbol, ordID)
	if err != nil || !getResp.Success {
		// 回查失败时返回 PENDING 状态的最小订单，由监控循环后续刷新
		now := time.Now()
		return ok(model.Order{
			OrderRequest: req,
			OrderID:      ordID,
			Status:       model.OrderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}), nil
	}
	order := getResp.Data
	order.ClientOrderID = req.ClientOrderID
	return ok(order), nil
}

func (o *Okx) CancelOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error) {
	body, err := json.Marshal(map[string]string{"instId": symbol, "ordId": orderID})
	if err != nil {
		return Response[model.Order]{}, err
	}
	raw, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", body, true)
	if err != nil {
		return Response[model.Order]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.Order](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0")
	if v.Get("sCode").String() != "0" {
		return fail[model.Order](v.Get("sMsg").String()), nil
	}
	return o.GetOrder(ctx, symbol, orderID)
}

func (o *Okx) GetOrder(ctx context.Context, symbol, orderID string) (Response[model.Order], error) {
	path := fmt.Sprintf("/api/v5/trade/order?instId=%s&ordId=%s", symbol, orderID)
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return Response[model.Order]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.Order](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0")
	if !v.Exists() {
		return fail[model.Order](fmt.Sprintf("order not found: %s", orderID)), nil
	}
	return ok(parseOrder(v)), nil
}

func (o *Okx) GetOpenOrders(ctx context.Context, symbol string) (Response[[]model.Order], error) {
	path := "/api/v5/trade/orders-pending"
	if symbol != "" {
		path += "?instId=" + symbol
	}
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return Response[[]model.Order]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.Order](msg), nil
	}
	var orders []model.Order
	gjson.GetBytes(raw, "data").ForEach(func(_, v gjson.Result) bool {
		orders = append(orders, parseOrder(v))
		return true
	})
	return ok(orders), nil
}

func (o *Okx) GetOrderHistory(ctx context.Context, symbol string, limit int) (Response[[]model.Order], error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/api/v5/trade/orders-history?instType=SPOT&limit=%d", limit)
	if symbol != "" {
		path += "&instId=" + symbol
	}
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return Response[[]model.Order]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.Order](msg), nil
	}
	var orders []model.Order
	gjson.GetBytes(raw, "data").ForEach(func(_, v gjson.Result) bool {
		orders = append(orders, parseOrder(v))
		return true
	})
	return ok(orders), nil
}

func (o *Okx) GetOrderFills(ctx context.Context, orderID string) (Response[[]model.Fill], error) {
	path := "/api/v5/trade/fills?ordId=" + orderID
	raw, err := o.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return Response[[]model.Fill]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.Fill](msg), nil
	}
	var fills []model.Fill
	gjson.GetBytes(raw, "data").ForEach(func(_, v gjson.Result) bool {
		fills = append(fills, model.Fill{
			FillID:    v.Get("tradeId").String(),
			OrderID:   v.Get("ordId").String(),
			Symbol:    v.Get("instId").String(),
			Side:      model.Side(strings.ToUpper(v.Get("side").String())),
			Price:     v.Get("fillPx").Float(),
			Size:      v.Get("fillSz").Float(),
			Fee:       -v.Get("fee").Float(),
			Timestamp: time.UnixMilli(v.Get("ts").Int()),
		})
		return true
	})
	return ok(fills), nil
}

func (o *Okx) GetBalances(ctx context.Context) (Response[[]model.Balance], error) {
	raw, err := o.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", nil, true)
	if err != nil {
		return Response[[]model.Balance]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[[]model.Balance](msg), nil
	}
	var balances []model.Balance
	gjson.GetBytes(raw, "data.0.details").ForEach(func(_, v gjson.Result) bool {
		balances = append(balances, model.Balance{
			Currency: v.Get("ccy").String(),
			Free:     v.Get("availBal").Float(),
			Locked:   v.Get("frozenBal").Float(),
		})
		return true
	})
	return ok(balances), nil
}

func (o *Okx) GetBalance(ctx context.Context, currency string) (Response[model.Balance], error) {
	raw, err := o.doRequest(ctx, http.MethodGet, "/api/v5/account/balance?ccy="+currency, nil, true)
	if err != nil {
		return Response[model.Balance]{}, err
	}
	if msg, bad := venueError(raw); bad {
		return fail[model.Balance](msg), nil
	}
	v := gjson.GetBytes(raw, "data.0.details.0")
	if !v.Exists() {
		return ok(model.Balance{Currency: currency}), nil
	}
	return ok(model.Balance{
		Currency: v.Get("ccy").String(),
		Free:     v.Get("availBal").Float(),
		Locked:   v.Get("frozenBal").Float(),
	}), nil
}
