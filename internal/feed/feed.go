// Package feed 通过 WebSocket 订阅场所公共行情，
// 把逐笔成交聚合成固定周期的 K 线后推给引擎
package feed

import (
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"crypto-trade-engine/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Tick 最小粒度的市场数据 (成交或价格快照)
type Tick struct {
	Symbol    string
	Timestamp int64 // 毫秒时间戳
	Price     float64
	Volume    float64 // 0 表示价格快照
}

// wsEnvelope Okx V5 公共频道的通用响应结构
type wsEnvelope struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"`
	Event string          `json:"event"`
}

// wsTrade trades 频道数据
type wsTrade struct {
	Timestamp string `json:"ts"`
	Price     string `json:"px"`
	Size      string `json:"sz"`
	InstID    string `json:"instId"`
}

// wsTicker tickers 频道数据
type wsTicker struct {
	Last      string `json:"last"`
	Timestamp string `json:"ts"`
	InstID    string `json:"instId"`
}

// Feed 行情接入器: 一条连接订阅全部交易对，聚合后输出已完成的 K 线
type Feed struct {
	wsURL       string
	symbols     []string
	interval    time.Duration
	aggregators map[string]*candleAggregator
	candleCh    chan model.Candle
	stopCh      chan struct{}
	logger      *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn // 当前连接，Stop 时关闭以解除阻塞中的读
}

// NewFeed 构造行情接入器
func NewFeed(wsURL string, symbols []string, interval time.Duration, logger *zap.SugaredLogger) *Feed {
	f := &Feed{
		wsURL:       wsURL,
		symbols:     symbols,
		interval:    interval,
		aggregators: make(map[string]*candleAggregator),
		candleCh:    make(chan model.Candle, 256),
		stopCh:      make(chan struct{}),
		logger:      logger,
	}
	for _, s := range symbols {
		f.aggregators[s] = newCandleAggregator(s, interval, f.candleCh, logger)
	}
	return f
}

// Candles 返回已完成 K 线的输出通道
func (f *Feed) Candles() <-chan model.Candle { return f.candleCh }

// Stop 停止接入器，幂等
// 主动关闭当前连接，否则读循环会一直阻塞在 ReadMessage 上等场所发帧
func (f *Feed) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
}

// Start 建立连接、订阅并进入读循环，读错误后延时重连
func (f *Feed) Start() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}
		if err := f.connectAndRead(); err != nil {
			f.logger.Warnw("Feed connection lost, reconnecting...", "error", err)
			select {
			case <-f.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (f *Feed) connectAndRead() error {
	u, err := url.Parse(f.wsURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	select {
	case <-f.stopCh:
		// Stop 在拨号期间到达
		f.mu.Unlock()
		conn.Close()
		return nil
	default:
	}
	f.conn = conn
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
	}()

	var args []map[string]string
	for _, symbol := range f.symbols {
		args = append(args, map[string]string{"channel": "trades", "instId": symbol})
		args = append(args, map[string]string{"channel": "tickers", "instId": symbol})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return err
	}
	f.logger.Infow("Feed subscribed", "symbols", f.symbols)

	for {
		select {
		case <-f.stopCh:
			return nil
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
				// Stop 关闭连接导致的读错误不算连接丢失
				return nil
			default:
			}
			return err
		}
		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}
	// 忽略订阅确认等事件消息
	if env.Event != "" || len(env.Data) == 0 {
		return
	}
	agg, found := f.aggregators[env.Arg.InstID]
	if !found {
		return
	}

	switch env.Arg.Channel {
	case "trades":
		var trades []wsTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			f.logger.Warnw("Trade data unmarshal error", "error", err)
			return
		}
		for _, t := range trades {
			tick, err := parseTick(t.InstID, t.Timestamp, t.Price, t.Size)
			if err != nil {
				continue
			}
			agg.process(tick)
		}
	case "tickers":
		var tickers []wsTicker
		if err := json.Unmarshal(env.Data, &tickers); err != nil {
			return
		}
		if len(tickers) == 0 {
			return
		}
		// 价格快照: volume 为 0，只用于维持价格连续性
		tick, err := parseTick(tickers[0].InstID, tickers[0].Timestamp, tickers[0].Last, "0")
		if err != nil {
			return
		}
		agg.process(tick)
	}
}

func parseTick(symbol, ts, price, size string) (Tick, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return Tick{}, err
	}
	v, err := strconv.ParseFloat(size, 64)
	if err != nil {
		return Tick{}, err
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Tick{}, err
	}
	return Tick{Symbol: symbol, Timestamp: t, Price: p, Volume: v}, nil
}
