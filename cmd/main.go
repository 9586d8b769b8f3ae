package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-trade-engine/internal/connector"
	"crypto-trade-engine/internal/engine"
	"crypto-trade-engine/internal/feed"
	"crypto-trade-engine/internal/service"
)

func main() {
	service.InitLogger()
	defer service.Logger.Sync()
	logger := service.Sugar()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Fatal("Configuration directory 'config/' not found. Please create it.")
	}
	cfg := service.LoadConfig(configPath)

	// 1. 初始化连接器: 纸面模式用内存模拟场所，实盘模式用 Okx REST
	var conn connector.Connector
	if cfg.Engine.EnablePaperTrading {
		sim := connector.NewSimulated(connector.SimulatedConfig{
			InitialBalances: cfg.Paper.InitialBalances,
			InitialPrices:   cfg.Paper.InitialPrices,
			TickInterval:    time.Second,
			Volatility:      0.001,
		}, logger)
		sim.Start()
		defer sim.Stop()
		conn = sim
	} else {
		conn = connector.NewOkx(connector.OkxConfig{
			APIKey:     cfg.Exchange.APIKey,
			SecretKey:  cfg.Exchange.SecretKey,
			Passphrase: cfg.Exchange.Passphrase,
			RESTURL:    cfg.Exchange.RESTURL,
		}, logger)
	}

	// 2. 初始化引擎并注册全部配置的策略
	eng := engine.New(cfg.Engine, logger)

	var symbols []string
	seen := make(map[string]bool)
	timeframe := "1m"
	for _, sc := range cfg.Strategies {
		if !sc.Active {
			continue
		}
		if err := eng.AddStrategy(sc, conn); err != nil {
			logger.Errorw("Failed to add strategy", "strategy", sc.ID, "type", sc.Type, "error", err)
			continue
		}
		if sc.Timeframe != "" {
			timeframe = sc.Timeframe
		}
		for _, s := range sc.Symbols {
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		logger.Fatal("No active strategies configured")
	}

	if err := eng.Start(); err != nil {
		logger.Fatalw("Failed to start engine", "error", err)
	}

	// 3. 消费引擎事件 (持久化/推送由外部协作方接走，这里仅落日志)
	go func() {
		for evt := range eng.Events() {
			logger.Infow("Engine event", "type", evt.Type, "strategy", evt.StrategyID)
		}
	}()

	// 4. 启动行情接入，把完成的 K 线灌给引擎
	interval, err := service.ParseIntervalDuration(timeframe)
	if err != nil {
		logger.Fatalw("Invalid timeframe", "timeframe", timeframe, "error", err)
	}
	marketFeed := feed.NewFeed(cfg.Exchange.WSURL, symbols, interval, logger)
	go marketFeed.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case candle := <-marketFeed.Candles():
			eng.AddMarketData(candle.Symbol, candle)
		case <-sigCh:
			logger.Info("Shutdown signal received")
			marketFeed.Stop()
			if err := eng.Stop(); err != nil {
				logger.Errorw("Engine stop failed", "error", err)
			}
			return
		}
	}
}
