package strategy

import (
	"fmt"
	"sort"
	"sync"

	"crypto-trade-engine/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Builder 根据配置构造一个具体策略
type Builder func(cfg model.StrategyConfig, logger *zap.SugaredLogger) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// Register 按类型标签注册策略构造器
// 新增策略类型只需注册新的 Builder，调用方不需要改动
func Register(typeTag string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeTag] = b
}

// RegisteredTypes 返回已注册的全部类型标签 (排序后)，用于配置校验和日志
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New 按配置的类型标签分派构造策略，未知标签是构造期错误
func New(cfg model.StrategyConfig, logger *zap.SugaredLogger) (Strategy, error) {
	registryMu.RLock()
	builder, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy type %q (registered: %v)", cfg.Type, RegisteredTypes())
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("strategy %s: at least one symbol is required", cfg.ID)
	}
	return builder(cfg, logger)
}

func init() {
	Register(TypeRSIThreshold, newRSIStrategy)
	Register(TypeMACDCrossover, newMACDStrategy)
}
