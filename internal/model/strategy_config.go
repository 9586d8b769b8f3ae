package model

// StrategyConfig 策略的声明式配置，由持久化层持有
// 引擎中每个运行的策略实例只保留一份只读工作副本
type StrategyConfig struct {
	ID         string             `mapstructure:"id"`
	Name       string             `mapstructure:"name"`
	Type       string             `mapstructure:"type"`      // 策略类型标签，工厂据此分派
	Symbols    []string           `mapstructure:"symbols"`   // 目标交易对
	Timeframe  string             `mapstructure:"timeframe"` // K 线周期，例如 "5m"
	Params     map[string]float64 `mapstructure:"params"`    // 策略参数
	RiskParams map[string]float64 `mapstructure:"riskParams"`
	Active     bool               `mapstructure:"active"`
}

// HasSymbol 判断该策略是否订阅了指定交易对
func (c StrategyConfig) HasSymbol(symbol string) bool {
	for _, s := range c.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Param 读取策略参数，缺失时返回默认值
func (c StrategyConfig) Param(key string, def float64) float64 {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

// RiskParam 读取风控参数，缺失时返回默认值
func (c StrategyConfig) RiskParam(key string, def float64) float64 {
	if v, ok := c.RiskParams[key]; ok {
		return v
	}
	return def
}
