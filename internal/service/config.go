package service

import (
	"log"

	"crypto-trade-engine/internal/engine"
	"crypto-trade-engine/internal/model"

	"github.com/spf13/viper"
)

// ExchangeConfig 定义了交易所的连接信息
type ExchangeConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"apiKey"`
	SecretKey  string `mapstructure:"secretKey"`
	Passphrase string `mapstructure:"passphrase"` // Okx 独有
	WSURL      string `mapstructure:"wsUrl"`
	RESTURL    string `mapstructure:"restUrl"`
}

// PaperConfig 纸面交易模式下模拟场所的初始状态
type PaperConfig struct {
	InitialBalances map[string]float64 `mapstructure:"initialBalances"`
	InitialPrices   map[string]float64 `mapstructure:"initialPrices"`
}

// Config 顶层配置
type Config struct {
	Exchange   ExchangeConfig         `mapstructure:"exchange"`
	Engine     engine.Config          `mapstructure:"engine"`
	Paper      PaperConfig            `mapstructure:"paper"`
	Strategies []model.StrategyConfig `mapstructure:"strategies"`
}

// GlobalConfig 存储加载后的全局配置
var GlobalConfig Config

// LoadConfig 读取并解析配置文件
func LoadConfig(configPath string) *Config {
	// 设置配置文件的名称、类型和路径
	viper.SetConfigName("config") // 文件名是 config
	viper.SetConfigType("yaml")   // 文件类型是 yaml
	viper.AddConfigPath(configPath)

	// 查找并读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("Config file not found: %s", err)
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	// 将配置绑定到结构体
	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode config into struct: %s", err)
	}

	return &GlobalConfig
}
