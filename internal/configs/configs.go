package configs

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/songzhibin97/callbattle/internal/risk"
)

type Config struct {
	// 基础配置
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`

	Database Database `mapstructure:"database"`

	// 行情数据源
	MarketData MarketDataConfig `mapstructure:"market_data"`

	// 风险控制参数
	RiskParams risk.RiskParameters `mapstructure:"risk"`

	// AI 解说参数
	AIConfig AIConfig `mapstructure:"ai"`

	Cron   CronConfig   `mapstructure:"cron"`
	Battle BattleConfig `mapstructure:"battle"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type Database struct {
	DSN string `mapstructure:"dsn"` // 为空时使用内存存储
}

type MarketDataConfig struct {
	DexScreenerURL string        `mapstructure:"dexscreener_url"`
	CoinGeckoURL   string        `mapstructure:"coingecko_url"`
	BinanceURL     string        `mapstructure:"binance_url"`
	Chain          string        `mapstructure:"chain"`      // 只保留该链上的代币
	Timeout        time.Duration `mapstructure:"timeout"`    // 单次请求超时
	BatchSize      int           `mapstructure:"batch_size"` // 批量估值每批地址数
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`  // AI服务API密钥
	BaseURL string        `mapstructure:"base_url"` // 兼容 OpenAI 的接口地址
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CronConfig holds robfig/cron specs with a seconds field.
type CronConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Cycle              string        `mapstructure:"cycle"`
	Prices             string        `mapstructure:"prices"`
	CloseRound         string        `mapstructure:"close_round"`
	ResolvePredictions string        `mapstructure:"resolve_predictions"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
}

type BattleConfig struct {
	Seed uint64 `mapstructure:"seed"` // 0 表示按时间播种
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BATTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("database.dsn", "")

	v.SetDefault("market_data.dexscreener_url", "https://api.dexscreener.com")
	v.SetDefault("market_data.coingecko_url", "https://api.coingecko.com")
	v.SetDefault("market_data.binance_url", "https://api.binance.com")
	v.SetDefault("market_data.chain", "solana")
	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("market_data.batch_size", 30)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.timeout", "8s")

	defaults := risk.DefaultRiskParameters()
	v.SetDefault("risk.min_market_cap", defaults.MinMarketCap)
	v.SetDefault("risk.recency_window", defaults.RecencyWindow.String())

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.cycle", "0 */5 * * * *")
	v.SetDefault("cron.prices", "0 * * * * *")
	v.SetDefault("cron.close_round", "30 */5 * * * *")
	v.SetDefault("cron.resolve_predictions", "0 59 23 * * *")
	v.SetDefault("cron.job_timeout", "2m")

	v.SetDefault("battle.seed", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
