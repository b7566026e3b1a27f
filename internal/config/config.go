package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Yield      YieldConfig      `mapstructure:"yield"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string   `mapstructure:"level"`
	Encoding          string   `mapstructure:"encoding"`
	Development       bool     `mapstructure:"development"`
	Sampling          bool     `mapstructure:"sampling"`
	DisableCaller     bool     `mapstructure:"disable_caller"`
	DisableStacktrace bool     `mapstructure:"disable_stacktrace"`
	OutputPaths       []string `mapstructure:"output_paths"`
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	YieldRetry string `mapstructure:"yield_retry"`
	Keeper     string `mapstructure:"keeper"`
}

type AuthConfig struct {
	Disabled bool          `mapstructure:"disabled"`
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type OracleConfig struct {
	// Provider is "hermes", "hermes_stream" or "static".
	Provider         string                 `mapstructure:"provider"`
	HermesURL        string                 `mapstructure:"hermes_url"`
	StreamURL        string                 `mapstructure:"stream_url"`
	Timeout          time.Duration          `mapstructure:"timeout"`
	MaxAge           time.Duration          `mapstructure:"max_age"`
	MaxConfidenceBps uint64                 `mapstructure:"max_confidence_bps"`
	Feeds            []string               `mapstructure:"feeds"`
	Static           map[string]StaticPrice `mapstructure:"static"`
}

type StaticPrice struct {
	Price      int64  `mapstructure:"price"`
	Confidence uint64 `mapstructure:"confidence"`
	Exponent   int32  `mapstructure:"exponent"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type YieldConfig struct {
	// Kind is one of "none", "marinade", "marginfi", "kamino".
	Kind     string         `mapstructure:"kind" json:"kind"`
	Marinade MarinadeConfig `mapstructure:"marinade" json:"marinade,omitempty"`
	Marginfi AccrualConfig  `mapstructure:"marginfi" json:"marginfi,omitempty"`
	Kamino   AccrualConfig  `mapstructure:"kamino" json:"kamino,omitempty"`
}

type MarinadeConfig struct {
	PriceURL string        `mapstructure:"price_url" json:"price_url,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
}

type AccrualConfig struct {
	// APY is a decimal string, e.g. "0.065".
	APY string `mapstructure:"apy" json:"apy,omitempty"`
}

type SettlementConfig struct {
	ForwardBps     uint64 `mapstructure:"forward_bps"`
	KeeperIdentity string `mapstructure:"keeper_identity"`
	RetryBatch     int    `mapstructure:"retry_batch"`
	KeeperBatch    int    `mapstructure:"keeper_batch"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.name", "battled")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.yield_retry", "@every 1m")
	v.SetDefault("cron.keeper", "@every 30s")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "memewars")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("oracle.provider", "hermes")
	v.SetDefault("oracle.hermes_url", "https://hermes.pyth.network")
	v.SetDefault("oracle.stream_url", "wss://hermes.pyth.network/ws")
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.max_age", "60s")
	v.SetDefault("oracle.max_confidence_bps", 500)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5s")
	v.SetDefault("yield.kind", "none")
	v.SetDefault("yield.marinade.price_url", "https://api.marinade.finance/msol/price_sol")
	v.SetDefault("yield.marinade.timeout", "10s")
	v.SetDefault("yield.marginfi.apy", "0.065")
	v.SetDefault("yield.kamino.apy", "0.08")
	v.SetDefault("settlement.forward_bps", 0)
	v.SetDefault("settlement.keeper_identity", "")
	v.SetDefault("settlement.retry_batch", 50)
	v.SetDefault("settlement.keeper_batch", 20)
	v.SetDefault("notify.telegram.enabled", false)

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
