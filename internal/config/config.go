package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Oracle   Oracle   `mapstructure:"oracle"`
	Paper    Paper    `mapstructure:"paper"`
	Trader   Trader   `mapstructure:"trader"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the journal database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Oracle holds the configuration for the price oracle.
// Provider selects the implementation: "http" polls a quote endpoint,
// "static" serves the fixed static_prices map (useful for offline runs).
type Oracle struct {
	Provider       string            `mapstructure:"provider"`
	BaseURL        string            `mapstructure:"base_url"`
	ApiKey         string            `mapstructure:"api_key"`
	TimeoutMs      int               `mapstructure:"timeout_ms"`
	RateLimit      float64           `mapstructure:"rate_limit"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`
	StaticPrices   map[string]string `mapstructure:"static_prices"`
}

// Paper holds the configuration for the paper-trading ledger.
// Fractions are expressed as decimals: 0.10 means 10%.
type Paper struct {
	Name                 string  `mapstructure:"name"`
	InitialCapital       float64 `mapstructure:"initial_capital"`
	CommissionRate       float64 `mapstructure:"commission_rate"`
	MaxPositionFraction  float64 `mapstructure:"max_position_fraction"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	MaxDailyLossFraction float64 `mapstructure:"max_daily_loss_fraction"`
}

// Trader holds the configuration for the tick runner.
type Trader struct {
	Symbols          []string `mapstructure:"symbols"`
	TickInterval     int      `mapstructure:"tick_interval"`
	SnapshotInterval int      `mapstructure:"snapshot_interval"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("database.dsn", "paper_trader.db")
	viper.SetDefault("oracle.provider", "http")
	viper.SetDefault("oracle.timeout_ms", 300) // price lookups must stay bounded
	viper.SetDefault("oracle.rate_limit", 20)  // requests per second
	viper.SetDefault("oracle.rate_limit_burst", 5)
	viper.SetDefault("paper.name", "paper-account")
	viper.SetDefault("paper.initial_capital", 100000)
	viper.SetDefault("paper.commission_rate", 0.001)
	viper.SetDefault("paper.max_position_fraction", 0.10)
	viper.SetDefault("paper.max_consecutive_losses", 3)
	viper.SetDefault("paper.max_daily_loss_fraction", 0.02)
	viper.SetDefault("trader.tick_interval", 15)     // seconds
	viper.SetDefault("trader.snapshot_interval", 20) // ticks between snapshot saves

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
