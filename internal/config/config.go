package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jask/payledger/internal/gateway"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Gateway  GatewayConfig
	Fees     FeesConfig
	Redis    RedisConfig
	Log      LogConfig
	UI       UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path       string
	Migrations string
}

type ServerConfig struct {
	Addr string
}

// GatewayConfig holds payment provider settings. Either an API key or OAuth
// client credentials must be available at startup.
type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKeyEnv     string        `mapstructure:"api_key_env"`
	APIKey        string        `mapstructure:"api_key"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	TokenURL      string        `mapstructure:"token_url"`
	Testmode      bool          `mapstructure:"testmode"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	Currency      string        `mapstructure:"currency"`
}

type FeesConfig struct {
	ApplicationPercent float64 `mapstructure:"application_percent"`
}

// RedisConfig enables the shared gateway token cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level  string
	Format string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat     string `mapstructure:"date_format"`
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Timezone       string `mapstructure:"timezone"`
}

// Load reads configuration from file and env. Env var overrides use prefix PAYLEDGER_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("PAYLEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "payledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PAYLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present; a file that exists must parse
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "payledger")
	v.SetDefault("database.path", filepath.Join(dataDir, "payledger.db"))
	v.SetDefault("database.migrations", "internal/database/migrations")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("gateway.base_url", "https://api.mollie.com")
	v.SetDefault("gateway.api_key_env", "MOLLIE_API_KEY")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.client_id", "")
	v.SetDefault("gateway.client_secret", "")
	v.SetDefault("gateway.token_url", "https://api.mollie.com/oauth2/tokens")
	v.SetDefault("gateway.testmode", true)
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.rate_per_second", 10.0)
	v.SetDefault("gateway.burst", 5)
	v.SetDefault("gateway.webhook_url", "")
	v.SetDefault("gateway.currency", "EUR")
	v.SetDefault("fees.application_percent", 2.0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.token_ttl", 50*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ui.date_format", "02/01")
	v.SetDefault("ui.currency_symbol", "€")
	v.SetDefault("ui.timezone", "Europe/Amsterdam")
}

// Save writes the provided config to disk, creating the config directory if needed.
// Secrets (API key, client secret) are never written; keep them in env vars or
// the keyring.
func Save(cfg Config) error {
	path := os.Getenv("PAYLEDGER_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "payledger", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.migrations", cfg.Database.Migrations)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("gateway.base_url", cfg.Gateway.BaseURL)
	v.Set("gateway.api_key_env", cfg.Gateway.APIKeyEnv)
	v.Set("gateway.client_id", cfg.Gateway.ClientID)
	v.Set("gateway.token_url", cfg.Gateway.TokenURL)
	v.Set("gateway.testmode", cfg.Gateway.Testmode)
	v.Set("gateway.timeout", cfg.Gateway.Timeout.String())
	v.Set("gateway.rate_per_second", cfg.Gateway.RatePerSecond)
	v.Set("gateway.burst", cfg.Gateway.Burst)
	v.Set("gateway.webhook_url", cfg.Gateway.WebhookURL)
	v.Set("gateway.currency", cfg.Gateway.Currency)
	v.Set("fees.application_percent", cfg.Fees.ApplicationPercent)
	v.Set("redis.addr", cfg.Redis.Addr)
	v.Set("redis.token_ttl", cfg.Redis.TokenTTL.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// APIKey returns the configured gateway key, falling back to the env var
// named by gateway.api_key_env.
func (c Config) APIKey() string {
	if c.Gateway.APIKey != "" {
		return c.Gateway.APIKey
	}
	if c.Gateway.APIKeyEnv != "" {
		return os.Getenv(c.Gateway.APIKeyEnv)
	}
	return ""
}

// GatewayClientConfig builds the gateway client settings. apiKey overrides
// the configured key when non-empty.
func (c Config) GatewayClientConfig(apiKey string) gateway.Config {
	if apiKey == "" {
		apiKey = c.APIKey()
	}
	return gateway.Config{
		BaseURL:       c.Gateway.BaseURL,
		APIKey:        apiKey,
		ClientID:      c.Gateway.ClientID,
		ClientSecret:  c.Gateway.ClientSecret,
		TokenURL:      c.Gateway.TokenURL,
		Testmode:      c.Gateway.Testmode,
		Timeout:       c.Gateway.Timeout,
		RatePerSecond: c.Gateway.RatePerSecond,
		Burst:         c.Gateway.Burst,
	}
}

// FeePercent is the application fee percentage as a decimal.
func (c Config) FeePercent() decimal.Decimal {
	return decimal.NewFromFloat(c.Fees.ApplicationPercent)
}

// Location resolves ui.timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.UI.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
