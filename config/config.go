// Package config holds the settings shared by the quote and trade sessions.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/longportwhale/openapi-go/metrics"
)

// Language selects the locale of server messages.
type Language int

const (
	LanguageZhCN Language = iota
	LanguageEN
	LanguageZhHK
)

func (l Language) String() string {
	switch l {
	case LanguageZhCN:
		return "zh-CN"
	case LanguageZhHK:
		return "zh-HK"
	default:
		return "en"
	}
}

// UnmarshalText parses the tags accepted in LONGPORT_LANGUAGE.
func (l *Language) UnmarshalText(b []byte) error {
	switch string(b) {
	case "zh-CN":
		*l = LanguageZhCN
	case "zh-HK":
		*l = LanguageZhHK
	case "en", "":
		*l = LanguageEN
	default:
		return fmt.Errorf("unknown language %q", string(b))
	}
	return nil
}

// Config carries credentials, endpoints and session tuning.
// It must be shared by pointer.
type Config struct {
	AppKey      string `env:"LONGPORT_APP_KEY"`
	AppSecret   string `env:"LONGPORT_APP_SECRET"`
	AccessToken string `env:"LONGPORT_ACCESS_TOKEN"`

	HTTPURL    string   `env:"LONGPORT_HTTP_URL" envDefault:"https://openapi.longportapp.com"`
	QuoteWSURL string   `env:"LONGPORT_QUOTE_WS_URL" envDefault:"wss://openapi-quote.longportapp.com"`
	TradeWSURL string   `env:"LONGPORT_TRADE_WS_URL" envDefault:"wss://openapi-trade.longportapp.com"`
	Language   Language `env:"LONGPORT_LANGUAGE" envDefault:"en"`

	RequestTimeout    time.Duration `env:"LONGPORT_REQUEST_TIMEOUT" envDefault:"30s"`
	HeartbeatInterval time.Duration `env:"LONGPORT_HEARTBEAT_INTERVAL" envDefault:"30s"`

	Reconnect            bool          `env:"LONGPORT_RECONNECT" envDefault:"true"`
	ReconnectMin         time.Duration `env:"LONGPORT_RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax         time.Duration `env:"LONGPORT_RECONNECT_MAX" envDefault:"60s"`
	ReconnectFactor      float64       `env:"LONGPORT_RECONNECT_FACTOR" envDefault:"2"`
	ReconnectJitter      float64       `env:"LONGPORT_RECONNECT_JITTER" envDefault:"0.1"`
	MaxReconnectAttempts int           `env:"LONGPORT_MAX_RECONNECT_ATTEMPTS" envDefault:"0"`

	// Client-side limit on quote requests per second. Zero disables it.
	QuoteRate  float64 `env:"LONGPORT_QUOTE_RATE" envDefault:"10"`
	QuoteBurst int     `env:"LONGPORT_QUOTE_BURST" envDefault:"20"`

	Logger  *slog.Logger     `env:"-"`
	Metrics *metrics.Metrics `env:"-"`

	rotated atomic.Pointer[string]
}

// Default returns a config holding only default values.
func Default() *Config {
	cfg := &Config{}
	// an empty environment applies every envDefault
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// New returns a default config with the given credentials.
func New(appKey, appSecret, accessToken string) *Config {
	cfg := Default()
	cfg.AppKey = appKey
	cfg.AppSecret = appSecret
	cfg.AccessToken = accessToken
	return cfg
}

// FromEnv loads ./.env if present, then reads the process environment.
func FromEnv() (*Config, error) {
	return FromEnvFile(".env")
}

// FromEnvFile loads path if it exists, then reads the process environment.
// Variables already set in the environment win over the file.
func FromEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks credentials, endpoints and tuning values.
func (c *Config) Validate() error {
	if c.AppKey == "" {
		return errors.New("LONGPORT_APP_KEY is required")
	}
	if c.AppSecret == "" {
		return errors.New("LONGPORT_APP_SECRET is required")
	}
	if c.Token() == "" {
		return errors.New("LONGPORT_ACCESS_TOKEN is required")
	}

	for name, raw := range map[string]string{
		"LONGPORT_HTTP_URL":     c.HTTPURL,
		"LONGPORT_QUOTE_WS_URL": c.QuoteWSURL,
		"LONGPORT_TRADE_WS_URL": c.TradeWSURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("invalid reconnect window %s..%s", c.ReconnectMin, c.ReconnectMax)
	}
	if c.ReconnectFactor < 1 {
		return fmt.Errorf("reconnect factor must be at least 1, got %v", c.ReconnectFactor)
	}
	if c.ReconnectJitter < 0 || c.ReconnectJitter > 1 {
		return fmt.Errorf("reconnect jitter must be within [0,1], got %v", c.ReconnectJitter)
	}
	if c.QuoteRate < 0 || c.QuoteBurst < 0 {
		return errors.New("quote rate limit must not be negative")
	}
	return nil
}

// Token returns the access token used for the next handshake.
func (c *Config) Token() string {
	if t := c.rotated.Load(); t != nil {
		return *t
	}
	return c.AccessToken
}

// SetAccessToken replaces the token used by later handshakes.
// Sessions already authenticated keep their session.
func (c *Config) SetAccessToken(token string) {
	c.rotated.Store(&token)
}

// Log returns the configured logger or slog.Default().
func (c *Config) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
