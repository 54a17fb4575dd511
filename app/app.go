// Package app assembles the quote and trade sessions, price alerts, the order
// journal and the MCP server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/auth"
	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/mcp"
	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/ops"
	"github.com/longportwhale/openapi-go/quote"
	"github.com/longportwhale/openapi-go/storage"
	"github.com/longportwhale/openapi-go/trade"
	"github.com/longportwhale/openapi-go/web"
)

// Server mode constants
const (
	ModeStdIO = "stdio" // MCP over stdin/stdout, ops endpoints still served over HTTP
	ModeHTTP  = "http"  // Streamable HTTP MCP endpoint at /mcp

	DefaultEnvFile = ".env"
)

// Config holds the application configuration. SDK settings (credentials,
// endpoints, reconnect tuning) are read separately by config.FromEnvFile.
type Config struct {
	AppMode string `env:"APP_MODE" envDefault:"http"`
	AppHost string `env:"APP_HOST" envDefault:"localhost"`
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	ExcludedTools string `env:"EXCLUDED_TOOLS"`

	// Alert and order journal persistence (opt-in)
	DBPath string `env:"DB_PATH"`

	// Telegram notifications (opt-in)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`

	// Per-client request budget on /mcp; 0 disables it
	HTTPRateLimit float64 `env:"HTTP_RATE_LIMIT" envDefault:"10"`
	HTTPRateBurst int     `env:"HTTP_RATE_BURST" envDefault:"20"`

	// Bearer token auth on /mcp and /logs (opt-in)
	AuthJWTSecret       string        `env:"AUTH_JWT_SECRET"`
	AuthTokenExpiry     time.Duration `env:"AUTH_TOKEN_EXPIRY" envDefault:"720h"`
	AuthAllowedSubjects []string      `env:"AUTH_ALLOWED_SUBJECTS" envSeparator:","`

	// EnvFile is loaded before the environment is read and watched for
	// access token rotation.
	EnvFile string `env:"ENV_FILE" envDefault:".env"`
}

// LoadConfig loads ENV_FILE (default .env) if present and reads the
// environment. Variables already set win over the file.
func LoadConfig() (*Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the mode, the Telegram pair and the auth secret.
func (c *Config) Validate() error {
	switch c.AppMode {
	case ModeStdIO, ModeHTTP:
	default:
		return fmt.Errorf("invalid APP_MODE: %s", c.AppMode)
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.AuthJWTSecret != "" {
		ac := c.AuthConfig()
		if err := ac.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AuthConfig returns the token settings.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		Secret:          c.AuthJWTSecret,
		TokenExpiry:     c.AuthTokenExpiry,
		AllowedSubjects: c.AuthAllowedSubjects,
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.AppHost, c.AppPort)
}

// App represents the main application structure
type App struct {
	Config    *Config
	Version   string
	startTime time.Time
	logger    *slog.Logger
	logBuffer *ops.LogBuffer
}

// NewApp creates a new application instance with logger
func NewApp(cfg *Config, logger *slog.Logger, logBuffer *ops.LogBuffer) *App {
	if logBuffer == nil {
		logBuffer = ops.NewLogBuffer(500)
	}
	return &App{
		Config:    cfg,
		Version:   "v0.0.0",
		startTime: time.Now(),
		logger:    logger,
		logBuffer: logBuffer,
	}
}

// SetVersion sets the server version
func (app *App) SetVersion(version string) {
	app.Version = version
}

// Options returns the fx graph of the server. extra is appended, which lets
// tests decorate or populate values.
func (app *App) Options(extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: app.logger.With("component", "fx")}
		}),
		fx.Supply(app.Config, app.logger, app.logBuffer),
		fx.Provide(
			newRegistry,
			newMetrics,
			newSDKConfig(app.Config),
			newQuoteSession,
			newTradeSession,
			newStorage,
			newNotifier,
			newAlertStore,
			newToolDeps,
			newAuth,
			newRateLimiter,
			app.newMCPServer,
			app.newHandler,
		),
		fx.Invoke(
			wirePushes,
			app.registerHTTPServer,
			app.registerStdio,
			registerWatcher,
		),
		fx.Options(extra...),
	)
}

// Run starts the server and blocks until a shutdown signal arrives.
func (app *App) Run() error {
	fxApp := fx.New(app.Options())
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	sig := <-fxApp.Wait()
	app.logger.Info("Shutting down server...", "signal", sig.Signal)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		return err
	}
	app.logger.Info("Server shutdown complete")
	return nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func newSDKConfig(cfg *Config) func(*slog.Logger, *metrics.Metrics) (*config.Config, error) {
	return func(logger *slog.Logger, m *metrics.Metrics) (*config.Config, error) {
		sdk, err := config.FromEnvFile(cfg.EnvFile)
		if err != nil {
			return nil, err
		}
		sdk.Logger = logger
		sdk.Metrics = m
		return sdk, nil
	}
}

func newQuoteSession(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*quote.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	logger.Info("Connecting quote session...", "url", cfg.QuoteWSURL)
	s, err := quote.NewSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open quote session: %w", err)
	}
	lc.Append(fx.StopHook(s.Close))
	return s, nil
}

func newTradeSession(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*trade.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	logger.Info("Connecting trade session...", "url", cfg.TradeWSURL)
	s, err := trade.NewSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade session: %w", err)
	}
	lc.Append(fx.StopHook(s.Close))
	return s, nil
}

// newStorage returns nil when DB_PATH is unset.
func newStorage(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) (*storage.DB, error) {
	if cfg.DBPath == "" {
		logger.Info("DB_PATH not set, alerts are kept in memory and orders are not journaled")
		return nil, nil
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("Database opened", "path", cfg.DBPath)
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func newNotifier(cfg *Config, logger *slog.Logger) (*alerts.TelegramNotifier, error) {
	return alerts.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
}

func newAlertStore(db *storage.DB, notifier *alerts.TelegramNotifier, logger *slog.Logger) (*alerts.Store, error) {
	store := alerts.NewStore(notifier.NotifyAlert)
	store.SetLogger(logger)
	if db != nil {
		store.SetDB(db)
		if err := store.LoadFromDB(); err != nil {
			return nil, fmt.Errorf("failed to load alerts: %w", err)
		}
	}
	return store, nil
}

func newToolDeps(qs *quote.Session, store *alerts.Store, db *storage.DB, m *metrics.Metrics, logger *slog.Logger) *mcp.Deps {
	deps := &mcp.Deps{
		Quote:   qs,
		Alerts:  store,
		Metrics: m,
		Logger:  logger,
	}
	if db != nil {
		deps.Orders = db
	}
	return deps
}

// newAuth returns nil when AUTH_JWT_SECRET is unset.
func newAuth(cfg *Config, logger *slog.Logger) (*auth.Middleware, error) {
	if cfg.AuthJWTSecret == "" {
		if cfg.AppMode == ModeHTTP && cfg.AppHost != "localhost" && cfg.AppHost != "127.0.0.1" {
			logger.Warn("AUTH_JWT_SECRET not set, /mcp is reachable without a token", "host", cfg.AppHost)
		}
		return nil, nil
	}
	ac := cfg.AuthConfig()
	m, err := auth.NewJWTManager(ac)
	if err != nil {
		return nil, err
	}
	logger.Info("Bearer token auth enabled for /mcp and /logs")
	return auth.NewMiddleware(m, ac, logger), nil
}

// newRateLimiter returns nil when HTTP_RATE_LIMIT is 0.
func newRateLimiter(lc fx.Lifecycle, cfg *Config) *web.RateLimiter {
	if cfg.HTTPRateLimit <= 0 {
		return nil
	}
	rl := web.NewRateLimiter(cfg.HTTPRateLimit, max(cfg.HTTPRateBurst, 1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				rl.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return rl
}

func (app *App) newMCPServer(deps *mcp.Deps) *server.MCPServer {
	app.logger.Info("Creating MCP server...")
	srv := server.NewMCPServer("LongPort MCP Server", app.Version)
	mcp.RegisterTools(srv, deps, app.Config.ExcludedTools, app.logger)
	return srv
}

// newHandler builds the HTTP routes: /metrics, /healthz, /logs and, in
// HTTP mode, /mcp. authMW guards /logs and /mcp and limiter throttles /mcp
// when set.
func (app *App) newHandler(mcpServer *server.MCPServer, reg *prometheus.Registry, store *alerts.Store, qs *quote.Session, ts *trade.Session, authMW *auth.Middleware, limiter *web.RateLimiter) http.Handler {
	guard := func(h http.Handler) http.Handler { return h }
	if authMW != nil {
		guard = authMW.RequireAuth
	}
	throttle := func(h http.Handler) http.Handler { return h }
	if limiter != nil {
		throttle = limiter.Middleware
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	opsHandler := ops.New(app.logBuffer, app.logger, app.Version, app.startTime, store,
		ops.Probe{Name: "quote", State: qs.State},
		ops.Probe{Name: "trade", State: ts.State},
	)
	opsMux := http.NewServeMux()
	opsHandler.RegisterRoutes(opsMux)
	mux.Handle("/healthz", opsMux)
	mux.Handle("/logs", guard(opsMux))

	if app.Config.AppMode == ModeHTTP {
		mux.Handle("/mcp", throttle(guard(server.NewStreamableHTTPServer(mcpServer))))
	}
	return mux
}

// wirePushes routes quote pushes to the alert evaluator and order changes to
// the journal and Telegram, then restores the subscriptions alerts need.
func wirePushes(lc fx.Lifecycle, qs *quote.Session, ts *trade.Session, store *alerts.Store, db *storage.DB, notifier *alerts.TelegramNotifier, logger *slog.Logger) {
	var journal alerts.OrderJournal
	if db != nil {
		journal = db
	}
	qs.OnQuote(alerts.NewEvaluator(store, logger))
	ts.OnOrderChanged(alerts.NewOrderWatcher(journal, notifier.NotifyOrder, logger))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ts.Subscribe(ctx, []trade.TopicType{trade.TopicPrivate}); err != nil {
				return fmt.Errorf("failed to subscribe order changes: %w", err)
			}
			if symbols := store.Symbols(); len(symbols) > 0 {
				if err := qs.Subscribe(ctx, symbols, quote.SubQuote, false); err != nil {
					logger.Warn("Failed to subscribe alert symbols", "symbols", symbols, "error", err)
				} else {
					logger.Info("Subscribed alert symbols", "count", len(symbols))
				}
			}
			return nil
		},
		OnStop: func(context.Context) error {
			qs.OnQuote(nil)
			ts.OnOrderChanged(nil)
			return nil
		},
	})
}

func (app *App) registerHTTPServer(lc fx.Lifecycle, handler http.Handler) {
	srv := &http.Server{
		Addr:              app.Config.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			app.logger.Info("HTTP server listening", "url", "http://"+ln.Addr().String(), "mode", app.Config.AppMode)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.logger.Error("HTTP server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func (app *App) registerStdio(lc fx.Lifecycle, shutdowner fx.Shutdowner, mcpServer *server.MCPServer) {
	if app.Config.AppMode != ModeStdIO {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			app.logger.Info("Starting STDIO MCP server...")
			stdio := server.NewStdioServer(mcpServer)
			go func() {
				if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
					app.logger.Error("STDIO server error", "error", err)
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// registerWatcher rotates the access token when the env file changes.
func registerWatcher(lc fx.Lifecycle, cfg *Config, sdk *config.Config, logger *slog.Logger) error {
	if _, err := os.Stat(cfg.EnvFile); err != nil {
		logger.Debug("Env file not found, token rotation disabled", "path", cfg.EnvFile)
		return nil
	}
	w, err := config.NewWatcher(cfg.EnvFile, sdk, func() {
		logger.Info("New access token applies to the next handshake")
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return w.Close()
		},
	})
	return nil
}
