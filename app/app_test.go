package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/auth"
	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/quote"
	"github.com/longportwhale/openapi-go/storage"
	"github.com/longportwhale/openapi-go/trade"
	"github.com/longportwhale/openapi-go/wsclient/wstest"
)

const (
	quoteSubscribeCmd = 6
	tradeSubscribeCmd = 16
)

// testLogger creates a discard logger for tests
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv points the SDK at srv and returns an app config on a free port.
func testEnv(t *testing.T, srv *wstest.Server) *Config {
	t.Helper()
	t.Setenv("LONGPORT_APP_KEY", "app-key")
	t.Setenv("LONGPORT_APP_SECRET", "app-secret")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "token")
	t.Setenv("LONGPORT_QUOTE_WS_URL", srv.URL())
	t.Setenv("LONGPORT_TRADE_WS_URL", srv.URL())
	t.Setenv("LONGPORT_REQUEST_TIMEOUT", "2s")
	t.Setenv("LONGPORT_RECONNECT", "false")

	return &Config{
		AppMode: ModeHTTP,
		AppHost: "127.0.0.1",
		AppPort: "0",
		DBPath:  ":memory:",
		EnvFile: filepath.Join(t.TempDir(), "missing.env"),
	}
}

func newTestServer() *wstest.Server {
	srv := wstest.NewServer()
	srv.Handle(quoteSubscribeCmd, func([]byte) ([]byte, error) { return nil, nil })
	srv.Handle(tradeSubscribeCmd, func([]byte) ([]byte, error) { return nil, nil })
	return srv
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"APP_MODE", "APP_PORT", "APP_HOST", "DB_PATH", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "EXCLUDED_TOOLS"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ModeHTTP, cfg.AppMode)
	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Empty(t, cfg.DBPath)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_MODE=http\nAPP_PORT=9090\nEXCLUDED_TOOLS=quote,depth\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// variables already set win over the file
	t.Setenv("APP_MODE", ModeStdIO)
	t.Setenv("APP_PORT", "")
	require.NoError(t, os.Unsetenv("APP_PORT"))
	t.Setenv("EXCLUDED_TOOLS", "")
	require.NoError(t, os.Unsetenv("EXCLUDED_TOOLS"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ModeStdIO, cfg.AppMode)
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, "quote,depth", cfg.ExcludedTools)
	assert.Equal(t, path, cfg.EnvFile)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{AppMode: "sse"}
	assert.EqualError(t, cfg.Validate(), "invalid APP_MODE: sse")

	cfg = &Config{AppMode: ModeHTTP, TelegramBotToken: "123:abc"}
	assert.Error(t, cfg.Validate())

	cfg.TelegramChatID = 42
	assert.NoError(t, cfg.Validate())

	cfg.AuthJWTSecret = "short"
	assert.Error(t, cfg.Validate())
}

func TestOptions_Validate(t *testing.T) {
	app := NewApp(&Config{AppMode: ModeHTTP}, testLogger(), nil)
	require.NoError(t, fx.ValidateApp(app.Options()))
}

func TestSetVersion(t *testing.T) {
	app := NewApp(&Config{}, testLogger(), nil)
	assert.Equal(t, "v0.0.0", app.Version)
	app.SetVersion("v1.2.3")
	assert.Equal(t, "v1.2.3", app.Version)
}

func TestApp_EndToEnd(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	var (
		handler http.Handler
		db      *storage.DB
		store   *alerts.Store
	)
	app := NewApp(testEnv(t, srv), testLogger(), nil)
	fxApp := fxtest.New(t, app.Options(fx.Populate(&handler, &db, &store)))
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	assert.Equal(t, 1, srv.Count(tradeSubscribeCmd))
	assert.Zero(t, srv.Count(quoteSubscribeCmd), "no alerts, nothing to resubscribe")

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quote":"connected"`)
	assert.Contains(t, rec.Body.String(), `"trade":"connected"`)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("not json")))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)

	t.Run("order changes are journaled", func(t *testing.T) {
		cmd, body, err := trade.MarshalPush(trade.PushOrderChanged{
			OrderID:     "42",
			Symbol:      "700.HK",
			Side:        trade.OrderSideBuy,
			Status:      trade.OrderStatusFilled,
			SubmittedAt: time.Now(),
			UpdatedAt:   time.Now(),
		})
		require.NoError(t, err)
		srv.Push(cmd, body)

		require.Eventually(t, func() bool {
			events, err := db.OrderEvents("42", 10)
			return err == nil && len(events) == 1
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("quote pushes trigger alerts", func(t *testing.T) {
		_, err := store.Add("700.HK", decimal.NewFromInt(400), alerts.DirectionAbove)
		require.NoError(t, err)

		cmd, body, err := quote.MarshalPush(quote.PushEvent{
			Symbol: "700.HK",
			Detail: quote.PushQuote{LastDone: decimal.NewFromInt(401)},
		})
		require.NoError(t, err)
		srv.Push(cmd, body)

		require.Eventually(t, func() bool {
			_, active := store.Counts()
			return active == 0
		}, 3*time.Second, 10*time.Millisecond)
	})
}

func TestApp_AuthGuardsLogsAndMCP(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cfg := testEnv(t, srv)
	cfg.AuthJWTSecret = "0123456789abcdef-secret"
	cfg.AuthTokenExpiry = time.Hour

	var handler http.Handler
	fxApp := fxtest.New(t, NewApp(cfg, testLogger(), nil).Options(fx.Populate(&handler)))
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	do := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, strings.NewReader("{}"))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/logs", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/mcp", ""))

	m, err := auth.NewJWTManager(cfg.AuthConfig())
	require.NoError(t, err)
	token, err := m.GenerateToken("ops")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/logs", token))
}

func TestApp_RateLimitsMCP(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cfg := testEnv(t, srv)
	cfg.HTTPRateLimit = 0.001
	cfg.HTTPRateBurst = 1

	var handler http.Handler
	fxApp := fxtest.New(t, NewApp(cfg, testLogger(), nil).Options(fx.Populate(&handler)))
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	post := func() int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
		return rec.Code
	}
	assert.NotEqual(t, http.StatusTooManyRequests, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
	// ops endpoints are not throttled
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_ResubscribesAlertSymbols(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cfg := testEnv(t, srv)
	cfg.DBPath = filepath.Join(t.TempDir(), "alerts.db")

	db, err := storage.Open(cfg.DBPath)
	require.NoError(t, err)
	seed := alerts.NewStore(nil)
	seed.SetDB(db)
	_, err = seed.Add("AAPL.US", decimal.NewFromInt(150), alerts.DirectionBelow)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var store *alerts.Store
	fxApp := fxtest.New(t, NewApp(cfg, testLogger(), nil).Options(fx.Populate(&store)))
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	assert.Equal(t, []string{"AAPL.US"}, store.Symbols())
	assert.Equal(t, 1, srv.Count(quoteSubscribeCmd))
}

func TestApp_RotatesTokenFromEnvFile(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	cfg := testEnv(t, srv)
	cfg.EnvFile = filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(cfg.EnvFile, []byte("LONGPORT_ACCESS_TOKEN=token\n"), 0o600))

	var sdk *config.Config
	fxApp := fxtest.New(t, NewApp(cfg, testLogger(), nil).Options(fx.Populate(&sdk)))
	fxApp.RequireStart()
	defer fxApp.RequireStop()

	require.NoError(t, os.WriteFile(cfg.EnvFile, []byte("LONGPORT_ACCESS_TOKEN=rotated\n"), 0o600))
	require.Eventually(t, func() bool { return sdk.Token() == "rotated" }, 3*time.Second, 20*time.Millisecond)
}

func TestApp_StartFailsWithoutServer(t *testing.T) {
	srv := newTestServer()
	cfg := testEnv(t, srv)
	srv.Close()

	fxApp := fx.New(NewApp(cfg, testLogger(), nil).Options())
	assert.Error(t, fxApp.Err())
}
