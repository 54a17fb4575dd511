package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Setenv("LONGPORT_APP_KEY", "key")
	t.Setenv("LONGPORT_APP_SECRET", "secret")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "token")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://openapi.longportapp.com", cfg.HTTPURL)
	assert.Equal(t, "wss://openapi-quote.longportapp.com", cfg.QuoteWSURL)
	assert.Equal(t, "wss://openapi-trade.longportapp.com", cfg.TradeWSURL)
	assert.Equal(t, LanguageEN, cfg.Language)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Reconnect)
	assert.Equal(t, time.Second, cfg.ReconnectMin)
	assert.Equal(t, time.Minute, cfg.ReconnectMax)
	assert.Equal(t, 2.0, cfg.ReconnectFactor)
}

func TestFromEnvFile_MissingCredentials(t *testing.T) {
	t.Setenv("LONGPORT_APP_KEY", "")
	t.Setenv("LONGPORT_APP_SECRET", "")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "")

	_, err := FromEnvFile("")
	assert.ErrorContains(t, err, "LONGPORT_APP_KEY")
}

func TestFromEnvFile_Environment(t *testing.T) {
	setCredentials(t)
	t.Setenv("LONGPORT_LANGUAGE", "zh-HK")
	t.Setenv("LONGPORT_REQUEST_TIMEOUT", "5s")
	t.Setenv("LONGPORT_RECONNECT", "false")

	cfg, err := FromEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.AppKey)
	assert.Equal(t, LanguageZhHK, cfg.Language)
	assert.Equal(t, "zh-HK", cfg.Language.String())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Reconnect)
}

func TestFromEnvFile_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"LONGPORT_APP_KEY=file-key\nLONGPORT_APP_SECRET=file-secret\nLONGPORT_ACCESS_TOKEN=file-token\n",
	), 0o600))
	for _, k := range []string{"LONGPORT_APP_KEY", "LONGPORT_APP_SECRET", "LONGPORT_ACCESS_TOKEN"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := FromEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.AppKey)
	assert.Equal(t, "file-token", cfg.Token())
}

func TestFromEnvFile_BadLanguage(t *testing.T) {
	setCredentials(t)
	t.Setenv("LONGPORT_LANGUAGE", "fr")

	_, err := FromEnvFile("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := New("k", "s", "t")
	require.NoError(t, cfg.Validate())

	cfg.QuoteWSURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = New("k", "s", "t")
	cfg.ReconnectMax = cfg.ReconnectMin / 2
	assert.Error(t, cfg.Validate())

	cfg = New("k", "s", "t")
	cfg.ReconnectJitter = 1.5
	assert.Error(t, cfg.Validate())
}

func TestSetAccessToken(t *testing.T) {
	cfg := New("k", "s", "old")
	assert.Equal(t, "old", cfg.Token())
	cfg.SetAccessToken("new")
	assert.Equal(t, "new", cfg.Token())
}

func TestWatcher_RotatesToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LONGPORT_ACCESS_TOKEN=first\n"), 0o600))

	cfg := New("k", "s", "first")
	rotated := make(chan struct{}, 1)
	w, err := NewWatcher(path, cfg, func() { rotated <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("LONGPORT_ACCESS_TOKEN=second\n"), 0o600))

	select {
	case <-rotated:
	case <-time.After(5 * time.Second):
		t.Fatal("token was not rotated")
	}
	assert.Equal(t, "second", cfg.Token())
}
