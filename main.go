// LongPort MCP Server exposes LongPort OpenAPI quote and trade sessions,
// price alerts and an order journal over the Model Context Protocol.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/longportwhale/openapi-go/app"
	"github.com/longportwhale/openapi-go/auth"
	"github.com/longportwhale/openapi-go/ops"
)

var (
	// MCP_SERVER_VERSION is set at build time with -ldflags "-X main.MCP_SERVER_VERSION=..."
	MCP_SERVER_VERSION = "v0.0.0"

	// buildString is set at build time with build time and git info
	buildString = "dev build"
)

func initLogger() (*slog.Logger, *ops.LogBuffer) {
	// Valid levels: debug, info, warn, error
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logBuffer := ops.NewLogBuffer(500)
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(ops.NewTeeHandler(inner, logBuffer)), logBuffer
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("LongPort MCP Server %s\n", MCP_SERVER_VERSION)
		fmt.Printf("Build: %s\n", buildString)
		os.Exit(0)
	}

	if len(os.Args) > 2 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// stdout carries MCP frames in stdio mode, so logs go to stderr
	logger, logBuffer := initLogger()
	slog.SetDefault(logger)

	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	application := app.NewApp(cfg, logger, logBuffer)
	application.SetVersion(MCP_SERVER_VERSION)

	logger.Info("Starting LongPort MCP Server...", "version", MCP_SERVER_VERSION, "build", buildString, "mode", cfg.AppMode)
	if err := application.Run(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// issueToken prints a bearer token for subject signed with AUTH_JWT_SECRET.
func issueToken(subject string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is not set")
	}
	m, err := auth.NewJWTManager(cfg.AuthConfig())
	if err != nil {
		return err
	}
	token, err := m.GenerateToken(subject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
