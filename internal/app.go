// Package internal provides the App struct that wires all components of
// Skycast together for the CLI layer.
package internal

import (
	"log/slog"
	"os"

	"github.com/skycast-io/skycast/internal/mcp"
	"github.com/skycast-io/skycast/internal/telemetry"
	"github.com/skycast-io/skycast/internal/weather"
)

// App holds all service dependencies for Skycast. Everything is
// constructed once at startup and passed explicitly; there is no ambient
// global state, so tests can build isolated instances.
type App struct {
	BasePath string
	Logger   *slog.Logger

	// Analytics pipeline
	AnalyticsCfg telemetry.Config
	Collector    *telemetry.Collector

	// Weather service
	Weather *weather.Client

	// MCP surface
	Server *mcp.Server
}

// NewApp creates and wires all components. basePath is the directory
// searched for .skycast.yaml (typically the working directory).
func NewApp(basePath, version string) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := telemetry.LoadConfig(basePath, version, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		BasePath:     basePath,
		Logger:       logger,
		AnalyticsCfg: cfg,
	}

	sender := telemetry.NewHTTPSender(cfg.Endpoint, cfg.Version, nil)
	app.Collector = telemetry.NewCollector(cfg, sender, logger)

	app.Weather = weather.NewClient(logger)
	app.Server = mcp.NewServer(app.Weather, app.Collector, version)

	return app, nil
}

// ResolveBasePath returns the directory configuration is loaded from:
// the current working directory, or "." if it cannot be determined.
func ResolveBasePath() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
