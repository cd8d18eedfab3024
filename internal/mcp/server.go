// Package mcp provides the MCP (Model Context Protocol) server that
// exposes Skycast's weather tools to AI assistants. Every tool handler
// is wrapped with the analytics middleware before registration.
package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/skycast-io/skycast/internal/telemetry"
	"github.com/skycast-io/skycast/internal/weather"
)

// Server wraps the weather client and exposes it as MCP tools.
type Server struct {
	server    *gomcp.Server
	weather   *weather.Client
	collector *telemetry.Collector

	// Instrumented invocation paths; the typed MCP handlers below are
	// thin adapters over these.
	getForecast telemetry.Handler[forecastInput, *weather.Forecast]
	getCurrent  telemetry.Handler[currentInput, *weather.Forecast]
}

// NewServer creates the MCP server with the given weather client and
// analytics collector.
func NewServer(weatherClient *weather.Client, collector *telemetry.Collector, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		weather:   weatherClient,
		collector: collector,
	}

	s.getForecast = telemetry.Instrument(collector, "get_forecast", forecastMetadata,
		func(ctx context.Context, in forecastInput) (*weather.Forecast, error) {
			if in.Location == "" {
				return nil, fmt.Errorf("invalid input: location is required")
			}
			days := in.Days
			if days == 0 {
				days = 7
			}
			return s.weather.Forecast(ctx, in.Location, days)
		})

	s.getCurrent = telemetry.Instrument(collector, "get_current_weather", currentMetadata,
		func(ctx context.Context, in currentInput) (*weather.Forecast, error) {
			if in.Location == "" {
				return nil, fmt.Errorf("invalid input: location is required")
			}
			return s.weather.Forecast(ctx, in.Location, 1)
		})

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "skycast", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type forecastInput struct {
	Location string `json:"location" jsonschema:"required,place name to look up (e.g. Berlin or Cape Town)"`
	Days     int    `json:"days,omitempty" jsonschema:"number of forecast days (1-16, default 7)"`
}

type currentInput struct {
	Location string `json:"location" jsonschema:"required,place name to look up (e.g. Berlin or Cape Town)"`
}

type weatherOutput struct {
	Location weather.Location          `json:"location"`
	Current  weather.CurrentConditions `json:"current"`
	Daily    []weather.DailyForecast   `json:"daily,omitempty"`
	Markdown string                    `json:"markdown"`
}

// --- Analytics metadata extractors ---

func forecastMetadata(in forecastInput, f *weather.Forecast) telemetry.Metadata {
	hit := f.Cached
	days := in.Days
	if days == 0 {
		days = 7
	}
	return telemetry.Metadata{
		Service:  "open-meteo",
		CacheHit: &hit,
		Country:  f.Location.CountryCode,
		Params:   map[string]any{"days": days, "units": "metric"},
	}
}

func currentMetadata(_ currentInput, f *weather.Forecast) telemetry.Metadata {
	hit := f.Cached
	return telemetry.Metadata{
		Service:  "open-meteo",
		CacheHit: &hit,
		Country:  f.Location.CountryCode,
		Params:   map[string]any{"granularity": "current", "units": "metric"},
	}
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_forecast",
		Description: "Get a multi-day weather forecast for a place. Returns current conditions plus daily highs, lows, and precipitation, with a markdown summary.",
	}, s.handleGetForecast)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_current_weather",
		Description: "Get the current weather conditions for a place, with a markdown summary.",
	}, s.handleGetCurrent)
}

// --- Tool handlers ---

func (s *Server) handleGetForecast(ctx context.Context, _ *gomcp.CallToolRequest, in forecastInput) (*gomcp.CallToolResult, weatherOutput, error) {
	f, err := s.getForecast(ctx, in)
	if err != nil {
		return errorResult(fmt.Sprintf("getting forecast: %s", err)), weatherOutput{}, nil
	}
	return nil, forecastToOutput(f), nil
}

func (s *Server) handleGetCurrent(ctx context.Context, _ *gomcp.CallToolRequest, in currentInput) (*gomcp.CallToolResult, weatherOutput, error) {
	f, err := s.getCurrent(ctx, in)
	if err != nil {
		return errorResult(fmt.Sprintf("getting current weather: %s", err)), weatherOutput{}, nil
	}
	out := forecastToOutput(f)
	out.Daily = nil
	return nil, out, nil
}

// --- Helpers ---

func forecastToOutput(f *weather.Forecast) weatherOutput {
	return weatherOutput{
		Location: f.Location,
		Current:  f.Current,
		Daily:    f.Daily,
		Markdown: weather.RenderMarkdown(f),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
