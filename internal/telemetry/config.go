package telemetry

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEndpoint is the built-in collection endpoint used when no
// endpoint is configured or the configured value is malformed.
const DefaultEndpoint = "https://telemetry.skycast.dev/v1/events"

// Config holds the process-wide analytics settings. It is loaded once at
// startup and passed explicitly to the components that need it.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Level    Level  `yaml:"level"`
	Endpoint string `yaml:"endpoint"`
	Salt     string `yaml:"salt,omitempty"`

	// Version is the client version embedded in events and the outbound
	// identification header. It is injected at startup, not read from
	// the config file.
	Version string `yaml:"-"`
}

// DefaultConfig returns the safe defaults: analytics enabled at the
// minimal privacy level against the built-in endpoint.
func DefaultConfig(version string) Config {
	return Config{
		Enabled:  true,
		Level:    LevelMinimal,
		Endpoint: DefaultEndpoint,
		Version:  version,
	}
}

// LoadConfig reads the analytics section of .skycast.yaml from basePath,
// with SKYCAST_* environment variables taking precedence. Configuration
// problems are never fatal: an invalid level or a malformed endpoint is
// logged and replaced with its default.
func LoadConfig(basePath, version string, logger *slog.Logger) (Config, error) {
	cfg := DefaultConfig(version)

	v := viper.New()
	v.SetConfigName(".skycast")
	v.SetConfigType("yaml")
	v.AddConfigPath(basePath)
	v.SetEnvPrefix("SKYCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("analytics.enabled", cfg.Enabled)
	v.SetDefault("analytics.level", string(cfg.Level))
	v.SetDefault("analytics.endpoint", cfg.Endpoint)
	v.SetDefault("analytics.salt", cfg.Salt)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("reading .skycast.yaml: %w", err)
		}
		// No config file found; defaults and environment apply.
	}

	cfg.Enabled = v.GetBool("analytics.enabled")
	cfg.Salt = v.GetString("analytics.salt")

	level, ok := ParseLevel(v.GetString("analytics.level"))
	if !ok {
		logger.Warn("invalid analytics level, falling back to minimal",
			"value", v.GetString("analytics.level"))
	}
	cfg.Level = level

	cfg.Endpoint = validateEndpoint(v.GetString("analytics.endpoint"), logger)

	return cfg, nil
}

// validateEndpoint returns the given endpoint if it is a well-formed
// http(s) URL, and the built-in default otherwise.
func validateEndpoint(endpoint string, logger *slog.Logger) string {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		logger.Warn("malformed analytics endpoint, falling back to default",
			"value", endpoint, "default", DefaultEndpoint)
		return DefaultEndpoint
	}
	return endpoint
}
