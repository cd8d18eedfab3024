// Package weather provides the Open-Meteo client behind Skycast's MCP
// tools: place-name geocoding, current conditions, and daily forecasts,
// with a short-lived in-process response cache.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	requestTimeout = 10 * time.Second

	cacheTTL     = 10 * time.Minute
	cacheCleanup = 30 * time.Minute

	// MaxForecastDays is the longest daily forecast Open-Meteo serves.
	MaxForecastDays = 16
)

// Location is a geocoded place.
type Location struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// CurrentConditions holds the current weather at a location.
type CurrentConditions struct {
	TemperatureC float64 `json:"temperature_c"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
	WeatherCode  int     `json:"weather_code"`
}

// DailyForecast is one day of forecast data.
type DailyForecast struct {
	Date            string  `json:"date"`
	WeatherCode     int     `json:"weather_code"`
	TempMaxC        float64 `json:"temp_max_c"`
	TempMinC        float64 `json:"temp_min_c"`
	PrecipitationMm float64 `json:"precipitation_mm"`
}

// Forecast is the combined result for one location query. Cached reports
// whether the result was served from the in-process cache; it feeds the
// cache_hit analytics metadata and is not part of the tool output.
type Forecast struct {
	Location Location          `json:"location"`
	Current  CurrentConditions `json:"current"`
	Daily    []DailyForecast   `json:"daily,omitempty"`
	Cached   bool              `json:"-"`
}

// Client calls the Open-Meteo geocoding and forecast APIs.
type Client struct {
	httpClient  *http.Client
	geocodeURL  string
	forecastURL string
	cache       *cache.Cache
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the geocoding and forecast base URLs.
func WithEndpoints(geocodeURL, forecastURL string) Option {
	return func(c *Client) {
		c.geocodeURL = geocodeURL
		c.forecastURL = forecastURL
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a weather client with the default Open-Meteo
// endpoints and a 10-minute response cache.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		geocodeURL:  defaultGeocodeURL,
		forecastURL: defaultForecastURL,
		cache:       cache.New(cacheTTL, cacheCleanup),
		logger:      logger.With("component", "weather"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// geocodeResponse mirrors the Open-Meteo geocoding payload.
type geocodeResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Country     string  `json:"country"`
		CountryCode string  `json:"country_code"`
	} `json:"results"`
}

// forecastResponse mirrors the Open-Meteo forecast payload.
type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		WeatherCode   []int     `json:"weather_code"`
		TempMax       []float64 `json:"temperature_2m_max"`
		TempMin       []float64 `json:"temperature_2m_min"`
		Precipitation []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Geocode resolves a place name to a location.
func (c *Client) Geocode(ctx context.Context, name string) (*Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("invalid location: name is required")
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")

	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL, q, &resp); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", name, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("location %q not found", name)
	}

	r := resp.Results[0]
	return &Location{
		Name:        r.Name,
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}, nil
}

// Forecast geocodes the place name and fetches current conditions plus a
// daily forecast for the given number of days (clamped to 1..16).
// Repeated queries within the cache TTL are served from memory.
func (c *Client) Forecast(ctx context.Context, name string, days int) (*Forecast, error) {
	if days < 1 {
		days = 1
	}
	if days > MaxForecastDays {
		days = MaxForecastDays
	}

	key := fmt.Sprintf("forecast|%s|%d", strings.ToLower(strings.TrimSpace(name)), days)
	if v, ok := c.cache.Get(key); ok {
		cached := *(v.(*Forecast))
		cached.Cached = true
		return &cached, nil
	}

	loc, err := c.Geocode(ctx, name)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("current", "temperature_2m,wind_speed_10m,weather_code")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("forecast_days", fmt.Sprintf("%d", days))
	q.Set("timezone", "UTC")

	var resp forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, q, &resp); err != nil {
		return nil, fmt.Errorf("fetching forecast for %q: %w", loc.Name, err)
	}

	f := &Forecast{
		Location: *loc,
		Current: CurrentConditions{
			TemperatureC: resp.Current.Temperature,
			WindSpeedKmh: resp.Current.WindSpeed,
			WeatherCode:  resp.Current.WeatherCode,
		},
	}
	for i, date := range resp.Daily.Time {
		day := DailyForecast{Date: date}
		if i < len(resp.Daily.WeatherCode) {
			day.WeatherCode = resp.Daily.WeatherCode[i]
		}
		if i < len(resp.Daily.TempMax) {
			day.TempMaxC = resp.Daily.TempMax[i]
		}
		if i < len(resp.Daily.TempMin) {
			day.TempMinC = resp.Daily.TempMin[i]
		}
		if i < len(resp.Daily.Precipitation) {
			day.PrecipitationMm = resp.Daily.Precipitation[i]
		}
		f.Daily = append(f.Daily, day)
	}

	c.cache.Set(key, f, cache.DefaultExpiration)
	return f, nil
}

func (c *Client) getJSON(ctx context.Context, base string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
