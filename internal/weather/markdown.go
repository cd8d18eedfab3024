package weather

import (
	"fmt"
	"strings"
)

// weatherCodeText maps WMO weather interpretation codes to short
// human-readable descriptions.
var weatherCodeText = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// DescribeCode returns a human-readable description for a WMO weather
// code, or "Unknown" for unmapped codes.
func DescribeCode(code int) string {
	if s, ok := weatherCodeText[code]; ok {
		return s
	}
	return "Unknown"
}

// RenderMarkdown formats a forecast as markdown suitable for MCP tool
// output.
func RenderMarkdown(f *Forecast) string {
	var b strings.Builder

	loc := f.Location
	fmt.Fprintf(&b, "# Weather for %s, %s\n\n", loc.Name, loc.Country)
	fmt.Fprintf(&b, "**Now:** %s, %.1f°C, wind %.1f km/h\n",
		DescribeCode(f.Current.WeatherCode), f.Current.TemperatureC, f.Current.WindSpeedKmh)

	if len(f.Daily) > 0 {
		b.WriteString("\n| Date | Conditions | High | Low | Precip |\n")
		b.WriteString("|------|------------|------|-----|--------|\n")
		for _, d := range f.Daily {
			fmt.Fprintf(&b, "| %s | %s | %.1f°C | %.1f°C | %.1f mm |\n",
				d.Date, DescribeCode(d.WeatherCode), d.TempMaxC, d.TempMinC, d.PrecipitationMm)
		}
	}

	return b.String()
}
