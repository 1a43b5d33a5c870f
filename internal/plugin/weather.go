package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/weather"
)

// WeatherPlugin looks up conditions for a city. Requests for today hit the
// current-weather endpoint; any other date goes through the timemachine
// endpoint by coordinates.
type WeatherPlugin struct {
	owm *weather.Client

	now func() time.Time
}

func NewWeatherPlugin(owm *weather.Client) *WeatherPlugin {
	return &WeatherPlugin{owm: owm, now: time.Now}
}

func (p *WeatherPlugin) Declaration() ai.FunctionDeclaration {
	return ai.FunctionDeclaration{
		Name:        "get_weather",
		Description: "Get the weather of a city at a particular date and time. If the date is today, the current weather is returned; otherwise the weather at the given date and time. Relative dates like 'tomorrow' must be converted to a Unix timestamp. Temperature defaults to Celsius unless a unit is given.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": "The city to get the weather for.",
				},
				"latitude": map[string]any{
					"type":        "number",
					"description": "The latitude of the location.",
				},
				"longitude": map[string]any{
					"type":        "number",
					"description": "The longitude of the location.",
				},
				"date_time": map[string]any{
					"type":        "integer",
					"description": "The datetime for the weather as a Unix timestamp.",
				},
				"unit": map[string]any{
					"type":        "string",
					"description": "Temperature unit: 'standard' (Kelvin), 'metric' (Celsius) or 'imperial' (Fahrenheit).",
					"enum":        []string{weather.UnitsStandard, weather.UnitsMetric, weather.UnitsImperial},
				},
			},
			"required": []string{"city", "latitude", "longitude"},
		},
	}
}

func (p *WeatherPlugin) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	city := stringArg(args, "city")
	if city == "" {
		return nil, fmt.Errorf("plugin: get_weather requires a city")
	}

	unit := stringArg(args, "unit")
	if unit == "" {
		unit = weather.UnitsMetric
	}

	now := p.now()
	when := now
	if ts, ok := floatArg(args, "date_time"); ok && ts > 0 {
		when = time.Unix(int64(ts), 0)
	}

	if sameDay(when, now) {
		cw, err := p.owm.CurrentByCity(ctx, city, unit)
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"temperature": cw.Main.Temp,
			"feels_like":  cw.Main.FeelsLike,
			"humidity":    cw.Main.Humidity,
			"wind_speed":  cw.Wind.Speed,
			"pressure":    cw.Main.Pressure,
		}
		if len(cw.Weather) > 0 {
			out["description"] = cw.Weather[0].Description
			out["conditions"] = cw.Weather[0].Main
		}
		return out, nil
	}

	lat, latOK := floatArg(args, "latitude")
	lon, lonOK := floatArg(args, "longitude")
	if !latOK || !lonOK {
		return nil, fmt.Errorf("plugin: get_weather needs coordinates for non-current dates")
	}

	tm, err := p.owm.Timemachine(ctx, lat, lon, when.Unix(), unit)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"temperature": tm.Temp,
		"feels_like":  tm.FeelsLike,
		"humidity":    tm.Humidity,
		"wind_speed":  tm.WindSpeed,
		"pressure":    tm.Pressure,
	}
	if len(tm.Weather) > 0 {
		out["description"] = tm.Weather[0].Description
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
