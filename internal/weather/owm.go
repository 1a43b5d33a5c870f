// Package weather is a small OpenWeatherMap client covering the two lookups
// the weather tool needs: current conditions by city and historical/forecast
// conditions by coordinates (One Call timemachine).
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.openweathermap.org"

// Units accepted by the OpenWeatherMap API.
const (
	UnitsStandard = "standard"
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx answer from OpenWeatherMap.
type APIError struct {
	Code    string `json:"cod"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweathermap: %s (cod=%s)", e.Message, e.Code)
}

type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// CurrentWeather is the /data/2.5/weather response.
type CurrentWeather struct {
	Weather []Condition `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// TimemachinePoint is one hourly data point from the One Call timemachine
// endpoint.
type TimemachinePoint struct {
	Temp      float64     `json:"temp"`
	FeelsLike float64     `json:"feels_like"`
	Pressure  float64     `json:"pressure"`
	Humidity  float64     `json:"humidity"`
	WindSpeed float64     `json:"wind_speed"`
	Weather   []Condition `json:"weather"`
}

type timemachineResp struct {
	Data []TimemachinePoint `json:"data"`
}

// CurrentByCity returns current conditions for a city name.
func (c *Client) CurrentByCity(ctx context.Context, city, units string) (*CurrentWeather, error) {
	if units == "" {
		units = UnitsMetric
	}
	q := url.Values{}
	q.Set("q", city)
	q.Set("units", units)
	q.Set("appid", c.APIKey)

	var out CurrentWeather
	if err := c.get(ctx, "/data/2.5/weather", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timemachine returns conditions at a coordinate for a specific moment,
// past or future.
func (c *Client) Timemachine(ctx context.Context, lat, lon float64, dt int64, units string) (*TimemachinePoint, error) {
	if units == "" {
		units = UnitsMetric
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("dt", strconv.FormatInt(dt, 10))
	q.Set("units", units)
	q.Set("appid", c.APIKey)

	var out timemachineResp
	if err := c.get(ctx, "/data/3.0/onecall/timemachine", q, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openweathermap: timemachine returned no data points")
	}
	return &out.Data[0], nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("openweathermap: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("openweathermap: status %d", resp.StatusCode)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openweathermap: decode response: %w", err)
	}
	return nil
}
