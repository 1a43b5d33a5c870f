package plugin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
)

const defaultTimeZone = "Europe/Rome"

// DateTimePlugin answers "what time is it" in a requested IANA time zone.
type DateTimePlugin struct {
	DefaultZone string

	now func() time.Time
}

func NewDateTimePlugin(defaultZone string) *DateTimePlugin {
	if defaultZone == "" {
		defaultZone = defaultTimeZone
	}
	return &DateTimePlugin{DefaultZone: defaultZone, now: time.Now}
}

func (p *DateTimePlugin) Declaration() ai.FunctionDeclaration {
	return ai.FunctionDeclaration{
		Name:        "get_date_time",
		Description: "Returns the current date and time. The time zone can be set with the 'time_zone' argument in 'Region/City' format, e.g. 'Europe/Rome', 'America/New_York', 'Asia/Tokyo'. Defaults to " + p.DefaultZone + ".",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time_zone": map[string]any{
					"type":        "string",
					"description": "IANA time zone for the date and time, e.g. Europe/Rome, America/New_York, Asia/Tokyo.",
				},
			},
		},
	}
}

func (p *DateTimePlugin) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	_ = ctx

	zone := sanitizeTimeZone(stringArg(args, "time_zone"))
	if zone == "" {
		zone = p.DefaultZone
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		// The model occasionally invents zone names; fall back instead of
		// failing the whole turn.
		loc, err = time.LoadLocation(p.DefaultZone)
		if err != nil {
			return nil, err
		}
		zone = p.DefaultZone
	}

	return map[string]any{
		"date_time": p.now().In(loc).Format("2006-01-02 15:04:05"),
		"time_zone": zone,
	}, nil
}

// sanitizeTimeZone unwraps the argument when the model sends it as a nested
// JSON object string like {"time_zone": "Asia/Tokyo"} instead of a bare zone
// name.
func sanitizeTimeZone(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw
	}
	var nested struct {
		TimeZone string `json:"time_zone"`
	}
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return ""
	}
	return strings.TrimSpace(nested.TimeZone)
}
