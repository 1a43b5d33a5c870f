package plugin

import (
	"context"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
}

func TestDateTime_UsesRequestedZone(t *testing.T) {
	p := NewDateTimePlugin("")
	p.now = fixedNow

	out, err := p.Call(context.Background(), map[string]any{"time_zone": "Asia/Tokyo"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out["time_zone"] != "Asia/Tokyo" {
		t.Fatalf("unexpected zone: %v", out["time_zone"])
	}
	// 10:00 UTC is 19:00 in Tokyo.
	if out["date_time"] != "2026-09-01 19:00:00" {
		t.Fatalf("unexpected date_time: %v", out["date_time"])
	}
}

func TestDateTime_DefaultsWhenZoneMissing(t *testing.T) {
	p := NewDateTimePlugin("UTC")
	p.now = fixedNow

	out, err := p.Call(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out["time_zone"] != "UTC" {
		t.Fatalf("unexpected zone: %v", out["time_zone"])
	}
	if out["date_time"] != "2026-09-01 10:00:00" {
		t.Fatalf("unexpected date_time: %v", out["date_time"])
	}
}

func TestDateTime_FallsBackOnInventedZone(t *testing.T) {
	p := NewDateTimePlugin("UTC")
	p.now = fixedNow

	out, err := p.Call(context.Background(), map[string]any{"time_zone": "Middle/Earth"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out["time_zone"] != "UTC" {
		t.Fatalf("expected fallback zone, got %v", out["time_zone"])
	}
}

func TestSanitizeTimeZone_UnwrapsNestedObject(t *testing.T) {
	for raw, want := range map[string]string{
		"Asia/Tokyo":                     "Asia/Tokyo",
		"  Europe/Rome ":                 "Europe/Rome",
		`{"time_zone": "Asia/Tokyo"}`:    "Asia/Tokyo",
		`{"time_zone": " Europe/Rome"}`:  "Europe/Rome",
		`{"broken json`:                  "",
		"":                               "",
	} {
		if got := sanitizeTimeZone(raw); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", raw, want, got)
		}
	}
}

func TestManager_DispatchByName(t *testing.T) {
	p := NewDateTimePlugin("UTC")
	p.now = fixedNow
	m := NewManager(p)

	decls := m.Declarations()
	if len(decls) != 1 || decls[0].Name != "get_date_time" {
		t.Fatalf("unexpected declarations: %#v", decls)
	}

	if _, err := m.Dispatch(context.Background(), "get_date_time", nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := m.Dispatch(context.Background(), "no_such_tool", nil); err == nil {
		t.Fatalf("expected unknown-tool error")
	}
}
