package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SHIFT_START_HOUR", "SHIFT_END_HOUR", "SHIFT_HOURS_PER_DAY", "MESSAGE_TIMEOUT", "MQTT_TOPIC"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()

	if cfg.Shift.StartHour != 6 || cfg.Shift.EndHour != 18 || cfg.Shift.HoursPerDay != 12 || cfg.Shift.UTCOffsetHours != 7 {
		t.Fatalf("unexpected shift defaults: %+v", cfg.Shift)
	}
	if cfg.Tracking.MessageTimeout != 10*time.Second || cfg.Tracking.MinUpdateInterval != time.Second {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
	if cfg.MQTT.Topic != "NgocHiepIOT/data" {
		t.Fatalf("MQTT topic = %q", cfg.MQTT.Topic)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SHIFT_END_HOUR", "20")
	t.Setenv("SHIFT_HOURS_PER_DAY", "14.5")
	t.Setenv("ERROR_TICK_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example,,")

	cfg := LoadConfig()
	if cfg.Shift.EndHour != 20 || cfg.Shift.HoursPerDay != 14.5 {
		t.Fatalf("shift overrides not applied: %+v", cfg.Shift)
	}
	if cfg.Tracking.ErrorTickInterval != 30*time.Second {
		t.Fatalf("ErrorTickInterval = %v", cfg.Tracking.ErrorTickInterval)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://b.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestParseHelpersFallBack(t *testing.T) {
	if got := parseInt("six", 6); got != 6 {
		t.Fatalf("parseInt fallback = %d", got)
	}
	if got := parseFloat("", 12); got != 12 {
		t.Fatalf("parseFloat fallback = %v", got)
	}
	if got := parseDuration("-5s", time.Second); got != time.Second {
		t.Fatalf("parseDuration fallback = %v", got)
	}
}
