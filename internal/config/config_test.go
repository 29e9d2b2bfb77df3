package config

import (
	"log/slog"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR",
	"BLE_ADAPTER", "BLE_FILTER_NAME", "BLE_COMPANY_ID",
	"SCALE_DEBOUNCE", "SCALE_TICK", "SCALE_TIMEOUT_TICKS", "SCALE_SENTINEL_IMPEDANCE", "SCALE_BUFFER_SIZE",
	"SQLITE_PATH", "DB_DSN", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_LOG_SQL",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX", "STATION_ID",
	"STATUS_LED_PIN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":8080")
	}
	if got.BLEAdapter != "hci0" {
		t.Errorf("BLEAdapter = %q, want hci0", got.BLEAdapter)
	}
	if got.BLECompanyID != 0 {
		t.Errorf("BLECompanyID = %#x, want 0", got.BLECompanyID)
	}
	if got.ScaleDebounce != 2*time.Second {
		t.Errorf("ScaleDebounce = %v, want 2s", got.ScaleDebounce)
	}
	if got.ScaleTick != time.Second {
		t.Errorf("ScaleTick = %v, want 1s", got.ScaleTick)
	}
	if got.ScaleTimeoutTicks != 60 {
		t.Errorf("ScaleTimeoutTicks = %d, want 60", got.ScaleTimeoutTicks)
	}
	if got.ScaleSentinelImpedance != 500 {
		t.Errorf("ScaleSentinelImpedance = %v, want 500", got.ScaleSentinelImpedance)
	}
	if got.ScaleBufferSize != 4096 {
		t.Errorf("ScaleBufferSize = %d, want 4096", got.ScaleBufferSize)
	}
	if got.MaxOpenConns != 1 || got.MaxIdleConns != 1 {
		t.Errorf("MaxOpenConns/MaxIdleConns = %d/%d, want 1/1", got.MaxOpenConns, got.MaxIdleConns)
	}
	if got.LogSQL {
		t.Errorf("LogSQL = true, want false")
	}
	if got.MQTTPort != 1883 {
		t.Errorf("MQTTPort = %d, want 1883", got.MQTTPort)
	}
	if got.MQTTTopicPrefix != "talon" {
		t.Errorf("MQTTTopicPrefix = %q, want talon", got.MQTTTopicPrefix)
	}
	if got.StationID != "home" {
		t.Errorf("StationID = %q, want home", got.StationID)
	}
	if got.StatusLEDPin != "" {
		t.Errorf("StatusLEDPin = %q, want empty", got.StatusLEDPin)
	}
}

func TestLoadFromEnv_AppEnv_Invalid(t *testing.T) {
	for _, v := range []string{"staging", "qa", "DEV"} {
		t.Run(v, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", v)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", " prod ")
	t.Setenv("BLE_COMPANY_ID", "0x0157")
	t.Setenv("SCALE_DEBOUNCE", "1500ms")
	t.Setenv("SCALE_TIMEOUT_TICKS", "30")
	t.Setenv("DB_LOG_SQL", "true")
	t.Setenv("MQTT_TOPIC_PREFIX", "/bathroom/")
	t.Setenv("STATUS_LED_PIN", "GPIO17")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.AppEnv != "prod" {
		t.Errorf("AppEnv = %q, want prod", got.AppEnv)
	}
	if got.BLECompanyID != 0x0157 {
		t.Errorf("BLECompanyID = %#x, want 0x0157", got.BLECompanyID)
	}
	if got.ScaleDebounce != 1500*time.Millisecond {
		t.Errorf("ScaleDebounce = %v, want 1.5s", got.ScaleDebounce)
	}
	if got.ScaleTimeoutTicks != 30 {
		t.Errorf("ScaleTimeoutTicks = %d, want 30", got.ScaleTimeoutTicks)
	}
	if !got.LogSQL {
		t.Errorf("LogSQL = false, want true")
	}
	if got.MQTTTopicPrefix != "bathroom" {
		t.Errorf("MQTTTopicPrefix = %q, want bathroom", got.MQTTTopicPrefix)
	}
	if got.StatusLEDPin != "GPIO17" {
		t.Errorf("StatusLEDPin = %q, want GPIO17", got.StatusLEDPin)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key string
		val string
	}{
		{"BLE_COMPANY_ID", "0x1FFFF"},
		{"SCALE_DEBOUNCE", "soon"},
		{"SCALE_DEBOUNCE", "0s"},
		{"SCALE_TICK", "-1s"},
		{"SCALE_TIMEOUT_TICKS", "0"},
		{"SCALE_SENTINEL_IMPEDANCE", "ohm"},
		{"SCALE_BUFFER_SIZE", "-3"},
		{"DB_MAX_OPEN_CONNS", "many"},
		{"DB_CONN_MAX_LIFETIME", "forever"},
		{"DB_LOG_SQL", "maybe"},
		{"MQTT_PORT", "mqtt"},
		{"MQTT_TOPIC_PREFIX", "///"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestParseLogLevel_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want slog.Level
	}{
		{name: "debug", in: "debug", want: slog.LevelDebug},
		{name: "info", in: "info", want: slog.LevelInfo},
		{name: "warn", in: "warn", want: slog.LevelWarn},
		{name: "warning", in: "warning", want: slog.LevelWarn},
		{name: "error", in: "error", want: slog.LevelError},
		{name: "case insensitive", in: "DeBuG", want: slog.LevelDebug},
		{name: "trims whitespace", in: "  warn \n", want: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if err != nil {
				t.Fatalf("parseLogLevel(%q) error = %v, want nil", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel_Invalid(t *testing.T) {
	for _, in := range []string{"", "nope", "warns", "1"} {
		got, err := parseLogLevel(in)
		if err == nil {
			t.Fatalf("parseLogLevel(%q) error = nil, want non-nil", in)
		}
		if got != slog.LevelInfo {
			t.Errorf("parseLogLevel(%q) = %v, want %v on error", in, got, slog.LevelInfo)
		}
	}
}
