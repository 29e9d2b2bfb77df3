package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	BLEAdapter    string
	BLEFilterName string
	BLECompanyID  uint16

	ScaleDebounce          time.Duration
	ScaleTick              time.Duration
	ScaleTimeoutTicks      int
	ScaleSentinelImpedance float64
	ScaleBufferSize        int

	SQLitePath      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
	StationID       string

	// StatusLEDPin is a periph GPIO name such as "GPIO17". Empty disables the LED.
	StatusLEDPin string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := envString("HTTP_ADDR", ":8080")

	bleAdapter := envString("BLE_ADAPTER", "hci0")
	bleFilterName := envString("BLE_FILTER_NAME", "")

	companyIDStr := envString("BLE_COMPANY_ID", "0")
	companyID, err := strconv.ParseUint(companyIDStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BLE_COMPANY_ID %q: %w", companyIDStr, err)
	}

	debounce, err := envDuration("SCALE_DEBOUNCE", "2s")
	if err != nil {
		return Config{}, err
	}
	if debounce <= 0 {
		return Config{}, fmt.Errorf("SCALE_DEBOUNCE must be positive, got %v", debounce)
	}

	tick, err := envDuration("SCALE_TICK", "1s")
	if err != nil {
		return Config{}, err
	}
	if tick <= 0 {
		return Config{}, fmt.Errorf("SCALE_TICK must be positive, got %v", tick)
	}

	timeoutTicks, err := envInt("SCALE_TIMEOUT_TICKS", "60")
	if err != nil {
		return Config{}, err
	}
	if timeoutTicks <= 0 {
		return Config{}, fmt.Errorf("SCALE_TIMEOUT_TICKS must be positive, got %d", timeoutTicks)
	}

	sentinelStr := envString("SCALE_SENTINEL_IMPEDANCE", "500")
	sentinel, err := strconv.ParseFloat(sentinelStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCALE_SENTINEL_IMPEDANCE %q: %w", sentinelStr, err)
	}

	bufferSize, err := envInt("SCALE_BUFFER_SIZE", "4096")
	if err != nil {
		return Config{}, err
	}
	if bufferSize <= 0 {
		return Config{}, fmt.Errorf("SCALE_BUFFER_SIZE must be positive, got %d", bufferSize)
	}

	sqlitePath := envString("SQLITE_PATH", "data/talon.db")
	dsn := envString("DB_DSN", "")

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}

	logSQLStr := envString("DB_LOG_SQL", "false")
	logSQL, err := strconv.ParseBool(logSQLStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_SQL %q: %w", logSQLStr, err)
	}

	mqttBroker := envString("MQTT_BROKER", "localhost")
	mqttPort, err := envInt("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}
	mqttClientID := envString("MQTT_CLIENT_ID", "talon")
	mqttTopicPrefix := strings.Trim(envString("MQTT_TOPIC_PREFIX", "talon"), "/")
	if mqttTopicPrefix == "" {
		return Config{}, fmt.Errorf("MQTT_TOPIC_PREFIX must not be empty")
	}
	stationID := envString("STATION_ID", "home")

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: httpAddr,

		BLEAdapter:    bleAdapter,
		BLEFilterName: bleFilterName,
		BLECompanyID:  uint16(companyID),

		ScaleDebounce:          debounce,
		ScaleTick:              tick,
		ScaleTimeoutTicks:      timeoutTicks,
		ScaleSentinelImpedance: sentinel,
		ScaleBufferSize:        bufferSize,

		SQLitePath:      sqlitePath,
		DSN:             dsn,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		LogSQL:          logSQL,

		MQTTBroker:      mqttBroker,
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTTopicPrefix: mqttTopicPrefix,
		StationID:       stationID,

		StatusLEDPin: envString("STATUS_LED_PIN", ""),
	}, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key, def string) (int, error) {
	s := envString(key, def)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := envString(key, def)
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
