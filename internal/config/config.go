// Package config loads runtime settings from the environment and project
// files from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. Zero values mean "not configured".
type Config struct {
	// Logging.
	LogLevel string
	LogJSON  bool

	// Controller.
	Heartbeat          time.Duration
	EndTimeout         time.Duration
	ExceptionCapacity  int
	AllowUnknownSkills bool
	WarningsAsErrors   bool

	// HTTP control API.
	HTTPAddr string

	// MQTT bridge, disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTClientID string
	MQTTPrefix   string

	// Redis slot store, publisher and control lock, disabled when RedisAddr is empty.
	RedisAddr   string
	RedisPrefix string
	LockTTL     time.Duration

	// Shared slot protection. SlotKeys are base64 AES-256 keys, the first
	// one active; PrivateSlots are name patterns kept in process memory.
	SlotKeys     []string
	PrivateSlots []string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
}

// Load reads an optional .env file, then BONSAI_* environment variables.
func Load(envFiles ...string) (Config, error) {
	// a missing .env is not an error
	_ = godotenv.Load(envFiles...)

	cfg := Config{
		LogLevel:           envStr("BONSAI_LOG_LEVEL", "info"),
		LogJSON:            envBool("BONSAI_LOG_JSON", false),
		Heartbeat:          envDuration("BONSAI_HEARTBEAT", time.Second),
		EndTimeout:         envDuration("BONSAI_END_TIMEOUT", 2*time.Second),
		ExceptionCapacity:  envInt("BONSAI_EXCEPTION_CAPACITY", 100),
		AllowUnknownSkills: envBool("BONSAI_ALLOW_UNKNOWN_SKILLS", false),
		WarningsAsErrors:   envBool("BONSAI_WARNINGS_AS_ERRORS", false),
		HTTPAddr:           envStr("BONSAI_HTTP_ADDR", ":8080"),
		MQTTBroker:         envStr("BONSAI_MQTT_BROKER", ""),
		MQTTClientID:       envStr("BONSAI_MQTT_CLIENT_ID", "bonsai"),
		MQTTPrefix:         envStr("BONSAI_MQTT_PREFIX", "bonsai"),
		RedisAddr:          envStr("BONSAI_REDIS_ADDR", ""),
		RedisPrefix:        envStr("BONSAI_REDIS_PREFIX", "bonsai:"),
		LockTTL:            envDuration("BONSAI_LOCK_TTL", 10*time.Second),
		SlotKeys:           envList("BONSAI_SLOT_KEYS"),
		PrivateSlots:       envList("BONSAI_PRIVATE_SLOTS"),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "bonsai"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Heartbeat < 0 {
		return fmt.Errorf("config: BONSAI_HEARTBEAT must not be negative")
	}
	if c.EndTimeout <= 0 {
		return fmt.Errorf("config: BONSAI_END_TIMEOUT must be positive")
	}
	if c.ExceptionCapacity <= 0 {
		return fmt.Errorf("config: BONSAI_EXCEPTION_CAPACITY must be positive")
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		return fmt.Errorf("config: BONSAI_LOCK_TTL must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envDuration accepts Go durations ("1500ms") and bare milliseconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
