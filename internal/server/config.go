// Package server provides configuration helpers that define runtime defaults,
// validation, and accept-throttling parameters for the chat service.
package server

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// DefaultServerName is the reserved username of server-authored frames.
const DefaultServerName = "__Server__"

// RateLimitConfig defines the token bucket applied to newly accepted
// connections. A zero Burst disables throttling.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the server configuration settings.
type Config struct {
	// Port is the TCP listen address, e.g. ":8888".
	Port string `yaml:"port"`
	// Log enables logging; when false all log output is discarded.
	Log bool `yaml:"log"`
	// ReadBufferSize bounds a single payload read.
	ReadBufferSize int `yaml:"read_buffer_size"`
	// ServerName is the reserved name used on server-authored frames.
	ServerName string `yaml:"server_name"`
	// TimeWindow is the largest accepted distance between a frame timestamp
	// and the server clock.
	TimeWindow time.Duration `yaml:"time_window"`
	// AuthTimeout bounds the wait for the first frame; zero waits forever.
	AuthTimeout time.Duration `yaml:"auth_timeout"`
	// WriteTimeout bounds a single frame write to a client.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WebSocketAddr enables the WebSocket transport when non-empty.
	WebSocketAddr  string          `yaml:"websocket_addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	AcceptRate     RateLimitConfig `yaml:"accept_rate"`

	Logger *slog.Logger `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		Port:            ":8888",
		Log:             true,
		ReadBufferSize:  protocol.DefaultChunkSize,
		ServerName:      DefaultServerName,
		TimeWindow:      30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins: []string{
			"http://localhost:8888",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8888"
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = protocol.DefaultChunkSize
	}

	if cfg.ServerName == "" || len(cfg.ServerName) > protocol.UsernameSize {
		cfg.ServerName = DefaultServerName
	}

	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = 30 * time.Second
	}

	if cfg.AuthTimeout < 0 {
		cfg.AuthTimeout = 0
	}

	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.AcceptRate.Burst < 0 {
		cfg.AcceptRate.Burst = 0
	}

	if cfg.AcceptRate.Burst > 0 && cfg.AcceptRate.RefillInterval <= 0 {
		cfg.AcceptRate.RefillInterval = time.Second
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// logger returns the logger the server writes through.
func (c Config) logger() *slog.Logger {
	if !c.Log {
		return slog.New(slog.DiscardHandler)
	}
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

// LoadConfigFile reads a YAML configuration file over the defaults.
// Environment variables take precedence over the file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("CHAT_PORT"); port != "" {
		cfg.Port = normalizePort(port)
	}

	if logging := os.Getenv("CHAT_LOG"); logging != "" {
		cfg.Log = parseBoolValue(logging, cfg.Log)
	}

	if size := os.Getenv("CHAT_READ_BUFFER_SIZE"); size != "" {
		cfg.ReadBufferSize = parseIntValue(size, cfg.ReadBufferSize)
	}

	if name := os.Getenv("CHAT_SERVER_NAME"); name != "" {
		cfg.ServerName = name
	}

	if addr := os.Getenv("CHAT_WS_ADDR"); addr != "" {
		cfg.WebSocketAddr = addr
	}

	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if burst := os.Getenv("CHAT_ACCEPT_BURST"); burst != "" {
		cfg.AcceptRate.Burst = parseIntValue(burst, cfg.AcceptRate.Burst)
	}

	if interval := os.Getenv("CHAT_ACCEPT_INTERVAL"); interval != "" {
		cfg.AcceptRate.RefillInterval = parseSeconds(interval, cfg.AcceptRate.RefillInterval)
	}
}

// normalizePort accepts "8888" as well as ":8888" or "host:8888".
func normalizePort(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
