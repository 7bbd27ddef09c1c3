// Package config loads relay configuration from environment variables and
// command-line flags. Flags win over the environment; both win over defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "VIDEO_CALL_RELAY_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarMode            = "VIDEO_CALL_RELAY_MODE"
	envVarLogFormat       = "VIDEO_CALL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "VIDEO_CALL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "VIDEO_CALL_RELAY_SHUTDOWN_TIMEOUT"

	// Call log persistence.
	envVarCallLogPath  = "CALL_LOG_PATH"
	envVarCallLogLimit = "CALL_LOG_LIMIT"

	// Inbound signaling hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultMode            = ModeDev
	DefaultShutdownTimeout = 10 * time.Second

	DefaultCallLogPath  = "calls.db"
	DefaultCallLogLimit = 5

	DefaultMaxSignalingMessageBytes      = 64 * 1024
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingWSPingInterval       = 30 * time.Second
	DefaultSignalingWSIdleTimeout        = 60 * time.Second

	// DefaultSTUNURL is the fallback STUN server the client binary offers.
	DefaultSTUNURL = "stun:stun.l.google.com:19302"
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	Mode           Mode

	LogFormat LogFormat
	LogLevel  slog.Level

	ShutdownTimeout time.Duration

	CallLogPath  string
	CallLogLimit int

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingWSPingInterval       time.Duration
	SignalingWSIdleTimeout        time.Duration
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	mode := envOrDefault(lookup, envVarMode, string(DefaultMode))

	logFormat := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode))
	logLevel := envOrDefault(lookup, envVarLogLevel, "info")

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	allowedOrigins := envOrDefault(lookup, envVarAllowedOrigins, "")
	callLogPath := envOrDefault(lookup, envVarCallLogPath, DefaultCallLogPath)

	callLogLimit, err := envIntOrDefault(lookup, envVarCallLogLimit, DefaultCallLogLimit)
	if err != nil {
		return Config{}, err
	}
	maxMsgBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMsgsPerSec, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	idleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("video-call-relay", flag.ContinueOnError)
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "TCP address for the HTTP/WebSocket listener")
	fs.StringVar(&mode, "mode", mode, "deployment mode: dev or prod")
	fs.StringVar(&logFormat, "log-format", logFormat, "log output format: text or json")
	fs.StringVar(&logLevel, "log-level", logLevel, "minimum log level: debug, info, warn, error")
	fs.StringVar(&callLogPath, "call-log", callLogPath, "path to the SQLite call log database")
	fs.IntVar(&callLogLimit, "call-log-limit", callLogLimit, "maximum call records returned by the reporting endpoint")
	fs.StringVar(&allowedOrigins, "allowed-origins", allowedOrigins, "comma-separated Origin allowlist (empty allows all)")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "graceful shutdown deadline")
	fs.IntVar(&maxMsgBytes, "max-message-bytes", maxMsgBytes, "maximum inbound signaling message size in bytes")
	fs.IntVar(&maxMsgsPerSec, "max-messages-per-second", maxMsgsPerSec, "per-connection inbound signaling message rate limit")
	fs.DurationVar(&pingInterval, "ws-ping-interval", pingInterval, "websocket keepalive ping interval")
	fs.DurationVar(&idleTimeout, "ws-idle-timeout", idleTimeout, "websocket idle read deadline")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:     listenAddr,
		AllowedOrigins: splitCommaList(allowedOrigins),

		ShutdownTimeout: shutdownTimeout,

		CallLogPath:  callLogPath,
		CallLogLimit: callLogLimit,

		MaxSignalingMessageBytes:      int64(maxMsgBytes),
		MaxSignalingMessagesPerSecond: maxMsgsPerSec,
		SignalingWSPingInterval:       pingInterval,
		SignalingWSIdleTimeout:        idleTimeout,
	}

	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeDev:
		cfg.Mode = ModeDev
	case ModeProd:
		cfg.Mode = ModeProd
	default:
		return Config{}, fmt.Errorf("unsupported mode %q (want dev or prod)", mode)
	}

	switch LogFormat(strings.ToLower(strings.TrimSpace(logFormat))) {
	case LogFormatText:
		cfg.LogFormat = LogFormatText
	case LogFormatJSON:
		cfg.LogFormat = LogFormatJSON
	default:
		return Config{}, fmt.Errorf("unsupported log format %q (want text or json)", logFormat)
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.CallLogLimit <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarCallLogLimit)
	}
	if cfg.MaxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	if cfg.SignalingWSPingInterval >= cfg.SignalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s must be shorter than %s", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}

	return cfg, nil
}

// NewLogger builds the process-wide slog.Logger from the loaded config.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func defaultLogFormatForMode(mode string) string {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeProd:
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", s)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitCommaList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
