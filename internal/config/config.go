package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the simulation server listens on.
	DefaultAddr = ":43170"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxSessions bounds concurrent visitor sessions. Zero disables the limit.
	DefaultMaxSessions = 64

	// DefaultTickHz is the fixed simulation step rate for every session.
	DefaultTickHz = 60
	// DefaultFrameHz is the cadence at which state frames are streamed to clients.
	DefaultFrameHz = 30
	// DefaultFrameBudgetBps caps outbound frame bytes per session each second.
	// Zero disables the budget.
	DefaultFrameBudgetBps = 64000

	// DefaultCaptureMaxSessions limits retained capture recordings on disk.
	DefaultCaptureMaxSessions = 16
	// DefaultCaptureMaxAge controls how long capture recordings are kept on disk.
	DefaultCaptureMaxAge = 72 * time.Hour
	// DefaultCaptureWindow bounds how frequently capture downloads may be requested.
	DefaultCaptureWindow = time.Minute
	// DefaultCaptureBurst sets how many capture downloads may be made per window.
	DefaultCaptureBurst = 1

	// DefaultLogLevel controls verbosity for simulation server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "simcore.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the simulation server.
type Config struct {
	Address            string
	AllowedOrigins     []string
	MaxPayloadBytes    int64
	PingInterval       time.Duration
	MaxSessions        int
	TickHz             int
	FrameHz            int
	FrameBudgetBps     int
	TLSCertPath        string
	TLSKeyPath         string
	AdminToken         string
	AuthSecret         string
	WorldPath          string
	CaptureDir         string
	CaptureMaxSessions int
	CaptureMaxAge      time.Duration
	CaptureWindow      time.Duration
	CaptureBurst       int
	Logging            LogConfig
}

// LogConfig captures structured logging configuration options.
type LogConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// CaptureEnabled reports whether session capture recording is configured.
func (c *Config) CaptureEnabled() bool {
	return c != nil && strings.TrimSpace(c.CaptureDir) != ""
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:            getString("SIMCORE_ADDR", DefaultAddr),
		AllowedOrigins:     parseList(os.Getenv("SIMCORE_ALLOWED_ORIGINS")),
		MaxPayloadBytes:    DefaultMaxPayloadBytes,
		PingInterval:       DefaultPingInterval,
		MaxSessions:        DefaultMaxSessions,
		TickHz:             DefaultTickHz,
		FrameHz:            DefaultFrameHz,
		FrameBudgetBps:     DefaultFrameBudgetBps,
		TLSCertPath:        strings.TrimSpace(os.Getenv("SIMCORE_TLS_CERT")),
		TLSKeyPath:         strings.TrimSpace(os.Getenv("SIMCORE_TLS_KEY")),
		AdminToken:         strings.TrimSpace(os.Getenv("SIMCORE_ADMIN_TOKEN")),
		AuthSecret:         strings.TrimSpace(os.Getenv("SIMCORE_AUTH_SECRET")),
		WorldPath:          strings.TrimSpace(os.Getenv("SIMCORE_WORLD_PATH")),
		CaptureDir:         strings.TrimSpace(os.Getenv("SIMCORE_CAPTURE_DIR")),
		CaptureMaxSessions: DefaultCaptureMaxSessions,
		CaptureMaxAge:      DefaultCaptureMaxAge,
		CaptureWindow:      DefaultCaptureWindow,
		CaptureBurst:       DefaultCaptureBurst,
		Logging: LogConfig{
			Level:      strings.TrimSpace(getString("SIMCORE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("SIMCORE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_MAX_SESSIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_MAX_SESSIONS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxSessions = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_TICK_HZ")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_TICK_HZ must be a positive integer, got %q", raw))
		} else {
			cfg.TickHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_FRAME_HZ")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_FRAME_HZ must be a positive integer, got %q", raw))
		} else {
			cfg.FrameHz = value
		}
	}

	if cfg.FrameHz > cfg.TickHz {
		problems = append(problems, fmt.Sprintf("SIMCORE_FRAME_HZ must not exceed SIMCORE_TICK_HZ, got %d > %d", cfg.FrameHz, cfg.TickHz))
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_FRAME_BUDGET_BPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_FRAME_BUDGET_BPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.FrameBudgetBps = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_CAPTURE_MAX_SESSIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_CAPTURE_MAX_SESSIONS must be a non-negative integer, got %q", raw))
		} else {
			cfg.CaptureMaxSessions = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_CAPTURE_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_CAPTURE_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.CaptureMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_CAPTURE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_CAPTURE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.CaptureWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_CAPTURE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_CAPTURE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.CaptureBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMCORE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMCORE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SIMCORE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "SIMCORE_TLS_CERT and SIMCORE_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
