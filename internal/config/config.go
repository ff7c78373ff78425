package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	Server struct {
		Addr            string
		ShutdownTimeout time.Duration
		AllowedOrigins  []string
	}

	WS struct {
		PingInterval time.Duration
		WriteTimeout time.Duration
		OutboxSize   int
		MessageRate  float64
		MessageBurst int
	}

	Rooms struct {
		// ClaimTimeout closes rooms created over HTTP that nobody ever joins.
		ClaimTimeout time.Duration
	}

	History struct {
		DatabaseURL string // empty keeps history in memory
		QueueSize   int
	}

	Log struct {
		Level  string
		Format string // "json" | "console"
	}
}

// Load reads .env files (if present) and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for unset ones.
func FromEnv() (*Config, error) {
	var c Config
	var errs error
	grab := func(err error) { errs = multierr.Append(errs, err) }

	c.Server.Addr = str("ADDR", ":8080")
	c.Server.ShutdownTimeout = dur("SHUTDOWN_TIMEOUT", 10*time.Second, grab)
	c.Server.AllowedOrigins = list("ALLOWED_ORIGINS")

	c.WS.PingInterval = dur("PING_INTERVAL", 25*time.Second, grab)
	c.WS.WriteTimeout = dur("WRITE_TIMEOUT", 3*time.Second, grab)
	c.WS.OutboxSize = num("OUTBOX_SIZE", 16, grab)
	c.WS.MessageRate = float("MESSAGE_RATE", 20, grab)
	c.WS.MessageBurst = num("MESSAGE_BURST", 40, grab)

	c.Rooms.ClaimTimeout = dur("CLAIM_TIMEOUT", 10*time.Minute, grab)

	c.History.DatabaseURL = str("DATABASE_URL", "")
	c.History.QueueSize = num("HISTORY_QUEUE", 64, grab)

	c.Log.Level = str("LOG_LEVEL", "info")
	c.Log.Format = strings.ToLower(str("LOG_FORMAT", "json"))

	if errs != nil {
		return nil, errs
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs error
	if c.Server.Addr == "" {
		errs = multierr.Append(errs, errors.New("ADDR must not be empty"))
	}
	if c.WS.OutboxSize <= 0 {
		errs = multierr.Append(errs, errors.New("OUTBOX_SIZE must be positive"))
	}
	if c.History.QueueSize <= 0 {
		errs = multierr.Append(errs, errors.New("HISTORY_QUEUE must be positive"))
	}
	if c.WS.MessageRate < 0 || c.WS.MessageBurst <= 0 {
		errs = multierr.Append(errs, errors.New("MESSAGE_RATE must not be negative and MESSAGE_BURST must be positive"))
	}
	if c.WS.WriteTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("WRITE_TIMEOUT must be positive"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = multierr.Append(errs, fmt.Errorf("LOG_FORMAT %q: want json or console", c.Log.Format))
	}
	return errs
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func num(key string, def int, grab func(error)) int {
	v := str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		grab(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func float(key string, def float64, grab func(error)) float64 {
	v := str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		grab(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func dur(key string, def time.Duration, grab func(error)) time.Duration {
	v := str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		grab(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func list(key string) []string {
	var out []string
	for _, part := range strings.Split(str(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
