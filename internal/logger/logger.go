// Package logger provides per-subsystem structured loggers.
// Author: momentics <momentics@gmail.com>
//
// Levels are configured through the environment:
//   - HIOLOAD_LOG_LEVEL: per-subsystem levels plus a default,
//     e.g. "reactor=debug,client=warn,info"
//   - HIOLOAD_LOG_FORMAT: "text" (default) or "json"
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format is the log output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config holds the parsed logging configuration.
type Config struct {
	DefaultLevel    slog.Level
	SubsystemLevels map[string]slog.Level
	Format          Format
}

// LevelFor returns the level configured for subsystem.
func (c *Config) LevelFor(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	mu      sync.RWMutex
	output  io.Writer = os.Stderr
	cfg     *Config
	cfgOnce sync.Once
	cache   = map[string]*slog.Logger{}
)

// ConfigFromEnv parses the environment once and caches the result.
func ConfigFromEnv() *Config {
	cfgOnce.Do(func() {
		cfg = Parse(os.Getenv("HIOLOAD_LOG_LEVEL"), os.Getenv("HIOLOAD_LOG_FORMAT"))
	})
	return cfg
}

// Parse builds a Config from the level and format strings.
func Parse(levels, format string) *Config {
	c := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
	}
	for _, part := range strings.Split(levels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if level, ok := parseLevel(lvl); ok {
				c.SubsystemLevels[strings.TrimSpace(name)] = level
			}
			continue
		}
		if level, ok := parseLevel(part); ok {
			c.DefaultLevel = level
		}
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		c.Format = FormatJSON
	}
	return c
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Logger returns the logger of subsystem, tagged with a "subsystem"
// attribute.
func Logger(subsystem string) *slog.Logger {
	mu.RLock()
	l, ok := cache[subsystem]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := cache[subsystem]; ok {
		return l
	}
	c := ConfigFromEnv()
	opts := &slog.HandlerOptions{Level: c.LevelFor(subsystem)}
	var h slog.Handler
	if c.Format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	l = slog.New(h).With("subsystem", subsystem)
	cache[subsystem] = l
	return l
}

// SetOutput redirects every logger created afterwards and drops cached
// ones. Intended for CLIs and tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	cache = map[string]*slog.Logger{}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
