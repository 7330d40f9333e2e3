package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

const envPrefix = "FILEVAULT_"

// loadDotEnv exports the variables in path that are not already set. A
// missing file is not an error.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring env file", "path", path, "error", err)
	}
}

type lookupFunc func(string) (string, bool)

// parseEnv overlays cfg with FILEVAULT_* variables.
func parseEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DATA_DIR", &cfg.DataDir)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DATABASE_DSN", &cfg.DatabaseDSN)
	str("API_ADDR", &cfg.APIAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup(envPrefix + "API_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sAPI_ENABLED: %w", envPrefix, err)
		}
		cfg.APIEnabled = b
	}
	if v, ok := lookup(envPrefix + "AUTH_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sAUTH_RATE_LIMIT: %w", envPrefix, err)
		}
		cfg.AuthRateLimit = n
	}
	if v, ok := lookup(envPrefix + "MAX_UPLOAD_SIZE"); ok && v != "" {
		n, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_SIZE: %w", envPrefix, err)
		}
		cfg.MaxUploadBytes = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"AUTH_RATE_WINDOW", &cfg.AuthRateWindow},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(envPrefix + d.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// parseSize reads sizes like "512MiB", "2 GB" or a plain byte count.
func parseSize(v string) (int64, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", v)
	}
	return int64(n), nil
}
