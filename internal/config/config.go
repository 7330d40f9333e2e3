package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/storage"
)

// Config holds runtime settings for filevault.
type Config struct {
	DataDir     string
	DBDriver    string
	DatabaseDSN string

	APIAddr         string
	APIEnabled      bool
	AuthRateLimit   int
	AuthRateWindow  time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64

	LogLevel  string
	LogFormat string
}

// DefaultMaxUploadBytes caps a single control API upload.
const DefaultMaxUploadBytes int64 = 1 << 30

// LoadDefaults populates c with defaults. The data directory is
// ~/.filevault; the DSN is derived from it later unless set explicitly.
func (c *Config) LoadDefaults() {
	c.DataDir = ".filevault"
	if home, err := os.UserHomeDir(); err == nil {
		c.DataDir = filepath.Join(home, ".filevault")
	}
	c.DBDriver = storage.DriverSQLite
	c.DatabaseDSN = ""
	c.APIAddr = "127.0.0.1:8765"
	c.APIEnabled = true
	c.AuthRateLimit = 5
	c.AuthRateWindow = time.Minute
	c.ShutdownTimeout = 5 * time.Second
	c.MaxUploadBytes = DefaultMaxUploadBytes
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// BlobDir is the directory holding encrypted file blobs.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "data")
}

// DSN returns DatabaseDSN, or the sqlite file inside DataDir when it is
// empty.
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return storage.SQLiteDSN(filepath.Join(c.DataDir, "vault.db"))
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data directory must be set"))
	}
	switch c.DBDriver {
	case storage.DriverSQLite:
	case storage.DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Errorf("driver %q needs a database DSN", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DBDriver))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if c.APIEnabled && c.APIAddr == "" {
		errs = append(errs, errors.New("api address must be set when the api is enabled"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.AuthRateLimit > 0 && c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("auth rate window must be positive"))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, the environment, an optional JSON
// file and args (without the program name). Later sources take precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	loadDotEnv(".env")
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
