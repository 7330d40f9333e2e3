package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Pointer fields
// distinguish "absent" from a zero value, so a partial file only overrides
// what it names.
type JsonConfig struct {
	DataDir         *string         `json:"data_dir"`
	DBDriver        *string         `json:"db_driver"`
	DatabaseDSN     *string         `json:"database_dsn"`
	APIAddr         *string         `json:"api_addr"`
	APIEnabled      *bool           `json:"api_enabled"`
	AuthRateLimit   *int            `json:"auth_rate_limit"`
	AuthRateWindow  *timex.Duration `json:"auth_rate_window"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
	MaxUploadSize   *string         `json:"max_upload_size"`
	LogLevel        *string         `json:"log_level"`
	LogFormat       *string         `json:"log_format"`
}

// parseJSON overlays cfg with the file named by -c/-config in args. No
// flag means no change.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DBDriver, jc.DBDriver)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.APIAddr, jc.APIAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	if jc.APIEnabled != nil {
		cfg.APIEnabled = *jc.APIEnabled
	}
	if jc.AuthRateLimit != nil {
		cfg.AuthRateLimit = *jc.AuthRateLimit
	}
	if jc.AuthRateWindow != nil {
		cfg.AuthRateWindow = jc.AuthRateWindow.Duration
	}
	if jc.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = jc.ShutdownTimeout.Duration
	}
	if jc.MaxUploadSize != nil {
		n, err := parseSize(*jc.MaxUploadSize)
		if err != nil {
			return fmt.Errorf("config file %s: max_upload_size: %w", path, err)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
