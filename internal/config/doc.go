// Package config loads runtime configuration for filevault.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed FILEVAULT_, optionally read from a
//     .env file in the working directory.
//  3. Optional JSON file selected with -c or -config.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-d string   data directory (database and blobs)
//	-D string   database DSN
//	-r string   database driver: sqlite or pgx
//	-a string   control API listen address
//	-l string   log level: debug, info, warn, error
//	-f string   log format: text or json
//	-n          disable the control API
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "1m" or
// integer nanoseconds:
//
//	{
//	  "data_dir": "/home/me/.filevault",
//	  "db_driver": "sqlite",
//	  "api_addr": "127.0.0.1:8765",
//	  "api_enabled": true,
//	  "log_level": "info",
//	  "auth_rate_window": "1m",
//	  "shutdown_timeout": "5s"
//	}
package config
