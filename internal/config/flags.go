package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/filevault/internal/flagx"
)

// parseFlags overlays cfg with the flags listed in the package doc. Other
// arguments are filtered out with flagx.FilterArgs first, so -c and any
// positional arguments do not upset the flag set.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-D", "-r", "-a", "-l", "-f", "-n"}, "-n")

	fs := flag.NewFlagSet("filevault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabaseDSN, "D", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.DBDriver, "r", cfg.DBDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&cfg.APIAddr, "a", cfg.APIAddr, "control API listen address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text or json)")
	noAPI := fs.Bool("n", !cfg.APIEnabled, "disable the control API")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.APIEnabled = !*noAPI
	return nil
}
