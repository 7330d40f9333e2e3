package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/filevault/internal/app"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/config"
	"github.com/dmitrijs2005/filevault/internal/logging"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, ring := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	a := app.NewApp(cfg, logger, ring)
	defer a.Close()

	if err := a.Open(ctx); err != nil {
		return err
	}
	if err := a.Login(ctx); err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return errors.New("too many failed attempts")
		}
		return err
	}
	return a.Run(ctx)
}
