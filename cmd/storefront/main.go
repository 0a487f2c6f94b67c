// Package main is the single storefront binary. One image serves three
// deployable roles (web, worker, beat); APP_ROLE picks which one this
// process runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/internal/runtime"
	"github.com/taqastore/storefront/pkg/logger"
)

const usage = "usage: set APP_ROLE to one of web|worker|beat"

func main() {
	os.Exit(run())
}

func run() int {
	// Local development convenience; deployed environments inject real
	// variables and ship no .env file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		return 1
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	role, err := runtime.ParseRole(cfg.App.Role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n%s\n", err, usage)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.New(cfg, log).Run(ctx, role); err != nil {
		if errors.Is(err, runtime.ErrUnknownRole) {
			fmt.Fprintf(os.Stderr, "storefront: %v\n%s\n", err, usage)
			return 1
		}
		log.WithError(err).Errorf("%s role failed", role)
		return 1
	}
	return 0
}
