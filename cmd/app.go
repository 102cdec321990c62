package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/notify"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// app holds what every command needs: the loaded configuration, a logger,
// the notifier and the shared Sass compiler.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	notifier notify.Notifier
	sass     *build.DartSass
	pipeline *pipeline.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	a := &app{
		cfg:      cfg,
		logger:   logger,
		notifier: notify.New(cfg.Notify.Desktop, logger),
		sass:     build.NewDartSass(cfg.Styles.SassBinary),
	}
	a.pipeline = pipeline.FromConfig(cfg, logger, a.notifier, a.sass)
	return a, nil
}

func (a *app) Close() {
	if err := a.sass.Close(); err != nil {
		a.logger.Warn(context.Background(), err, "Failed to stop dart sass")
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
