package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/boxlabel/cmd"
	"github.com/tphakala/boxlabel/internal/app"
	"github.com/tphakala/boxlabel/internal/buildinfo"
	"github.com/tphakala/boxlabel/internal/conf"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/logger"
)

// Set at link time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate = ""
	commit    = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	info := buildinfo.New(version, buildDate, commit)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	if err := setupLogging(settings); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, info.Release()); err != nil {
			logger.Global().Module("main").Warn("Telemetry disabled", logger.Error(err))
		}
		defer errors.FlushTelemetry(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(settings)
	rootCmd := cmd.RootCommand(a, info.String())
	execErr := rootCmd.ExecuteContext(ctx)
	if err := a.Close(); err != nil && execErr == nil {
		execErr = err
	}
	if execErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", execErr)
		return 1
	}
	return 0
}

// setupLogging replaces the fallback console logger with one configured from
// settings.
func setupLogging(settings *conf.Settings) error {
	level := settings.Main.Log.Level
	if settings.Debug {
		level = "debug"
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     settings.Main.Log.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		FileOutput: &logger.FileOutput{
			Enabled: settings.Main.Log.File != "",
			Path:    settings.Main.Log.File,
			Level:   level,
		},
	}
	cl, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return err
	}
	logger.SetGlobal(cl)
	return nil
}
