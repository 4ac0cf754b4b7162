// Package cmd wires the biosignal command line interface.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/biosignal-go/cmd/boards"
	"github.com/tphakala/biosignal-go/cmd/config"
	"github.com/tphakala/biosignal-go/cmd/serve"
	"github.com/tphakala/biosignal-go/cmd/stream"
	"github.com/tphakala/biosignal-go/internal/buildinfo"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// app holds state shared between the root command hooks and Execute.
type app struct {
	build      *buildinfo.Context
	settings   *conf.Settings
	configFile string
	central    *logger.CentralLogger
	sentry     bool
}

// Execute builds the root command, runs it with ctx and releases logging
// and telemetry resources afterwards.
func Execute(ctx context.Context, build *buildinfo.Context) error {
	a := &app{build: build, settings: &conf.Settings{}}
	defer a.close()
	return a.rootCommand().ExecuteContext(ctx)
}

// RootCommand creates the root command. Settings are loaded into settings
// before any subcommand that needs them runs.
func RootCommand(build *buildinfo.Context, settings *conf.Settings) *cobra.Command {
	a := &app{build: build, settings: settings}
	return a.rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "biosignal",
		Short:         "Biosignal acquisition service",
		Version:       a.build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, a); err != nil {
		// Flag definitions are static; a binding failure is a programming error.
		panic(err)
	}

	boardsCmd := boards.Command()
	rootCmd.AddCommand(
		stream.Command(a.settings),
		serve.Command(a.settings, a.build),
		config.Command(a.settings),
		boardsCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Listing board types needs no configuration
		if cmd.Name() == boardsCmd.Name() {
			return nil
		}
		return a.initialize()
	}

	return rootCmd
}

// initialize loads configuration, installs the global logger and enables
// Sentry when configured.
func (a *app) initialize() error {
	loaded, err := conf.Load(a.configFile)
	if err != nil {
		return err
	}
	*a.settings = *loaded

	if a.settings.Debug {
		a.settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if a.settings.Logging.Console != nil {
			a.settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&a.settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	a.central = central

	log := logger.Global().Module("main")
	log.Info("starting biosignal-go",
		logger.String("version", a.build.GetVersion()),
		logger.String("build_date", a.build.GetBuildDate()),
		logger.String("config_file", viper.ConfigFileUsed()))

	if a.settings.Sentry.Enabled {
		if err := errors.InitSentry(a.settings.Sentry.DSN, a.settings.Sentry.Environment, a.build.Release(), a.settings.Debug); err != nil {
			log.Warn("sentry initialization failed, error reporting disabled", logger.Error(err))
			return nil
		}
		errors.SetTelemetryReporter(errors.NewSentryReporter(true))
		a.sentry = true
	}
	return nil
}

func (a *app) close() {
	if a.sentry {
		errors.FlushTelemetry(telemetryFlushTimeout)
	}
	if a.central != nil {
		_ = a.central.Flush()
		_ = a.central.Close()
	}
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, a *app) error {
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to config file (default: search ./config.yaml, ~/.config/biosignal-go, /etc/biosignal-go)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
