package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fragring/cmd/config"
	"github.com/tphakala/fragring/cmd/layout"
	"github.com/tphakala/fragring/cmd/simulate"
	"github.com/tphakala/fragring/internal/buildinfo"
	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/logger"
	"github.com/tphakala/fragring/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, info buildinfo.BuildInfo) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "fragring",
		Short:         "Fragmented ring buffer toolkit for DSP audio pipelines",
		Version:       info.Version(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configPath); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		simulate.Command(settings),
		layout.Command(settings),
		config.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Writing a default config must work even when the current one is broken
		if cmd.Annotations[config.SkipInit] != "" {
			return nil
		}
		return initialize(settings, configPath, info)
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads the configuration, which by now includes bound flags,
// and sets up logging and error telemetry.
func initialize(settings *conf.Settings, configPath string, info buildinfo.BuildInfo) error {
	loaded, err := conf.Load(configPath)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if err := telemetry.Init(&settings.Telemetry, info.Version()); err != nil {
		// Telemetry is optional, keep running without it
		logger.Global().Module("main").Warn("error telemetry unavailable", logger.Error(err))
	}

	logger.Global().Module("main").Debug("initialized",
		logger.String("version", info.Version()),
		logger.String("run_id", info.RunID()))
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configPath *string) error {
	rootCmd.PersistentFlags().StringVarP(configPath, "config", "c", "", "Path to the config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
