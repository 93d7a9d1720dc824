// Command ragserver serves and administers the hybrid retrieval engine for knowledge points.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/app"
	"github.com/codevoyager1984/math-agent/internal/config"
	logpkg "github.com/codevoyager1984/math-agent/internal/logger"
	"github.com/codevoyager1984/math-agent/internal/version"
)

type globalFlags struct {
	env        string
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "ragserver",
		Short:         "Hybrid vector and full-text retrieval with reranking for math knowledge points",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// a missing .env is fine
			_ = godotenv.Load()
			if flags.env == "" {
				flags.env = config.GetEnv()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.env, "env", "", `environment: local, dev, docker or prod (default $ENV or "local")`)
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "explicit config file, overrides config/<env>.yaml")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newIngestCmd(flags),
		newQueryCmd(flags),
		newGetCmd(flags),
		newDeleteCmd(flags),
		newClearCmd(flags),
		newHealthCmd(flags),
		newStatsCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	if flags.configPath != "" {
		cfg, err := config.LoadFile(flags.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(flags.env)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. cli routes it to stderr so command output stays parseable.
func newLogger(flags *globalFlags, cfg *config.Config, cli bool) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := logpkg.New(logpkg.Options{
		Env:     flags.env,
		Level:   level,
		Service: "ragserver",
		Version: version.Version,
		Stderr:  cli,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// withApp loads configuration, builds the engine and runs fn against it.
func withApp(ctx context.Context, flags *globalFlags, fn func(a *app.App, logger *zap.Logger) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(flags, &cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer a.Close()

	return fn(a, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
