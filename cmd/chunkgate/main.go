package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgallion1/chunkgate/internal/config"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "chunkgate",
	Short:         "Chunk documents and gate chunk quality with resumable checkpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default $LOG_LEVEL or info)")
	rootCmd.AddCommand(newRunCmd(), newServeCmd(), newStatusCmd(), newResetCmd(), newStrategiesCmd())

	if err := rootCmd.Execute(); err != nil {
		newLogger(loadConfig()).Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the --log-level flag.
func loadConfig() config.Config {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
