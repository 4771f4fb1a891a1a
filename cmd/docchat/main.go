package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/koscakluka/ema-docchat/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	settings = config.New()
	logger   = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "docchat"})
)

var rootCmd = &cobra.Command{
	Use:           "docchat",
	Short:         "Talk with a PDF document by voice",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			settings.SetConfigFile(path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./docchat.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend-url", "http://localhost:5000", "docchat backend url")
	mustBind(settings, rootCmd.PersistentFlags(), map[string]string{
		"log-level":   "log.level",
		"backend-url": "backend.url",
	})

	rootCmd.AddCommand(serveCmd, talkCmd, schemaCmd)
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	if err := config.BindFlags(v, flags, keys); err != nil {
		panic(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(settings)
	if err != nil {
		return config.Config{}, err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	slog.SetDefault(slog.New(logger))
	return cfg, nil
}
