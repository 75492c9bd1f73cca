package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/utils"
	"github.com/skiffsync/skiff/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "skiff",
	Short:   "Skiff keeps local folders in sync with S3-compatible storage",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Skiff config file")
}

func main() {
	// a .env in the working directory may carry remote credentials
	_ = godotenv.Load()

	logFile := config.DefaultLogFilePath
	if err := utils.EnsureParent(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
	slog.SetDefault(logger)

	viper.SetEnvPrefix("SKIFF")
	viper.AutomaticEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// configPath resolves the config file location: the --config flag, then
// SKIFF_CONFIG, then the default.
func configPath(cmd *cobra.Command) string {
	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		return flag.Value.String()
	}
	if envPath := viper.GetString("config"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath
}

// loadConfig reads the config the command points at. SKIFF_* environment
// variables override remote credentials so secrets can stay out of the
// config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("access_key"); v != "" {
		cfg.Remote.AccessKey = v
	}
	if v := viper.GetString("secret_key"); v != "" {
		cfg.Remote.SecretKey = v
	}
	if v := viper.GetString("endpoint"); v != "" {
		cfg.Remote.Endpoint = v
	}
	return cfg, nil
}
