// Command parley is the entry point for the Parley mock-interview server.
//
// Subcommands:
//
//	parley serve       serve the browser client API and interview WebSocket
//	parley practice    run a typed interview in the terminal
//	parley sessions    list, export and delete stored sessions
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}

var (
	configPath string
	envFiles   []string

	// logLevel backs the process logger so config reloads can change it.
	logLevel slog.LevelVar
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - voice mock-interview assistant",
	Long: `parley runs spoken mock interviews against an LLM interviewer.

Examples:
  parley serve --config config.yaml
  parley practice --topic "Go concurrency" --difficulty Senior
  parley sessions list
  parley sessions export 6f1c... -o ./exports`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading PARLEY_* variables (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// loadConfig reads the configuration and installs the process logger.
//
// A missing file is only an error when --config was given explicitly;
// otherwise the defaults plus PARLEY_* variables are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = &config.Config{}
		if err := config.ApplyEnv(cfg, nil); err != nil {
			return nil, err
		}
		config.ApplyDefaults(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		configPath = ""
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
	default:
		return nil, err
	}

	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger())
	return cfg, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))
}
