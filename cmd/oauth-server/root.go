package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration keys shared by all commands
const (
	LogLevelKey  = "log.level"
	LogFormatKey = "log.format"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "oauth-server",
	Short: "OAuth 2.0 authorization server",
	Long: `oauth-server issues authorization codes, access tokens and refresh tokens
to registered clients on behalf of resource owners authenticated by a
fronting identity proxy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := initConfig()
		if err != nil {
			return err
		}

		logger, err := newLogger(cmd.ErrOrStderr(), viper.GetString(LogLevelKey), viper.GetString(LogFormatKey))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if path != "" {
			logger.Debug("Using config file", "path", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Configuration file (default is ./oauth-server.yaml if present)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	_ = viper.BindPFlag(LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("OAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// initConfig reads the configuration file, if any, and returns its path
func initConfig() (string, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("oauth-server")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", fmt.Errorf("reading config file: %w", err)
		}
		return "", nil
	}
	return viper.ConfigFileUsed(), nil
}

// newLogger builds the process logger
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
