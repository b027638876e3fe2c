package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/edgerules/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "edgerules",
		Short: "edgerules - path-pattern redirects, rewrites and headers at the edge",
		Long: `edgerules resolves redirect, rewrite and header rules for incoming requests.
Rules use path patterns such as /blog/:slug or /docs/:path* and may be
conditioned on headers, cookies, query parameters and the host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(importCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// EDGERULES_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("EDGERULES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(config.Default())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every configuration key so environment variables
// can override it
func setDefaults(d *config.Config) {
	// Server defaults
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	viper.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	viper.SetDefault("server.adminAddr", d.Server.AdminAddr)
	viper.SetDefault("server.adminToken", d.Server.AdminToken)
	viper.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	viper.SetDefault("server.tls.certFile", d.Server.TLS.CertFile)
	viper.SetDefault("server.tls.keyFile", d.Server.TLS.KeyFile)
	viper.SetDefault("server.tls.autoGenerate", d.Server.TLS.AutoGenerate)
	viper.SetDefault("server.tls.storePath", d.Server.TLS.StorePath)

	// Rules defaults
	viper.SetDefault("rules.path", d.Rules.Path)
	viper.SetDefault("rules.watch", d.Rules.Watch)
	viper.SetDefault("rules.debounce", d.Rules.Debounce)

	viper.SetDefault("origin.url", d.Origin.URL)
	viper.SetDefault("publicDir", d.PublicDir)

	// Presets defaults
	viper.SetDefault("presets.source", d.Presets.Source)
	viper.SetDefault("presets.security", d.Presets.Security)
	viper.SetDefault("presets.cors.enabled", d.Presets.CORS.Enabled)
	viper.SetDefault("presets.cors.allowOrigin", d.Presets.CORS.AllowOrigin)
	viper.SetDefault("presets.cors.allowCredentials", d.Presets.CORS.AllowCredentials)
	viper.SetDefault("presets.cors.maxAge", d.Presets.CORS.MaxAge)

	// Upstream defaults
	viper.SetDefault("upstream.timeout", d.Upstream.Timeout)
	viper.SetDefault("upstream.breakerThreshold", d.Upstream.BreakerThreshold)
	viper.SetDefault("upstream.breakerTimeout", d.Upstream.BreakerTimeout)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", d.Tracing.Enabled)
	viper.SetDefault("tracing.maxTraces", d.Tracing.MaxTraces)
	viper.SetDefault("tracing.retention", d.Tracing.Retention)

	// Logging defaults
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.output", d.Logging.Output)
}

// loadConfig builds the effective configuration from defaults, the config
// file, environment variables and flags
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
