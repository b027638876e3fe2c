package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/api"
	"github.com/prasenjit/edgerules/internal/logging"
	"github.com/prasenjit/edgerules/internal/proxy"
	"github.com/prasenjit/edgerules/internal/stats"
	"github.com/prasenjit/edgerules/internal/storage"
	"github.com/prasenjit/edgerules/internal/tlsutil"
	"github.com/prasenjit/edgerules/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edge server",
	Long: `Starts the edge server.

The server will:
  - Load rules from the rules file (rules.path)
  - Apply header, redirect and rewrite rules to every request
  - Serve static files from publicDir
  - Forward remaining requests to origin.url
  - Expose the Admin API at /_api/ and metrics at /metrics on
    server.adminAddr (loopback by default), guarded by server.adminToken
    when set

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Override server port")
	serveCmd.Flags().StringP("rules", "r", "", "Rules file (YAML or JSON)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the rules file when it changes")
	serveCmd.Flags().String("origin", "", "Origin URL for requests no rule or file handles")
	serveCmd.Flags().String("public", "", "Directory of static files")
	serveCmd.Flags().String("admin-addr", "", "Admin API listen address (host:port)")

	// Bind flags to viper
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("rules.path", serveCmd.Flags().Lookup("rules"))
	viper.BindPFlag("rules.watch", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("origin.url", serveCmd.Flags().Lookup("origin"))
	viper.BindPFlag("publicDir", serveCmd.Flags().Lookup("public"))
	viper.BindPFlag("server.adminAddr", serveCmd.Flags().Lookup("admin-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, restore, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer restore()

	store, err := storage.NewFileStore(cfg.Rules.Path,
		storage.WithDebounce(cfg.Rules.Debounce),
		storage.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Rules.Watch {
		if err := store.Watch(ctx); err != nil {
			return fmt.Errorf("failed to watch rules file: %w", err)
		}
		logger.Info("watching rules file", zap.String("path", store.Path()))
	}

	statsCollector := stats.NewCollector()

	var tracingService *tracing.Service
	if cfg.Tracing.Enabled {
		tracingService = tracing.NewService(cfg.Tracing.MaxTraces, cfg.Tracing.Retention)
	}

	proxyEngine, err := proxy.NewEngine(store, statsCollector, tracingService, proxy.Options{
		Origin:    cfg.Origin.URL,
		PublicDir: cfg.PublicDir,
		Presets:   proxy.PresetRules(cfg.Presets),
		Upstream:  cfg.Upstream,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var routerOpts []api.Option
	if cfg.Server.AdminToken != "" {
		routerOpts = append(routerOpts, api.WithAdminToken(cfg.Server.AdminToken))
	}
	router := api.NewRouter(store, statsCollector, tracingService, proxyEngine, logger, routerOpts...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.EdgeHandler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Server.TLS.Enabled {
		tlsConfig, err := tlsutil.NewLoader(cfg.Server.TLS, logger).TLSConfig()
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	servers := []*http.Server{server}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting edgerules server",
			zap.String("addr", addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled),
			zap.String("rules", store.Path()),
			zap.String("origin", cfg.Origin.URL),
		)

		var err error
		if cfg.Server.TLS.Enabled {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Server.AdminAddr != "" {
		adminServer := &http.Server{
			Addr:         cfg.Server.AdminAddr,
			Handler:      router.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}
		servers = append(servers, adminServer)

		go func() {
			logger.Info("starting admin API",
				zap.String("addr", cfg.Server.AdminAddr),
				zap.Bool("auth", cfg.Server.AdminToken != ""),
			)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin API: %w", err)
			}
		}()
	} else {
		logger.Info("admin API disabled")
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}
