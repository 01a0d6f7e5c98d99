// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/config"
	"github.com/xkilldash9x/redcrawl/internal/httpapi"
	"github.com/xkilldash9x/redcrawl/internal/observability"
	"github.com/xkilldash9x/redcrawl/internal/xhs/service"
)

// newServeCmd runs the HTTP request layer over one crawl service.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the crawl API server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			launcher := browser.NewChromeLauncher(cfg.Browser, logger)
			svc := newService(launcher, cfg, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := svc.Close(shutdownCtx); err != nil {
					logger.Warn("Failed to close crawl session", zap.Error(err))
				}
				if err := launcher.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shut down browser", zap.Error(err))
				}
			}()

			srv := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: httpapi.NewHandler(svc, logger),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("API server listening", zap.String("addr", cfg.Server.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return serveCmd
}

// newService wires a crawl service from the loaded config.
func newService(launcher browser.Launcher, cfg *config.Config, logger *zap.Logger) *service.Service {
	return service.New(launcher, service.Options{
		UserAgent:         cfg.Browser.UserAgent,
		CrawlInterval:     cfg.Crawler.CrawlInterval,
		ConcurrencyLimit:  cfg.Crawler.ConcurrencyLimit,
		MaxLoginPolls:     cfg.Crawler.MaxLoginPolls,
		LoginPollInterval: cfg.Crawler.LoginPollInterval,
		RequestTimeout:    cfg.Crawler.RequestTimeout,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		PageSize:          cfg.Crawler.PageSize,
		SubPageSize:       cfg.Crawler.SubPageSize,
	}, logger)
}
