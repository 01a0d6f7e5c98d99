// File: cmd/crawl.go
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/redcrawl/internal/browser"
	"github.com/xkilldash9x/redcrawl/internal/config"
	"github.com/xkilldash9x/redcrawl/internal/observability"
	"github.com/xkilldash9x/redcrawl/internal/xhs/login"
	"github.com/xkilldash9x/redcrawl/internal/xhs/service"
)

// newCrawlCmd runs a one-shot creator crawl and prints the result to stdout.
func newCrawlCmd() *cobra.Command {
	var (
		cookie   string
		resolved bool
		maxItems int
		noLogin  bool
	)

	crawlCmd := &cobra.Command{
		Use:   "crawl [creator-id]",
		Short: "Enumerates one creator's notes and prints them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			userID := args[0]

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
				if err := svc.Close(ctx); err != nil {
					logger.Warn("Failed to close crawl session", zap.Error(err))
				}
				if err := launcher.Shutdown(ctx); err != nil {
					logger.Warn("Failed to shut down browser", zap.Error(err))
				}
			}()

			strategy := login.QRCode()
			if cookie != "" {
				strategy = login.CookieImport(cookie)
			}
			if err := svc.EnsureLoggedIn(ctx, !noLogin, strategy); err != nil {
				return err
			}

			var result any
			if resolved {
				result, err = svc.CreatorNotesResolved(ctx, userID, maxItems, service.CrawlOptions{})
			} else {
				result, err = svc.CreatorNotes(ctx, userID, service.CrawlOptions{MaxItems: maxItems})
			}
			if err != nil {
				return err
			}

			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	crawlCmd.Flags().StringVar(&cookie, "cookie", "", "session cookie string to import instead of interactive QR login")
	crawlCmd.Flags().BoolVar(&resolved, "resolved", false, "resolve each enumerated note to its full detail")
	crawlCmd.Flags().IntVar(&maxItems, "max-items", 0, "stop after this many notes (0 = all)")
	crawlCmd.Flags().BoolVar(&noLogin, "no-login", false, "fail instead of logging in when no valid session exists")
	return crawlCmd
}
