package cli

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

	"github.com/vijay-prabhu/crmgmail/internal/web"
)

// purgeInterval is how often expired transients are swept while serving
const purgeInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for the CRM",
	Long: `Serve exposes the contact correspondence section, settings, account
management and the OAuth connect/callback routes over HTTP. Every route except
/healthz, /readyz and /metrics requires the admin basic-auth credentials.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.ValidateServer(); err != nil {
		return err
	}

	addr := a.cfg.Server.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	handler := web.NewRouter(web.Deps{
		Correspondence: a.aggregator,
		Accounts:       a.registry,
		OAuth:          a.flow,
		Settings:       a.settings,
		Health:         a.db,
		AdminUser:      a.cfg.Server.AdminUser,
		AdminPassword:  a.cfg.Server.AdminPassword,
		MetricsEnabled: a.cfg.Server.MetricsEnabled,
		Logger:         a.logger,
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.purgeLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown http", "error", err)
	}
	return nil
}

// purgeLoop sweeps expired cache entries and OAuth states until ctx ends
func (a *app) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.db.PurgeExpiredTransients(ctx)
			if err != nil {
				a.logger.Warn("failed to purge expired transients", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("purged expired transients", "count", n)
			}
		}
	}
}
