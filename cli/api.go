package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datalake-platform/datalake/api"
	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/config"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runAPI(cfg)
	},
}

func runAPI(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	server := api.NewServer(d.store, d.bus, d.uploads, d.catalog, cfg.FileMaxSize)
	e := server.Echo()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	common.Logger.WithField("addr", addr).Info("starting coordinator API")

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		common.Logger.Info("shutting down coordinator")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			common.Logger.WithField("error", err.Error()).Warn("forced shutdown")
		}
	}
	return nil
}
