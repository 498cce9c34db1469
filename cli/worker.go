package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/config"
	"github.com/datalake-platform/datalake/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runWorker(cfg)
	},
}

func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	upload := worker.NewUploadExecutor(d.store, d.uploads, d.catalog)
	query := worker.NewQueryExecutor(d.store, d.catalog, d.warehouse,
		cfg.WarehousePath, cfg.PreviewMaxRows, cfg.QueryTimeout())
	schema := worker.NewSchemaExecutor(d.store, d.catalog)
	dispatcher := worker.NewDispatcher(d.store, upload, query, schema)

	common.Logger.WithField("queue", cfg.Queue.Name).Info("starting worker")
	err = d.bus.Consume(ctx, dispatcher.Handle)
	if err == context.Canceled {
		common.Logger.Info("worker stopped")
		return nil
	}
	return err
}
