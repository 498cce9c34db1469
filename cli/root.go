// Package cli wires the coordinator and the worker from configuration and
// manages their lifecycle. Both processes are built from the same binary;
// "datalake api" runs the HTTP coordinator, "datalake worker" runs the job
// consumer.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datalake-platform/datalake/catalog"
	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/config"
	"github.com/datalake-platform/datalake/jobstore"
	"github.com/datalake-platform/datalake/queue"
	"github.com/datalake-platform/datalake/storage"
	"github.com/datalake-platform/datalake/version"
)

// RootCmd is the entry command of the datalake binary.
var RootCmd = &cobra.Command{
	Use:   "datalake",
	Short: "Data lakehouse control plane",
	Long: `datalake runs the two processes of the lakehouse platform:

  api     the HTTP coordinator accepting uploads, queries and status polls
  worker  the queue consumer executing ingestion, query and schema jobs

All configuration comes from environment variables.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(apiCmd)
	RootCmd.AddCommand(workerCmd)
	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

// deps holds the shared subsystem clients both processes build from config.
type deps struct {
	cfg       *config.Config
	store     *jobstore.Store
	bus       *queue.Bus
	uploads   *storage.Store
	warehouse *storage.Store
	catalog   *catalog.Catalog
}

// buildDeps connects to every external subsystem and verifies the pieces a
// process cannot run without.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	store := jobstore.New(cfg.JobStore.Addr(), cfg.JobTTL())
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}

	bus, err := queue.NewBus(cfg.Queue.URL(), cfg.Queue.Name)
	if err != nil {
		return nil, err
	}

	s3, err := storage.NewClient(cfg.Store.Endpoint, cfg.Store.AccessKey, cfg.Store.SecretKey)
	if err != nil {
		return nil, err
	}
	uploads := storage.New(s3, cfg.Store.UploadsBucket)
	warehouse := storage.New(s3, cfg.Store.WarehouseBucket)
	for _, b := range []*storage.Store{uploads, warehouse} {
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}

	cat, err := catalog.New(ctx, cfg.Catalog.DSN(), warehouse, cfg.WarehousePath)
	if err != nil {
		return nil, err
	}
	if err := cat.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	common.Logger.Info("connected to queue, job store, object store and catalog")
	return &deps{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		uploads:   uploads,
		warehouse: warehouse,
		catalog:   cat,
	}, nil
}

func (d *deps) close() {
	if err := d.bus.Close(); err != nil {
		common.Logger.WithField("error", err.Error()).Warn("closing bus")
	}
	if err := d.store.Close(); err != nil {
		common.Logger.WithField("error", err.Error()).Warn("closing job store")
	}
	d.catalog.Close()
}
