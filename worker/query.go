package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/engine"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
	"github.com/datalake-platform/datalake/storage"
)

// QueryExecutor runs a query against a catalog table and stores the result
// as parquet in the warehouse bucket.
type QueryExecutor struct {
	store      StatusStore
	catalog    TableCatalog
	warehouse  *storage.Store
	basePath   string
	previewMax int
	timeout    time.Duration
	now        func() time.Time
}

// NewQueryExecutor creates a query executor. previewMax bounds the inline
// JSON preview attached to completed jobs; timeout bounds one execution.
func NewQueryExecutor(store StatusStore, cat TableCatalog, warehouse *storage.Store, basePath string, previewMax int, timeout time.Duration) *QueryExecutor {
	return &QueryExecutor{
		store:      store,
		catalog:    cat,
		warehouse:  warehouse,
		basePath:   basePath,
		previewMax: previewMax,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Execute materializes the source table, evaluates the query and writes the
// result. The row count reported to the client is counted once, from the
// final result.
func (e *QueryExecutor) Execute(ctx context.Context, msg *model.JobMessage) error {
	if err := e.store.UpdateQueryStatus(ctx, msg.JobID, model.StatusProcessing, "Started processing query"); err != nil {
		return err
	}

	raw := msg.QueryJSON
	if raw == "" {
		job, err := e.store.GetQuery(ctx, msg.JobID)
		if err != nil {
			return err
		}
		raw = job.QueryJSON
	}

	spec, err := model.ParseQuerySpec(raw)
	if err != nil {
		return fault.Wrap(fault.KindInvalidInput, err, "parsing query")
	}
	if err := spec.Validate(); err != nil {
		return fault.Wrap(fault.KindInvalidInput, err, "validating query")
	}

	source := spec.Source
	if source == "" {
		source = msg.Source
	}
	project, table, err := resolveSource(ctx, e.store, source)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rel, err := e.catalog.Scan(runCtx, project, table)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fault.New(fault.KindTimeout, "query exceeded the %s execution deadline", e.timeout)
		}
		return err
	}

	result, err := engine.Execute(rel, spec)
	if err != nil {
		return err
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return fault.New(fault.KindTimeout, "query exceeded the %s execution deadline", e.timeout)
	}

	data, err := engine.WriteParquet(result)
	if err != nil {
		return err
	}

	resultPath := fmt.Sprintf("%s/%s/queries/query_%s/result.parquet",
		e.basePath, project, e.now().Format("20060102_150405"))
	if err := e.warehouse.PutBytes(ctx, resultPath, data, "application/octet-stream"); err != nil {
		return err
	}

	preview, err := json.Marshal(result.Maps(e.previewMax))
	if err != nil {
		return fault.Wrap(fault.KindExecution, err, "encoding result preview")
	}

	common.Logger.WithFields(map[string]interface{}{
		"jobId":      msg.JobID,
		"rows":       result.RowCount(),
		"resultSize": humanize.Bytes(uint64(len(data))),
	}).Info("query finished")

	message := fmt.Sprintf("Query completed: %d rows, result stored at %s", result.RowCount(), resultPath)
	return e.store.CompleteQuery(ctx, msg.JobID, message, &model.QueryResult{
		ResultPath:    &resultPath,
		RowCount:      result.RowCount(),
		FileSizeBytes: int64(len(data)),
		Preview:       preview,
	})
}
