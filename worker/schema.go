package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// SchemaExecutor answers schema jobs from catalog metadata. No table data is
// read.
type SchemaExecutor struct {
	store   StatusStore
	catalog TableCatalog
}

// NewSchemaExecutor creates a schema executor.
func NewSchemaExecutor(store StatusStore, cat TableCatalog) *SchemaExecutor {
	return &SchemaExecutor{store: store, catalog: cat}
}

// Execute resolves the source table and writes its column list as the job
// result.
func (e *SchemaExecutor) Execute(ctx context.Context, msg *model.JobMessage) error {
	if err := e.store.UpdateQueryStatus(ctx, msg.JobID, model.StatusProcessing, "Started processing schema request"); err != nil {
		return err
	}

	source := msg.Source
	if source == "" {
		job, err := e.store.GetQuery(ctx, msg.JobID)
		if err != nil {
			return err
		}
		source = job.Source
	}

	project, table, err := resolveSource(ctx, e.store, source)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "Failed to retrieve schema")
	}

	info, err := e.catalog.Table(ctx, project, table)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "Failed to retrieve schema")
	}

	columns, err := json.Marshal(info.Columns)
	if err != nil {
		return fault.Wrap(fault.KindExecution, err, "encoding schema")
	}

	message := fmt.Sprintf("Schema retrieved: %d columns from table %s.%s", len(info.Columns), project, table)
	return e.store.CompleteQuery(ctx, msg.JobID, message, &model.QueryResult{
		RowCount: int64(len(info.Columns)),
		Preview:  columns,
	})
}
