package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/datalake-platform/datalake/catalog"
	"github.com/datalake-platform/datalake/engine"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
	"github.com/datalake-platform/datalake/storage"
)

// TableCatalog is the catalog access the executors need.
type TableCatalog interface {
	Append(ctx context.Context, namespace, table string, rel *engine.Relation) (int64, error)
	Scan(ctx context.Context, namespace, table string) (*engine.Relation, error)
	Table(ctx context.Context, namespace, table string) (*catalog.TableInfo, error)
}

// UploadExecutor ingests an uploaded file into a catalog table.
type UploadExecutor struct {
	store   StatusStore
	uploads *storage.Store
	catalog TableCatalog
}

// NewUploadExecutor creates an upload executor.
func NewUploadExecutor(store StatusStore, uploads *storage.Store, catalog TableCatalog) *UploadExecutor {
	return &UploadExecutor{store: store, uploads: uploads, catalog: catalog}
}

// Execute reads the staged file, parses it into a typed relation and appends
// it to the target table, creating the table on first ingest.
func (e *UploadExecutor) Execute(ctx context.Context, msg *model.JobMessage) error {
	if err := e.store.UpdateUploadStatus(ctx, msg.JobID, model.StatusProcessing, "Started processing upload"); err != nil {
		return err
	}

	lower := strings.ToLower(msg.FileName)
	if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls") {
		return fault.New(fault.KindInvalidInput, "Excel files are not supported yet. Please convert to CSV format")
	}

	data, err := e.uploads.GetBytes(ctx, msg.FilePath)
	if err != nil {
		return err
	}

	var rel *engine.Relation
	switch {
	case strings.HasSuffix(lower, ".csv"):
		rel, err = engine.ReadCSV(bytes.NewReader(data))
	case strings.HasSuffix(lower, ".json"):
		rel, err = engine.ReadJSON(data)
	case strings.HasSuffix(lower, ".parquet"):
		rel, err = engine.ReadParquet(data)
	default:
		return fault.New(fault.KindInvalidInput, "unsupported file type: %s. Supported formats are .csv, .json and .parquet", msg.FileName)
	}
	if err != nil {
		return err
	}
	if rel.RowCount() == 0 {
		return fault.New(fault.KindInvalidInput, "file contains no data rows")
	}

	project := msg.ProjectID
	if project == "" {
		project = "unknown"
	}
	table := msg.TableName
	if table == "" {
		table = defaultTable
	}

	rows, err := e.catalog.Append(ctx, project, table, rel)
	if err != nil {
		return err
	}

	return e.store.UpdateUploadStatus(ctx, msg.JobID, model.StatusCompleted,
		fmt.Sprintf("Successfully processed %d rows into table %s.%s", rows, project, table))
}
