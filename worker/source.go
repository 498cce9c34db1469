package worker

import (
	"context"
	"strings"

	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// defaultTable is the table name used when an upload did not specify one.
const defaultTable = "default_table"

// resolveSource maps a query source to a catalog table. "project.table"
// resolves directly; anything else is treated as the id of a completed
// upload job and resolved through the job store.
func resolveSource(ctx context.Context, store StatusStore, source string) (project, table string, err error) {
	if strings.Contains(source, ".") {
		project, table = model.SplitSource(source)
		return project, table, nil
	}

	job, err := store.GetUpload(ctx, source)
	if err != nil {
		if fault.KindOf(err) == fault.KindNotFound {
			return "", "", fault.New(fault.KindNotFound, "source %q is neither project.table nor a known upload job", source)
		}
		return "", "", err
	}
	if job.Status != model.StatusCompleted {
		return "", "", fault.New(fault.KindInvalidInput, "upload job %s has not completed (status %s)", source, job.Status)
	}

	table = job.TableName
	if table == "" {
		table = defaultTable
	}
	return job.ProjectID, table, nil
}
