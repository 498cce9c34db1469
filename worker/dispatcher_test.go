package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalake-platform/datalake/catalog"
	"github.com/datalake-platform/datalake/engine"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/jobstore"
	"github.com/datalake-platform/datalake/model"
	"github.com/datalake-platform/datalake/queue"
	"github.com/datalake-platform/datalake/storage"
)

// mockCatalog records appends and serves canned tables.
type mockCatalog struct {
	tables    map[string]*catalog.TableInfo
	relations map[string]*engine.Relation
	appendErr error
	scanErr   error

	appends []string
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		tables:    map[string]*catalog.TableInfo{},
		relations: map[string]*engine.Relation{},
	}
}

func tkey(ns, tbl string) string { return ns + "." + tbl }

func (m *mockCatalog) Append(ctx context.Context, ns, tbl string, rel *engine.Relation) (int64, error) {
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.appends = append(m.appends, fmt.Sprintf("%s.%s:%d", ns, tbl, rel.RowCount()))
	m.tables[tkey(ns, tbl)] = &catalog.TableInfo{Namespace: ns, Name: tbl, Columns: rel.Columns, Version: 1}
	m.relations[tkey(ns, tbl)] = rel
	return rel.RowCount(), nil
}

func (m *mockCatalog) Scan(ctx context.Context, ns, tbl string) (*engine.Relation, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	rel, ok := m.relations[tkey(ns, tbl)]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "table %s.%s not found", ns, tbl)
	}
	return rel, nil
}

func (m *mockCatalog) Table(ctx context.Context, ns, tbl string) (*catalog.TableInfo, error) {
	info, ok := m.tables[tkey(ns, tbl)]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "table %s.%s not found", ns, tbl)
	}
	return info, nil
}

type harness struct {
	store     *jobstore.Store
	uploads   *storage.Store
	uploadsS3 *storage.MockS3Client
	warehouse *storage.Store
	wareS3    *storage.MockS3Client
	catalog   *mockCatalog
	disp      *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	store := jobstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	uploadsS3 := storage.NewMockS3Client()
	uploads := storage.New(uploadsS3, "uploads")
	wareS3 := storage.NewMockS3Client()
	warehouse := storage.New(wareS3, "warehouse")
	cat := newMockCatalog()

	upload := NewUploadExecutor(store, uploads, cat)
	query := NewQueryExecutor(store, cat, warehouse, "wh", 100, 30*time.Second)
	schema := NewSchemaExecutor(store, cat)

	return &harness{
		store:     store,
		uploads:   uploads,
		uploadsS3: uploadsS3,
		warehouse: warehouse,
		wareS3:    wareS3,
		catalog:   cat,
		disp:      NewDispatcher(store, upload, query, schema),
	}
}

func delivery(t *testing.T, ack *queue.MockAcknowledger, tag uint64, msg interface{}) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func TestUploadJobHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploadsS3.Seed("uploads", "uploads/j-1/sales.csv", []byte("region,revenue\nnorth,100\nsouth,200\n"))
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{
		JobID: "j-1", ProjectID: "p1", FileName: "sales.csv",
		FilePath: "uploads/j-1/sales.csv", TableName: "sales", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-1", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "sales.csv", FilePath: "uploads/j-1/sales.csv", TableName: "sales",
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)
	assert.Empty(t, ack.Nacked)
	assert.Equal(t, []string{"p1.sales:2"}, h.catalog.appends)

	job, err := h.store.GetUpload(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, "Successfully processed 2 rows into table p1.sales", job.Message)
}

func TestUploadDefaultsTableName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploadsS3.Seed("uploads", "uploads/j-2/d.csv", []byte("a\n1\n"))
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{JobID: "j-2", ProjectID: "p1", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-2", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "d.csv", FilePath: "uploads/j-2/d.csv",
	}))

	assert.Equal(t, []string{"p1.default_table:1"}, h.catalog.appends)
}

func TestMissingJobTypeFailsTerminally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{JobID: "j-3", ProjectID: "p1", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, map[string]interface{}{
		"jobId": "j-3", "projectId": "p1", "fileName": "d.csv", "filePath": "uploads/j-3/d.csv",
	}))

	assert.Empty(t, ack.Acked)
	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetUpload(ctx, "j-3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "unknown kind")
}

func TestMissingJobTypeFailsQueryRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "q-9", JobType: model.KindQuery, Source: "p1.sales", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, map[string]interface{}{
		"jobId": "q-9", "source": "p1.sales",
	}))

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetQuery(ctx, "q-9")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "unknown kind")
}

func TestUploadJSONFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploadsS3.Seed("uploads", "uploads/j-8/events.json",
		[]byte(`[{"name":"a","count":1},{"name":"b","count":2}]`))
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{
		JobID: "j-8", ProjectID: "p1", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-8", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "events.json", FilePath: "uploads/j-8/events.json", TableName: "events",
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)
	assert.Equal(t, []string{"p1.events:2"}, h.catalog.appends)
}

func TestUploadParquetFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	data, err := engine.WriteParquet(&engine.Relation{
		Columns: []engine.Column{{Name: "a", Type: engine.TypeInteger}},
		Rows:    [][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}},
	})
	require.NoError(t, err)
	h.uploadsS3.Seed("uploads", "uploads/j-9/part.parquet", data)
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{
		JobID: "j-9", ProjectID: "p1", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-9", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "part.parquet", FilePath: "uploads/j-9/part.parquet", TableName: "parts",
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)
	assert.Equal(t, []string{"p1.parts:3"}, h.catalog.appends)
}

func TestUploadUnsupportedSuffixFailsTerminally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploadsS3.Seed("uploads", "uploads/j-10/notes.txt", []byte("free text"))
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{
		JobID: "j-10", ProjectID: "p1", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-10", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "notes.txt", FilePath: "uploads/j-10/notes.txt",
	}))

	assert.Empty(t, ack.Acked)
	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])
	assert.Empty(t, h.catalog.appends)

	job, err := h.store.GetUpload(ctx, "j-10")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "unsupported file type")
}

func TestExcelUploadFailsTerminally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{JobID: "j-4", ProjectID: "p1", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-4", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "report.xlsx", FilePath: "uploads/j-4/report.xlsx",
	}))

	assert.Empty(t, ack.Acked)
	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1], "deterministic failure must not requeue")

	job, err := h.store.GetUpload(ctx, "j-4")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "Excel files are not supported")
}

func TestTransientFailureRequeuesAndLeavesProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploadsS3.GetErr = errors.New("connection reset")
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{JobID: "j-5", ProjectID: "p1", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "j-5", JobType: model.KindUpload, ProjectID: "p1",
		FileName: "d.csv", FilePath: "uploads/j-5/d.csv",
	}))

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.True(t, ack.Requeue[1], "transient failure must requeue")

	job, err := h.store.GetUpload(ctx, "j-5")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, job.Status)
}

func TestMalformedMessageIsDropped(t *testing.T) {
	h := newHarness(t)

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(context.Background(), amqp.Delivery{
		Acknowledger: ack, DeliveryTag: 1, Body: []byte("{not json"),
	})

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])
}

func TestMalformedMessageMarksExtractedJobFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{JobID: "m-1", ProjectID: "p1", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, amqp.Delivery{
		Acknowledger: ack, DeliveryTag: 1,
		Body: []byte(`{"jobId": "m-1", "jobType": `),
	})

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetUpload(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "malformed job message")
}

func TestUnknownJobTypeFailsTerminally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{JobID: "j-6", JobType: "compact", Status: model.StatusQueued}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, map[string]interface{}{"jobId": "j-6", "jobType": "compact"}))

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetQuery(ctx, "j-6")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "unknown kind")
}

func TestQueryJobHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.catalog.relations["p1.sales"] = &engine.Relation{
		Columns: []engine.Column{
			{Name: "region", Type: engine.TypeString},
			{Name: "revenue", Type: engine.TypeInteger},
		},
		Rows: [][]interface{}{
			{"north", int64(100)},
			{"south", int64(200)},
			{"north", int64(300)},
		},
	}
	h.catalog.tables["p1.sales"] = &catalog.TableInfo{
		Namespace: "p1", Name: "sales",
		Columns: h.catalog.relations["p1.sales"].Columns,
	}

	queryJSON := `{"source":"p1.sales","select":[{"column":"region"},{"column":"revenue","aggregation":"sum","as":"total"}],"groupBy":["region"],"orderBy":[{"column":"total","direction":"desc"}]}`
	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "q-1", JobType: model.KindQuery, Source: "p1.sales",
		QueryJSON: queryJSON, Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "q-1", JobType: model.KindQuery, Source: "p1.sales", QueryJSON: queryJSON,
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)

	job, err := h.store.GetQuery(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	require.NotNil(t, job.RowCount)
	assert.Equal(t, int64(2), *job.RowCount)
	require.NotNil(t, job.ResultPath)
	assert.True(t, strings.HasPrefix(*job.ResultPath, "wh/p1/queries/query_"))
	assert.True(t, strings.HasSuffix(*job.ResultPath, "/result.parquet"))
	assert.Contains(t, job.Message, "Query completed: 2 rows")

	// the result parquet landed in the warehouse bucket
	data, ok := h.wareS3.Object("warehouse", *job.ResultPath)
	require.True(t, ok)
	back, err := engine.ReadParquet(data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), back.RowCount())

	var preview []map[string]interface{}
	require.NoError(t, json.Unmarshal(job.ResultData, &preview))
	require.Len(t, preview, 2)
	assert.Equal(t, "north", preview[0]["region"])
	assert.Equal(t, float64(400), preview[0]["total"])
}

func TestQueryWithUploadJobIDSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.catalog.relations["p1.sales"] = &engine.Relation{
		Columns: []engine.Column{{Name: "a", Type: engine.TypeInteger}},
		Rows:    [][]interface{}{{int64(1)}},
	}
	require.NoError(t, h.store.PutUpload(ctx, &model.UploadJob{
		JobID: "u-7", ProjectID: "p1", TableName: "sales", Status: model.StatusCompleted,
	}))
	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "q-2", JobType: model.KindQuery, Source: "u-7",
		QueryJSON: `{"source":"u-7"}`, Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "q-2", JobType: model.KindQuery, Source: "u-7", QueryJSON: `{"source":"u-7"}`,
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)
	job, err := h.store.GetQuery(ctx, "q-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
}

func TestQueryMalformedSpecFailsTerminally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "q-3", JobType: model.KindQuery, QueryJSON: "{broken", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "q-3", JobType: model.KindQuery, QueryJSON: "{broken",
	}))

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetQuery(ctx, "q-3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
}

func TestSchemaJobHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.catalog.tables["p1.sales"] = &catalog.TableInfo{
		Namespace: "p1", Name: "sales",
		Columns: []engine.Column{
			{Name: "region", Type: engine.TypeString},
			{Name: "revenue", Type: engine.TypeInteger},
		},
	}
	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "s-1", JobType: model.KindSchema, Source: "p1.sales", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "s-1", JobType: model.KindSchema, Source: "p1.sales",
	}))

	assert.Equal(t, []uint64{1}, ack.Acked)

	job, err := h.store.GetQuery(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, "Schema retrieved: 2 columns from table p1.sales", job.Message)

	var cols []engine.Column
	require.NoError(t, json.Unmarshal(job.ResultData, &cols))
	assert.Len(t, cols, 2)
}

func TestSchemaUnknownTableFailsWithCause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.PutQuery(ctx, &model.QueryJob{
		JobID: "s-2", JobType: model.KindSchema, Source: "p1.missing", Status: model.StatusQueued,
	}))

	ack := queue.NewMockAcknowledger()
	h.disp.Handle(ctx, delivery(t, ack, 1, model.JobMessage{
		JobID: "s-2", JobType: model.KindSchema, Source: "p1.missing",
	}))

	require.Equal(t, []uint64{1}, ack.Nacked)
	assert.False(t, ack.Requeue[1])

	job, err := h.store.GetQuery(ctx, "s-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "Failed to retrieve schema")
}
