// Package api is the coordinator's HTTP surface. Handlers never execute
// jobs: they validate, persist a queued job record, publish a bus message
// and return the record for polling.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/datalake-platform/datalake/catalog"
	"github.com/datalake-platform/datalake/model"
	"github.com/datalake-platform/datalake/queue"
	"github.com/datalake-platform/datalake/storage"
)

// Publisher is the bus access the handlers need.
type Publisher interface {
	Publish(msg *model.JobMessage) error
	Stats() (*queue.Stats, error)
}

// JobStore is the job record access the handlers need.
type JobStore interface {
	PutUpload(ctx context.Context, job *model.UploadJob) error
	GetUpload(ctx context.Context, jobID string) (*model.UploadJob, error)
	UpdateUploadStatus(ctx context.Context, jobID, status, message string) error
	PutQuery(ctx context.Context, job *model.QueryJob) error
	GetQuery(ctx context.Context, jobID string) (*model.QueryJob, error)
	UpdateQueryStatus(ctx context.Context, jobID, status, message string) error
}

// TableLister exposes catalog table metadata.
type TableLister interface {
	ListTables(ctx context.Context, namespace string) ([]catalog.TableInfo, error)
}

// Server holds the handler dependencies.
type Server struct {
	store       JobStore
	bus         Publisher
	uploads     *storage.Store
	tables      TableLister
	fileMaxSize int64
}

// NewServer creates the coordinator API server.
func NewServer(store JobStore, bus Publisher, uploads *storage.Store, tables TableLister, fileMaxSize int64) *Server {
	return &Server{
		store:       store,
		bus:         bus,
		uploads:     uploads,
		tables:      tables,
		fileMaxSize: fileMaxSize,
	}
}

// Echo builds the router with all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", (s.fileMaxSize/1024)+1024)))

	e.GET("/health", s.health)

	v1 := e.Group("/api/v1")
	v1.POST("/upload", s.handleUpload)
	v1.GET("/jobs/:jobId", s.handleJobStatus)
	v1.POST("/jobs/:jobId/status", s.handleStatusUpdate)
	v1.POST("/query", s.handleQuery)
	v1.GET("/query/tables", s.handleListTables)
	v1.GET("/query/:jobId", s.handleQueryStatus)
	v1.GET("/schema/:projectId/:tableName", s.handleSchema)
	v1.GET("/queue/stats", s.handleQueueStats)

	return e
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the uniform error body.
func errorResponse(c echo.Context, status int, format string, args ...interface{}) error {
	return c.JSON(status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
