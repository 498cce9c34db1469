package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// handleQuery accepts a query document, validates it structurally and queues
// a query job. The raw JSON is persisted verbatim so fields this version
// does not understand survive the round trip.
func (s *Server) handleQuery(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "reading request body: %v", err)
	}

	spec, err := model.ParseQuerySpec(string(body))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid query: %v", err)
	}
	if err := spec.Validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid query: %v", err)
	}

	return s.queueQueryJob(c, model.KindQuery, spec.Source, string(body), "Query job queued for processing")
}

type schemaRequest struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	TableName string `json:"tableName"`
}

// handleSchema queues a schema job for the table named in the path.
func (s *Server) handleSchema(c echo.Context) error {
	projectID := c.Param("projectId")
	tableName := c.Param("tableName")
	if projectID == "" || tableName == "" {
		return errorResponse(c, http.StatusBadRequest, "projectId and tableName are required")
	}

	queryJSON, _ := json.Marshal(schemaRequest{Type: model.KindSchema, ProjectID: projectID, TableName: tableName})
	source := projectID + "." + tableName
	return s.queueQueryJob(c, model.KindSchema, source, string(queryJSON), "Schema request queued for processing")
}

// queueQueryJob persists a queued query or schema job, publishes its bus
// message and answers 202 with the polling location.
func (s *Server) queueQueryJob(c echo.Context, jobType, source, queryJSON, message string) error {
	ctx := c.Request().Context()

	job := &model.QueryJob{
		JobID:     uuid.NewString(),
		JobType:   jobType,
		Source:    source,
		QueryJSON: queryJSON,
		Status:    model.StatusQueued,
		Message:   message,
		Timestamp: model.Now(),
	}
	if err := s.store.PutQuery(ctx, job); err != nil {
		common.Logger.WithField("error", err.Error()).Error("creating query job record")
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable, try again")
	}

	msg := &model.JobMessage{
		JobID:     job.JobID,
		JobType:   jobType,
		Source:    source,
		QueryJSON: queryJSON,
		Timestamp: job.Timestamp,
	}
	if err := s.bus.Publish(msg); err != nil {
		common.Logger.WithField("error", err.Error()).Error("publishing query job")
		// mark the record failed so the client is not left polling a queued job
		if updErr := s.store.UpdateQueryStatus(ctx, job.JobID, model.StatusFailed, "Failed to queue job"); updErr != nil {
			common.Logger.WithField("error", updErr.Error()).Error("marking unqueued job failed")
		}
		return errorResponse(c, http.StatusServiceUnavailable, "queue unavailable, try again")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"jobId":         job.JobID,
		"status":        job.Status,
		"message":       message,
		"checkStatusAt": "/api/v1/query/" + job.JobID,
	})
}

// handleQueryStatus returns the query job record, including the inline
// result preview once the job completed.
func (s *Server) handleQueryStatus(c echo.Context) error {
	job, err := s.store.GetQuery(c.Request().Context(), c.Param("jobId"))
	if err != nil {
		if fault.KindOf(err) == fault.KindNotFound {
			return errorResponse(c, http.StatusNotFound, "job not found or expired")
		}
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable")
	}
	return c.JSON(http.StatusOK, job)
}
