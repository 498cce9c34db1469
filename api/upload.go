package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// formField returns the first non-empty value among the given multipart
// field names. Clients predating the short field names still send the long
// ones.
func formField(c echo.Context, names ...string) string {
	for _, name := range names {
		if v := c.FormValue(name); v != "" {
			return v
		}
	}
	return ""
}

// handleUpload accepts a multipart file, stages it in the uploads bucket and
// queues an ingestion job. The response is the queued job record; clients
// poll the status endpoint with its jobId.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	file, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "file is required")
	}
	projectID := formField(c, "project", "projectId")
	if projectID == "" {
		return errorResponse(c, http.StatusBadRequest, "project is required")
	}
	if file.Size > s.fileMaxSize {
		return errorResponse(c, http.StatusBadRequest,
			"file exceeds the %d byte limit", s.fileMaxSize)
	}

	fileName := file.Filename
	if fileName == "" {
		fileName = "upload"
	}

	jobID := uuid.NewString()
	filePath := fmt.Sprintf("uploads/%s/%s", jobID, fileName)

	src, err := file.Open()
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "reading upload: %v", err)
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.uploads.Put(ctx, filePath, src, file.Size, contentType); err != nil {
		common.Logger.WithField("error", err.Error()).Error("staging upload")
		return errorResponse(c, http.StatusServiceUnavailable, "storing file failed, try again")
	}

	job := &model.UploadJob{
		JobID:     jobID,
		UserID:    formField(c, "user", "userId"),
		ProjectID: projectID,
		FileName:  fileName,
		FilePath:  filePath,
		TableName: formField(c, "table", "tableName"),
		FileSize:  file.Size,
		Timestamp: model.Now(),
		Status:    model.StatusQueued,
		Message:   "File queued for processing",
	}
	if err := s.store.PutUpload(ctx, job); err != nil {
		common.Logger.WithField("error", err.Error()).Error("creating upload job record")
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable, try again")
	}

	msg := &model.JobMessage{
		JobID:     jobID,
		JobType:   model.KindUpload,
		FilePath:  filePath,
		FileName:  fileName,
		TableName: job.TableName,
		ProjectID: projectID,
		Timestamp: job.Timestamp,
	}
	if err := s.bus.Publish(msg); err != nil {
		common.Logger.WithField("error", err.Error()).Error("publishing upload job")
		// record stays queued; mark it failed so the client is not left polling
		if updErr := s.store.UpdateUploadStatus(ctx, jobID, model.StatusFailed, "Failed to queue job"); updErr != nil {
			common.Logger.WithField("error", updErr.Error()).Error("marking unqueued job failed")
		}
		return errorResponse(c, http.StatusServiceUnavailable, "queue unavailable, try again")
	}

	return c.JSON(http.StatusAccepted, job)
}

// handleJobStatus returns the record of any job kind. Upload records are
// looked up first, then query and schema records, so clients poll a single
// endpoint without knowing what they submitted.
func (s *Server) handleJobStatus(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("jobId")

	job, err := s.store.GetUpload(ctx, jobID)
	if err == nil {
		return c.JSON(http.StatusOK, job)
	}
	if fault.KindOf(err) != fault.KindNotFound {
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable")
	}

	queryJob, err := s.store.GetQuery(ctx, jobID)
	if err != nil {
		if fault.KindOf(err) == fault.KindNotFound {
			return errorResponse(c, http.StatusNotFound, "job not found")
		}
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable")
	}
	return c.JSON(http.StatusOK, queryJob)
}

type statusUpdateRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleStatusUpdate lets non-worker writers push a status transition.
// Only processing, completed and failed are accepted; a job is never moved
// back to queued. Unknown or expired job ids succeed without effect so late
// callbacks stay harmless.
func (s *Server) handleStatusUpdate(c echo.Context) error {
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid status update body")
	}
	status := strings.ToLower(req.Status)
	switch status {
	case model.StatusProcessing, model.StatusCompleted, model.StatusFailed:
	default:
		return errorResponse(c, http.StatusBadRequest, "invalid status %q", req.Status)
	}

	ctx := c.Request().Context()
	jobID := c.Param("jobId")

	// route to the record kind that exists; unknown ids fall through to the
	// upload store, whose update is a logged no-op
	if _, err := s.store.GetQuery(ctx, jobID); err == nil {
		if err := s.store.UpdateQueryStatus(ctx, jobID, status, req.Message); err != nil {
			return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable")
		}
	} else if err := s.store.UpdateUploadStatus(ctx, jobID, status, req.Message); err != nil {
		return errorResponse(c, http.StatusServiceUnavailable, "job store unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"jobId": jobID, "status": status})
}
