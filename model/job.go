// Package model holds the job records, the bus message and the structured
// query specification shared by the coordinator and the worker. All types
// marshal to the wire format consumed by polling clients; field names are
// part of the public API and must not change.
package model

import "encoding/json"

// Job status values. A job only ever moves queued -> processing ->
// {completed, failed}; the terminal states are final.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job kinds carried in JobMessage.JobType.
const (
	KindUpload = "upload"
	KindQuery  = "query"
	KindSchema = "schema"
)

// TerminalStatus reports whether s is completed or failed.
func TerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}

// UploadJob tracks a file upload from submission through ingestion.
type UploadJob struct {
	JobID     string    `json:"jobId"`
	UserID    string    `json:"userId,omitempty"`
	ProjectID string    `json:"projectId"`
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath"`
	TableName string    `json:"tableName,omitempty"`
	FileSize  int64     `json:"fileSize"`
	Timestamp Timestamp `json:"timestamp"`
	UpdatedAt Timestamp `json:"updatedAt"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// QueryJob tracks a query or schema request. On completion it carries the
// result location, row count, file size, and up to PREVIEW_MAX_ROWS rows of
// inline JSON data.
type QueryJob struct {
	JobID     string    `json:"jobId"`
	JobType   string    `json:"jobType"`
	Source    string    `json:"source"`
	QueryJSON string    `json:"queryJson"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
	UpdatedAt Timestamp `json:"updatedAt"`

	ResultPath    *string         `json:"resultPath,omitempty"`
	RowCount      *int64          `json:"rowCount,omitempty"`
	FileSizeBytes *int64          `json:"fileSizeBytes,omitempty"`
	ResultData    json.RawMessage `json:"resultData,omitempty"`
}

// QueryResult groups the fields written when a query job completes.
type QueryResult struct {
	ResultPath    *string
	RowCount      int64
	FileSizeBytes int64
	// Preview is a JSON array of row objects, bounded by the configured
	// preview limit.
	Preview json.RawMessage
}
