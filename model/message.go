package model

// JobMessage is the envelope published to the work queue. One message is
// published per job, after the job record is created; unknown fields in
// incoming messages are ignored.
type JobMessage struct {
	JobID     string    `json:"jobId"`
	JobType   string    `json:"jobType"`
	FilePath  string    `json:"filePath,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	TableName string    `json:"tableName,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	Source    string    `json:"source,omitempty"`
	QueryJSON string    `json:"queryJson,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}
