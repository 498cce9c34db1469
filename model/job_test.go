package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp{time.Date(2024, 3, 15, 9, 30, 5, 0, time.UTC)}

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-15T09:30:05"`, string(data))

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(ts.Time))
}

func TestTimestampZero(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &ts))
	assert.True(t, ts.IsZero())
}

func TestUploadJobWireFormat(t *testing.T) {
	job := UploadJob{
		JobID:     "j-1",
		ProjectID: "p1",
		FileName:  "sales.csv",
		FilePath:  "uploads/j-1/sales.csv",
		FileSize:  1024,
		Status:    StatusQueued,
		Message:   "File queued for processing",
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "j-1", m["jobId"])
	assert.Equal(t, "p1", m["projectId"])
	assert.NotContains(t, m, "userId") // omitted when empty
}

func TestJobMessageToleratesUnknownFields(t *testing.T) {
	raw := `{"jobId":"j-9","jobType":"upload","projectId":"p1","somethingNew":42}`
	var msg JobMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "j-9", msg.JobID)
	assert.Equal(t, KindUpload, msg.JobType)
}

func TestTerminalStatus(t *testing.T) {
	assert.True(t, TerminalStatus(StatusCompleted))
	assert.True(t, TerminalStatus(StatusFailed))
	assert.False(t, TerminalStatus(StatusQueued))
	assert.False(t, TerminalStatus(StatusProcessing))
}
