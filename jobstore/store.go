// Package jobstore persists job records in Redis. Records are stored as JSON
// under a type-specific key prefix and expire after a configurable TTL; every
// write resets the expiry, so a job stays visible for the TTL after its most
// recent transition.
package jobstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

const (
	uploadKeyPrefix = "job:"
	queryKeyPrefix  = "query:"
)

// Store reads and writes job records.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// poolSize bounds the Redis connections held per process.
const poolSize = 8

// New creates a Store against the given Redis address.
func New(addr string, ttl time.Duration) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr, PoolSize: poolSize}),
		ttl:    ttl,
	}
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fault.Wrap(fault.KindJobStore, err, "pinging job store")
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fault.Wrap(fault.KindJobStore, err, "encoding job record %s", key)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fault.Wrap(fault.KindJobStore, err, "writing job record %s", key)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return fault.New(fault.KindNotFound, "job record %s not found", key)
	}
	if err != nil {
		return fault.Wrap(fault.KindJobStore, err, "reading job record %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fault.Wrap(fault.KindJobStore, err, "decoding job record %s", key)
	}
	return nil
}

// PutUpload writes an upload job record, resetting its TTL.
func (s *Store) PutUpload(ctx context.Context, job *model.UploadJob) error {
	return s.set(ctx, uploadKeyPrefix+job.JobID, job)
}

// GetUpload fetches an upload job record.
func (s *Store) GetUpload(ctx context.Context, jobID string) (*model.UploadJob, error) {
	var job model.UploadJob
	if err := s.get(ctx, uploadKeyPrefix+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PutQuery writes a query job record, resetting its TTL.
func (s *Store) PutQuery(ctx context.Context, job *model.QueryJob) error {
	return s.set(ctx, queryKeyPrefix+job.JobID, job)
}

// GetQuery fetches a query job record.
func (s *Store) GetQuery(ctx context.Context, jobID string) (*model.QueryJob, error) {
	var job model.QueryJob
	if err := s.get(ctx, queryKeyPrefix+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateUploadStatus performs a read-merge-write of status and message on an
// upload job. Unknown job ids are logged and ignored so that status updates
// arriving after expiry do not fail the caller.
func (s *Store) UpdateUploadStatus(ctx context.Context, jobID, status, message string) error {
	job, err := s.GetUpload(ctx, jobID)
	if err != nil {
		if fault.KindOf(err) == fault.KindNotFound {
			common.Logger.WithField("jobId", jobID).Warn("status update for unknown upload job, ignoring")
			return nil
		}
		return err
	}
	job.Status = status
	job.Message = message
	job.UpdatedAt = model.Now()
	return s.PutUpload(ctx, job)
}

// UpdateQueryStatus performs a read-merge-write of status and message on a
// query job.
func (s *Store) UpdateQueryStatus(ctx context.Context, jobID, status, message string) error {
	job, err := s.GetQuery(ctx, jobID)
	if err != nil {
		if fault.KindOf(err) == fault.KindNotFound {
			common.Logger.WithField("jobId", jobID).Warn("status update for unknown query job, ignoring")
			return nil
		}
		return err
	}
	job.Status = status
	job.Message = message
	job.UpdatedAt = model.Now()
	return s.PutQuery(ctx, job)
}

// CompleteQuery marks a query job completed and attaches its result in a
// single write.
func (s *Store) CompleteQuery(ctx context.Context, jobID, message string, result *model.QueryResult) error {
	job, err := s.GetQuery(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = model.StatusCompleted
	job.Message = message
	job.UpdatedAt = model.Now()
	job.ResultPath = result.ResultPath
	rc := result.RowCount
	job.RowCount = &rc
	fs := result.FileSizeBytes
	job.FileSizeBytes = &fs
	job.ResultData = result.Preview
	return s.PutQuery(ctx, job)
}
