// Package worker consumes job messages and runs them through the matching
// executor. Acknowledgement policy lives here: completed jobs are acked,
// transient failures are requeued with the job left in processing, and
// deterministic failures are marked failed and dropped from the queue.
package worker

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/streadway/amqp"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// failureMessageLimit bounds status messages written for failed jobs.
const failureMessageLimit = 500

// StatusStore is the job record access the executors need.
type StatusStore interface {
	GetUpload(ctx context.Context, jobID string) (*model.UploadJob, error)
	UpdateUploadStatus(ctx context.Context, jobID, status, message string) error
	GetQuery(ctx context.Context, jobID string) (*model.QueryJob, error)
	UpdateQueryStatus(ctx context.Context, jobID, status, message string) error
	CompleteQuery(ctx context.Context, jobID, message string, result *model.QueryResult) error
}

// Executor runs one kind of job to completion, including its own status
// writes on success.
type Executor interface {
	Execute(ctx context.Context, msg *model.JobMessage) error
}

// Dispatcher routes deliveries to executors by job type.
type Dispatcher struct {
	store     StatusStore
	executors map[string]Executor
}

// NewDispatcher wires the executors for the three job kinds.
func NewDispatcher(store StatusStore, upload, query, schema Executor) *Dispatcher {
	return &Dispatcher{
		store: store,
		executors: map[string]Executor{
			model.KindUpload: upload,
			model.KindQuery:  query,
			model.KindSchema: schema,
		},
	}
}

// jobIDPattern extracts a job id from a payload that does not parse as JSON.
var jobIDPattern = regexp.MustCompile(`"jobId"\s*:\s*"([^"]+)"`)

// Handle processes one delivery and acks or nacks it. Malformed messages
// cannot be retried and are dropped, after a best-effort attempt to mark
// the job they reference failed.
func (d *Dispatcher) Handle(ctx context.Context, delivery amqp.Delivery) {
	var msg model.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		common.Logger.WithField("error", err.Error()).Error("dropping malformed job message")
		if m := jobIDPattern.FindSubmatch(delivery.Body); m != nil {
			d.markFailed(ctx, &model.JobMessage{JobID: string(m[1])},
				fault.Wrap(fault.KindInvalidInput, err, "malformed job message"))
		}
		d.nack(delivery, false)
		return
	}

	log := common.Logger.WithFields(map[string]interface{}{
		"jobId":   msg.JobID,
		"jobType": msg.JobType,
	})

	exec, ok := d.executors[msg.JobType]
	if !ok {
		err := fault.New(fault.KindInvalidInput, "unknown kind: %q", msg.JobType)
		log.Error(err.Error())
		d.markFailed(ctx, &msg, err)
		d.nack(delivery, false)
		return
	}

	log.Info("processing job")
	err := exec.Execute(ctx, &msg)
	if err == nil {
		log.Info("job completed")
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.WithField("error", ackErr.Error()).Error("acking delivery")
		}
		return
	}

	if fault.IsTransient(err) {
		// leave the job in processing; the redelivery will retry it
		log.WithField("error", err.Error()).Warn("transient failure, requeueing job")
		d.nack(delivery, true)
		return
	}

	log.WithField("error", err.Error()).Error("job failed")
	d.markFailed(ctx, &msg, err)
	d.nack(delivery, false)
}

// markFailed writes the terminal failed status for the job. Status write
// errors are logged only; the nack decision already stands.
func (d *Dispatcher) markFailed(ctx context.Context, msg *model.JobMessage, cause error) {
	message := fault.Message(cause, failureMessageLimit)
	var err error
	switch msg.JobType {
	case model.KindQuery, model.KindSchema:
		err = d.store.UpdateQueryStatus(ctx, msg.JobID, model.StatusFailed, message)
	case model.KindUpload:
		err = d.store.UpdateUploadStatus(ctx, msg.JobID, model.StatusFailed, message)
	default:
		// kind missing or unrecognized: write whichever record exists
		if _, getErr := d.store.GetQuery(ctx, msg.JobID); getErr == nil {
			err = d.store.UpdateQueryStatus(ctx, msg.JobID, model.StatusFailed, message)
		} else {
			err = d.store.UpdateUploadStatus(ctx, msg.JobID, model.StatusFailed, message)
		}
	}
	if err != nil {
		common.Logger.WithFields(map[string]interface{}{
			"jobId": msg.JobID,
			"error": err.Error(),
		}).Error("writing failed status")
	}
}

func (d *Dispatcher) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		common.Logger.WithField("error", err.Error()).Error("nacking delivery")
	}
}
