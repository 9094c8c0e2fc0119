package jobs

import (
	"fmt"
	"time"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/models"
)

// JobError reports a job that failed, was cancelled, or did not finish in
// time. It unwraps to a *client.Error of kind job_failed or job_timeout.
type JobError struct {
	BatchID string
	// State is the last observed state.
	State string
	// Job is the last observed status.
	Job     *models.Job
	Elapsed time.Duration
	err     *client.Error
}

func newJobError(kind client.ErrorKind, batchID string, job *models.Job, elapsed time.Duration) *JobError {
	var msg string
	switch kind {
	case client.KindJobTimeout:
		msg = fmt.Sprintf("job %s still %s after %s", batchID, job.State, elapsed.Round(time.Millisecond))
	default:
		msg = fmt.Sprintf("job %s ended in state %s", batchID, job.State)
		if job.Error != "" {
			msg += ": " + job.Error
		}
	}

	return &JobError{
		BatchID: batchID,
		State:   job.State,
		Job:     job,
		Elapsed: elapsed,
		err:     &client.Error{Kind: kind, Message: msg},
	}
}

// Kind returns job_failed or job_timeout.
func (e *JobError) Kind() client.ErrorKind {
	return e.err.Kind
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the typed client error.
func (e *JobError) Unwrap() error {
	return e.err
}
