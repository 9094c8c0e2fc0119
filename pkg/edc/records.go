package edc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/jobs"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/models"
	"github.com/Sternrassler/edc-client/pkg/schema"
)

// CreateOptions control Records.Create.
type CreateOptions struct {
	// Validate checks every record against the study schema before anything
	// is sent.
	Validate bool

	// Wait polls the job until it reaches a terminal state.
	Wait bool
}

// Records lists records and submits record batches.
type Records struct {
	*endpoint.Endpoint[models.Record]

	client          *client.Client
	validator       *schema.Validator
	poller          *jobs.Poller
	defaultStudyKey string
}

// Create submits records as one batch job. With Validate, a single invalid
// record aborts the call before any network request. With Wait, the
// returned job is terminal; a failed or timed out job is returned as a
// *jobs.JobError.
func (r *Records) Create(ctx context.Context, studyKey string, records []map[string]any, opts CreateOptions) (*models.Job, error) {
	if studyKey == "" {
		studyKey = r.defaultStudyKey
	}
	if studyKey == "" {
		return nil, client.NewError(client.KindConfiguration, "study key is required to create records")
	}
	if len(records) == 0 {
		return nil, client.NewError(client.KindValidation, "no records to create")
	}

	logger := logging.WithStudy(logging.NewLogger("records"), studyKey)

	if opts.Validate {
		if err := r.validator.ValidateBatch(ctx, studyKey, records); err != nil {
			return nil, err
		}
	}

	resp, err := r.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   endpoint.StudyPath("records")(studyKey),
		Body:   records,
	})
	if err != nil {
		return nil, fmt.Errorf("create records: %w", err)
	}

	job, err := models.Parse[models.Job](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create records: %w", err)
	}

	logger.Info().
		Str("batch_id", job.BatchID).
		Int("records", len(records)).
		Msg("Record batch submitted")

	// The batch is already accepted; cache errors are only logged here.
	if err := r.Invalidate(ctx, studyKey); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate records cache")
	}

	if !opts.Wait {
		return &job, nil
	}

	return r.poller.Wait(ctx, studyKey, job.BatchID)
}

// CreateAsync starts Create on its own goroutine.
func (r *Records) CreateAsync(ctx context.Context, studyKey string, records []map[string]any, opts CreateOptions) *client.Future[*models.Job] {
	return client.Go(ctx, func(ctx context.Context) (*models.Job, error) {
		return r.Create(ctx, studyKey, records, opts)
	})
}
