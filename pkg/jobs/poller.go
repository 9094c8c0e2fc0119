// Package jobs waits for asynchronous EDC write jobs to finish.
package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/models"
)

var (
	edcJobPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edc_job_polls_total",
		Help: "Total job status fetches",
	})

	edcJobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_job_outcomes_total",
		Help: "Total finished job waits by outcome",
	}, []string{"outcome"}) // "completed", "failed", "cancelled", "timeout"
)

// Fetcher returns the current status of a job.
type Fetcher interface {
	Job(ctx context.Context, studyKey, batchID string) (*models.Job, error)
}

// Getter is the part of *client.Client a ClientFetcher needs.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (*client.Response, error)
}

// ClientFetcher reads job status from GET .../studies/{studyKey}/jobs/{batchId}.
type ClientFetcher struct {
	client Getter
}

// NewClientFetcher creates a Fetcher backed by c.
func NewClientFetcher(c Getter) *ClientFetcher {
	return &ClientFetcher{client: c}
}

// Path returns the job status path.
func Path(studyKey, batchID string) string {
	return endpoint.StudyPath("jobs")(studyKey) + "/" + url.PathEscape(batchID)
}

// Job implements Fetcher.
func (f *ClientFetcher) Job(ctx context.Context, studyKey, batchID string) (*models.Job, error) {
	resp, err := f.client.Get(ctx, Path(studyKey, batchID), nil)
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := resp.JSON(&job); err != nil {
		return nil, fmt.Errorf("job %s: %w", batchID, err)
	}
	if err := models.Validate(&job); err != nil {
		return nil, fmt.Errorf("job %s: %w", batchID, err)
	}
	return &job, nil
}

// Config holds poller configuration.
type Config struct {
	// PollInterval is slept between status fetches. Zero polls back to back.
	PollInterval time.Duration

	// Timeout bounds the whole wait. It is independent of the per-request
	// timeout of the underlying client. Zero means DefaultConfig().Timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default polling cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Timeout:      5 * time.Minute,
	}
}

// Poller waits for jobs to reach a terminal state.
type Poller struct {
	fetcher Fetcher
	config  Config
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewPoller creates a Poller. A negative PollInterval is treated as zero and
// a Timeout of zero or less falls back to DefaultConfig().Timeout.
func NewPoller(fetcher Fetcher, cfg Config) *Poller {
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		fetcher: fetcher,
		config:  cfg,
		now:     time.Now,
		sleep:   client.Sleep,
		logger:  logging.NewLogger("jobs"),
	}
}

// IsTerminal reports whether state is completed, failed or cancelled.
func IsTerminal(state string) bool {
	switch normalize(state) {
	case models.JobCompleted, models.JobFailed, models.JobCancelled:
		return true
	default:
		return false
	}
}

func normalize(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

// Wait fetches the job's status immediately and then after every poll
// interval until it is terminal.
//
// A completed job is returned. A failed or cancelled job is returned together
// with a *JobError of kind job_failed. When the timeout has elapsed after a
// poll interval, Wait returns a *JobError of kind job_timeout carrying the
// last observed job instead of fetching again. A non-terminal job is never
// returned without an error.
func (p *Poller) Wait(ctx context.Context, studyKey, batchID string) (*models.Job, error) {
	start := p.now()
	logger := logging.WithStudy(p.logger, studyKey).With().Str("batch_id", batchID).Logger()

	for polls := 1; ; polls++ {
		job, err := p.fetcher.Job(ctx, studyKey, batchID)
		edcJobPolls.Inc()
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", batchID, err)
		}

		switch state := normalize(job.State); state {
		case models.JobCompleted:
			edcJobOutcomes.WithLabelValues(state).Inc()
			logger.Info().Int("polls", polls).Msg("Job completed")
			return job, nil
		case models.JobFailed, models.JobCancelled:
			edcJobOutcomes.WithLabelValues(state).Inc()
			logger.Warn().Int("polls", polls).Str("state", job.State).Msg("Job did not complete")
			return job, newJobError(client.KindJobFailed, batchID, job, p.now().Sub(start))
		}

		logger.Debug().Int("polls", polls).Str("state", job.State).Msg("Job still running")

		if err := p.sleep(ctx, p.config.PollInterval); err != nil {
			return nil, fmt.Errorf("wait for job %s: %w", batchID, err)
		}

		if elapsed := p.now().Sub(start); elapsed > p.config.Timeout {
			edcJobOutcomes.WithLabelValues("timeout").Inc()
			logger.Warn().Int("polls", polls).Str("state", job.State).Dur("elapsed", elapsed).Msg("Job wait timed out")
			return nil, newJobError(client.KindJobTimeout, batchID, job, elapsed)
		}
	}
}

// WaitAsync runs Wait on its own goroutine.
func (p *Poller) WaitAsync(ctx context.Context, studyKey, batchID string) *client.Future[*models.Job] {
	return client.Go(ctx, func(ctx context.Context) (*models.Job, error) {
		return p.Wait(ctx, studyKey, batchID)
	})
}
