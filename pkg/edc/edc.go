// Package edc is the SDK entry point. It wires one request executor into
// the resource endpoints, the schema validator and the job poller.
//
// Basic usage:
//
//	sdk, err := edc.New(client.DefaultConfig(apiKey, securityKey),
//		edc.WithDefaultStudyKey("MY-STUDY"))
//	if err != nil {
//		return err
//	}
//	sites, err := sdk.Sites().List(ctx, endpoint.ListOptions{})
package edc

import (
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/edc-client/pkg/cache"
	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/config"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/jobs"
	"github.com/Sternrassler/edc-client/pkg/models"
	"github.com/Sternrassler/edc-client/pkg/pagination"
	"github.com/Sternrassler/edc-client/pkg/ratelimit"
	"github.com/Sternrassler/edc-client/pkg/schema"
)

type options struct {
	defaultStudyKey string
	redis           redis.UniversalClient
	noCache         bool
	jobs            jobs.Config
	limiter         client.Waiter
}

// Option configures an SDK.
type Option func(*options)

// WithDefaultStudyKey is used by study-scoped calls that name no study.
func WithDefaultStudyKey(studyKey string) Option {
	return func(o *options) {
		o.defaultStudyKey = studyKey
	}
}

// WithRedis backs every endpoint cache with redis instead of process memory.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = rdb
	}
}

// WithoutCache disables list caching.
func WithoutCache() Option {
	return func(o *options) {
		o.noCache = true
	}
}

// WithJobsConfig sets the job polling interval and timeout.
func WithJobsConfig(cfg jobs.Config) Option {
	return func(o *options) {
		o.jobs = cfg
	}
}

// WithRateLimit gates every request attempt on limiter.
func WithRateLimit(limiter client.Waiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}

// SDK bundles the EDC resources behind one client.
type SDK struct {
	client *client.Client

	studies   *endpoint.Endpoint[models.Study]
	sites     *endpoint.Endpoint[models.Site]
	subjects  *endpoint.Endpoint[models.Subject]
	forms     *endpoint.Endpoint[models.Form]
	variables *endpoint.Endpoint[models.Variable]
	records   *Records

	validator *schema.Validator
	poller    *jobs.Poller
}

// New creates an SDK.
func New(cfg client.Config, opts ...Option) (*SDK, error) {
	o := options{jobs: jobs.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.limiter != nil {
		cfg.Limiter = o.limiter
	}

	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := pagination.NewClientFetcher(c)

	sdk := &SDK{
		client:    c,
		studies:   newEndpoint(endpoint.Studies(), fetcher, o),
		sites:     newEndpoint(endpoint.Sites(), fetcher, o),
		subjects:  newEndpoint(endpoint.Subjects(), fetcher, o),
		forms:     newEndpoint(endpoint.Forms(), fetcher, o),
		variables: newEndpoint(endpoint.Variables(), fetcher, o),
	}

	sdk.validator = schema.NewValidator(schema.NewCache(sdk.variables, sdk.forms))
	sdk.poller = jobs.NewPoller(jobs.NewClientFetcher(c), o.jobs)
	sdk.records = &Records{
		Endpoint:        newEndpoint(endpoint.Records(), fetcher, o),
		client:          c,
		validator:       sdk.validator,
		poller:          sdk.poller,
		defaultStudyKey: o.defaultStudyKey,
	}

	return sdk, nil
}

// NewFromConfig creates an SDK from loaded configuration. rdb may be nil.
func NewFromConfig(cfg *config.Config, rdb redis.UniversalClient) (*SDK, error) {
	opts := []Option{
		WithDefaultStudyKey(cfg.StudyKey),
		WithJobsConfig(cfg.JobsConfig()),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(ratelimit.New(cfg.RateLimitConfig())))
	}
	if rdb != nil {
		opts = append(opts, WithRedis(rdb))
	}
	return New(cfg.ClientConfig(), opts...)
}

func newEndpoint[T any](res endpoint.Resource[T], fetcher pagination.PageFetcher, o options) *endpoint.Endpoint[T] {
	epOpts := []endpoint.Option[T]{endpoint.WithDefaultStudyKey[T](o.defaultStudyKey)}

	switch {
	case o.noCache:
	case o.redis != nil:
		epOpts = append(epOpts, endpoint.WithCache[T](cache.NewRedisStore[T](o.redis, res.Name)))
	default:
		epOpts = append(epOpts, endpoint.WithCache[T](cache.NewMemoryStore[T]()))
	}

	return endpoint.New(res, fetcher, epOpts...)
}

// Client returns the underlying request executor.
func (s *SDK) Client() *client.Client { return s.client }

// Studies returns the studies endpoint.
func (s *SDK) Studies() *endpoint.Endpoint[models.Study] { return s.studies }

// Sites returns the sites endpoint.
func (s *SDK) Sites() *endpoint.Endpoint[models.Site] { return s.sites }

// Subjects returns the subjects endpoint.
func (s *SDK) Subjects() *endpoint.Endpoint[models.Subject] { return s.subjects }

// Forms returns the forms endpoint.
func (s *SDK) Forms() *endpoint.Endpoint[models.Form] { return s.forms }

// Variables returns the variables endpoint.
func (s *SDK) Variables() *endpoint.Endpoint[models.Variable] { return s.variables }

// Records returns the records endpoint and write workflow.
func (s *SDK) Records() *Records { return s.records }

// Schema returns the record validator.
func (s *SDK) Schema() *schema.Validator { return s.validator }

// Jobs returns the job poller.
func (s *SDK) Jobs() *jobs.Poller { return s.poller }
