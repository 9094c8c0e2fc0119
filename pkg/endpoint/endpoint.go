// Package endpoint implements the list/get behavior shared by every EDC
// resource: filter merging, study key resolution, the per-study list cache
// and pagination assembly.
//
// A resource is described once by a Resource value. Endpoint[T] runs the
// shared decision logic for it; the blocking methods (List, Get) and the
// cooperative ones (ListAsync, GetAsync) go through the same code.
package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/cache"
	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/filter"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/models"
	"github.com/Sternrassler/edc-client/pkg/pagination"
)

var (
	edcListCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_list_calls_total",
		Help: "Total list calls by resource and source (cache, network)",
	}, []string{"resource", "source"})

	edcListItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edc_list_items",
		Help:    "Items fetched from the network per list call",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// StudyKeyFilter is the filter field carrying the study key.
const StudyKeyFilter = "studyKey"

// DefaultPageSize is used when a Resource does not set PageSize.
const DefaultPageSize = 100

// Resource describes one EDC resource type.
type Resource[T any] struct {
	// Name is used in errors, logs and metrics (e.g. "sites").
	Name string

	// Path builds the listing path. studyKey is "" for resources that are
	// not study-scoped.
	Path func(studyKey string) string

	// IDField is the filter field Get matches on.
	IDField string

	// StudyScoped resources require a study key and cache per study.
	StudyScoped bool

	// PageSize requested from the server (default: DefaultPageSize).
	PageSize int

	// Parse decodes one raw item. Defaults to models.Parse.
	Parse func(raw json.RawMessage) (T, error)

	// MissingStudyKey builds the error returned when a study-scoped list
	// cannot resolve a study key. Defaults to a configuration error.
	MissingStudyKey func(resource string) error
}

func (r Resource[T]) parse(raw json.RawMessage) (T, error) {
	if r.Parse != nil {
		return r.Parse(raw)
	}
	return models.Parse[T](raw)
}

func (r Resource[T]) missingStudyKey() error {
	if r.MissingStudyKey != nil {
		return r.MissingStudyKey(r.Name)
	}
	return client.NewError(client.KindConfiguration, "study key is required to list %s", r.Name)
}

func (r Resource[T]) pageSize() int {
	if r.PageSize > 0 {
		return r.PageSize
	}
	return DefaultPageSize
}

// ListOptions are the arguments of List.
type ListOptions struct {
	// StudyKey takes precedence over a studyKey entry in Filters.
	StudyKey string

	// Refresh bypasses the cache read. The result is still cached when no
	// extra filters were given.
	Refresh bool

	// ExtraParams are added to the query string of every page request.
	ExtraParams url.Values

	// Filters map field names to a value, a filter.Op or a slice.
	Filters map[string]any
}

// Option configures an Endpoint.
type Option[T any] func(*Endpoint[T])

// WithCache sets the list cache. Without it every List goes to the network.
func WithCache[T any](store cache.Store[T]) Option[T] {
	return func(e *Endpoint[T]) {
		e.cache = store
	}
}

// WithAutoFilters sets filters merged under every caller's filters.
func WithAutoFilters[T any](filters map[string]any) Option[T] {
	return func(e *Endpoint[T]) {
		e.autoFilters = maps.Clone(filters)
	}
}

// WithDefaultStudyKey adds a studyKey auto filter to study-scoped resources.
func WithDefaultStudyKey[T any](studyKey string) Option[T] {
	return func(e *Endpoint[T]) {
		if studyKey == "" || !e.resource.StudyScoped {
			return
		}
		if e.autoFilters == nil {
			e.autoFilters = make(map[string]any)
		}
		e.autoFilters[StudyKeyFilter] = studyKey
	}
}

// Endpoint runs list/get for one resource. It is safe for concurrent use;
// concurrent cache writers for one study resolve last-writer-wins.
type Endpoint[T any] struct {
	resource    Resource[T]
	fetcher     pagination.PageFetcher
	cache       cache.Store[T]
	autoFilters map[string]any
	logger      zerolog.Logger
}

// New creates an Endpoint for res fetching pages through fetcher.
func New[T any](res Resource[T], fetcher pagination.PageFetcher, opts ...Option[T]) *Endpoint[T] {
	e := &Endpoint[T]{
		resource: res,
		fetcher:  fetcher,
		logger:   logging.NewLogger("endpoint").With().Str("resource", res.Name).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resource returns the endpoint's descriptor.
func (e *Endpoint[T]) Resource() Resource[T] {
	return e.resource
}

// listPlan is the outcome of the shared decision logic for one List call.
type listPlan struct {
	studyKey string
	// scope is the cache slot: the study key, or cache.GlobalKey.
	scope string
	// cacheable is true when no filter beyond the study key was given.
	cacheable bool
	path      string
	params    url.Values
}

// plan merges filters, resolves the study key and decides cache use.
func (e *Endpoint[T]) plan(opts ListOptions) (listPlan, error) {
	merged := make(map[string]any, len(e.autoFilters)+len(opts.Filters))
	maps.Copy(merged, e.autoFilters)
	maps.Copy(merged, opts.Filters)

	var p listPlan
	extra := merged

	if e.resource.StudyScoped {
		p.studyKey = opts.StudyKey
		if p.studyKey == "" {
			if s, ok := merged[StudyKeyFilter].(string); ok {
				p.studyKey = s
			}
		}
		if p.studyKey == "" {
			return listPlan{}, e.resource.missingStudyKey()
		}

		// The study key travels in the path, so it is neither an extra
		// filter nor part of the filter expression.
		extra = maps.Clone(merged)
		delete(extra, StudyKeyFilter)
		p.scope = p.studyKey
	} else {
		p.scope = cache.GlobalKey
	}

	p.cacheable = len(extra) == 0
	p.path = e.resource.Path(p.studyKey)

	p.params = make(url.Values, len(opts.ExtraParams)+1)
	for k, v := range opts.ExtraParams {
		p.params[k] = append([]string(nil), v...)
	}
	if expr := filter.Build(extra); expr != "" {
		p.params.Set("filter", expr)
	}

	return p, nil
}

// List returns every item matching opts.
//
// With no filter beyond the study key and Refresh unset, a cached listing is
// returned without network calls. Otherwise the listing is fetched page by
// page; when no extra filters were given the result replaces the cache entry
// for the study (or the global slot).
func (e *Endpoint[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	p, err := e.plan(opts)
	if err != nil {
		return nil, err
	}

	logger := logging.WithStudy(e.logger, p.studyKey)

	if p.cacheable && !opts.Refresh && e.cache != nil {
		items, ok, err := e.cache.Get(ctx, p.scope)
		if err != nil {
			return nil, fmt.Errorf("read %s cache: %w", e.resource.Name, err)
		}
		if ok {
			edcListCalls.WithLabelValues(e.resource.Name, "cache").Inc()
			logger.Debug().Int("items", len(items)).Msg("Serving list from cache")
			return items, nil
		}
	}

	items, err := e.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	edcListCalls.WithLabelValues(e.resource.Name, "network").Inc()
	edcListItems.Observe(float64(len(items)))

	if p.cacheable && e.cache != nil {
		if err := e.cache.Set(ctx, p.scope, items); err != nil {
			return nil, fmt.Errorf("write %s cache: %w", e.resource.Name, err)
		}
		logger.Debug().Int("items", len(items)).Msg("Cached list")
	}

	return items, nil
}

func (e *Endpoint[T]) fetch(ctx context.Context, p listPlan) ([]T, error) {
	pager := pagination.New(e.fetcher, p.path, p.params, e.resource.pageSize())

	items := make([]T, 0)
	for raw, err := range pager.All(ctx) {
		if err != nil {
			return nil, err
		}
		item, err := e.resource.parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s item %d: %w", e.resource.Name, len(items), err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns the single item whose IDField equals id. The cache is never
// consulted. An empty result is a not-found error naming the resource, the
// id and, for study-scoped resources, the study.
func (e *Endpoint[T]) Get(ctx context.Context, studyKey string, id any) (T, error) {
	var zero T

	items, err := e.List(ctx, ListOptions{
		StudyKey: studyKey,
		Refresh:  true,
		Filters:  map[string]any{e.resource.IDField: id},
	})
	if err != nil {
		return zero, err
	}

	if len(items) == 0 {
		if e.resource.StudyScoped {
			return zero, client.NewError(client.KindNotFound, "%s %v not found in study %s", e.resource.Name, id, e.studyKeyFor(studyKey))
		}
		return zero, client.NewError(client.KindNotFound, "%s %v not found", e.resource.Name, id)
	}
	return items[0], nil
}

// studyKeyFor reports the study a Get resolved to.
func (e *Endpoint[T]) studyKeyFor(studyKey string) string {
	if studyKey != "" {
		return studyKey
	}
	s, _ := e.autoFilters[StudyKeyFilter].(string)
	return s
}

// ListAsync runs List on its own goroutine.
func (e *Endpoint[T]) ListAsync(ctx context.Context, opts ListOptions) *client.Future[[]T] {
	return client.Go(ctx, func(ctx context.Context) ([]T, error) {
		return e.List(ctx, opts)
	})
}

// GetAsync runs Get on its own goroutine.
func (e *Endpoint[T]) GetAsync(ctx context.Context, studyKey string, id any) *client.Future[T] {
	return client.Go(ctx, func(ctx context.Context) (T, error) {
		return e.Get(ctx, studyKey, id)
	})
}

// Invalidate drops the cached listing for studyKey. Resources that are not
// study-scoped ignore studyKey and drop their single global entry.
func (e *Endpoint[T]) Invalidate(ctx context.Context, studyKey string) error {
	if e.cache == nil {
		return nil
	}
	scope := cache.GlobalKey
	if e.resource.StudyScoped {
		scope = studyKey
	}
	return e.cache.Delete(ctx, scope)
}

// InvalidateAll drops every cached listing of the endpoint.
func (e *Endpoint[T]) InvalidateAll(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}
