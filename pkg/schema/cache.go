// Package schema caches per-study form and variable metadata and validates
// outbound record payloads against it before they are sent.
package schema

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/models"
)

var (
	edcSchemaRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edc_schema_refreshes_total",
		Help: "Total schema snapshot rebuilds",
	})

	edcSchemaValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_schema_validation_failures_total",
		Help: "Total records rejected by local validation by error kind",
	}, []string{"kind"})
)

// VariableMeta is the part of a variable declaration the validator uses.
type VariableMeta struct {
	Name     string
	Type     string
	Required bool
}

// Lister lists a resource. *endpoint.Endpoint satisfies it.
type Lister[T any] interface {
	List(ctx context.Context, opts endpoint.ListOptions) ([]T, error)
}

// snapshot is one study's complete schema. It is never modified after it
// has been published.
type snapshot struct {
	forms   map[string]map[string]VariableMeta
	formIDs map[int]string
}

// Cache holds one schema snapshot per study. A Refresh builds a new snapshot
// off to the side and publishes it with a single store, so readers see
// either the old or the new snapshot in full.
type Cache struct {
	variables Lister[models.Variable]
	forms     Lister[models.Form]
	snapshots sync.Map // study key -> *snapshot
	logger    zerolog.Logger
}

// NewCache creates a Cache reading metadata through the given listers.
func NewCache(variables Lister[models.Variable], forms Lister[models.Form]) *Cache {
	return &Cache{
		variables: variables,
		forms:     forms,
		logger:    logging.NewLogger("schema"),
	}
}

func (c *Cache) load(studyKey string) *snapshot {
	if v, ok := c.snapshots.Load(studyKey); ok {
		return v.(*snapshot)
	}
	return nil
}

// Refresh fetches the study's forms and variables and replaces its snapshot.
// On error the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context, studyKey string) error {
	if studyKey == "" {
		return client.NewError(client.KindConfiguration, "study key is required to refresh schema")
	}

	forms, err := c.forms.List(ctx, endpoint.ListOptions{StudyKey: studyKey, Refresh: true})
	if err != nil {
		return fmt.Errorf("refresh schema for %s: %w", studyKey, err)
	}
	variables, err := c.variables.List(ctx, endpoint.ListOptions{StudyKey: studyKey, Refresh: true})
	if err != nil {
		return fmt.Errorf("refresh schema for %s: %w", studyKey, err)
	}

	snap := buildSnapshot(forms, variables)
	c.snapshots.Store(studyKey, snap)
	edcSchemaRefreshes.Inc()

	logger := logging.WithStudy(c.logger, studyKey)
	logger.Info().
		Int("forms", len(snap.forms)).
		Int("variables", len(variables)).
		Msg("Schema refreshed")

	return nil
}

func buildSnapshot(forms []models.Form, variables []models.Variable) *snapshot {
	snap := &snapshot{
		forms:   make(map[string]map[string]VariableMeta, len(forms)),
		formIDs: make(map[int]string, len(forms)),
	}

	for _, f := range forms {
		snap.formIDs[f.FormID] = f.FormKey
		snap.forms[f.FormKey] = make(map[string]VariableMeta)
	}

	for _, v := range variables {
		formKey := v.FormKey
		if formKey == "" {
			formKey = snap.formIDs[v.FormID]
		}
		if formKey == "" {
			continue
		}
		if v.FormID != 0 {
			snap.formIDs[v.FormID] = formKey
		}

		vars, ok := snap.forms[formKey]
		if !ok {
			vars = make(map[string]VariableMeta)
			snap.forms[formKey] = vars
		}
		vars[v.VariableName] = VariableMeta{
			Name:     v.VariableName,
			Type:     v.VariableType,
			Required: v.Required,
		}
	}

	return snap
}

// RefreshAsync runs Refresh on its own goroutine.
func (c *Cache) RefreshAsync(ctx context.Context, studyKey string) *client.Future[struct{}] {
	return client.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Refresh(ctx, studyKey)
	})
}

// Variables returns a copy of the variables declared on a form.
func (c *Cache) Variables(studyKey, formKey string) (map[string]VariableMeta, bool) {
	snap := c.load(studyKey)
	if snap == nil {
		return nil, false
	}
	vars, ok := snap.forms[formKey]
	if !ok {
		return nil, false
	}
	return maps.Clone(vars), true
}

// FormKey translates a form id to its key.
func (c *Cache) FormKey(studyKey string, formID int) (string, bool) {
	snap := c.load(studyKey)
	if snap == nil {
		return "", false
	}
	key, ok := snap.formIDs[formID]
	return key, ok
}

// Forms returns the sorted form keys of the study's snapshot.
func (c *Cache) Forms(studyKey string) []string {
	snap := c.load(studyKey)
	if snap == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(snap.forms))
}

// Invalidate drops the study's snapshot.
func (c *Cache) Invalidate(studyKey string) {
	c.snapshots.Delete(studyKey)
}
