package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/models"
)

var edcPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "edc_pages_fetched_total",
	Help: "Total listing pages fetched",
})

// Query parameter names for page addressing.
const (
	ParamPage = "page"
	ParamSize = "size"
)

// PageRequest identifies one page fetch. It is never modified after creation.
type PageRequest struct {
	Path   string
	Params url.Values
	Page   int
	Size   int
}

// Query returns Params plus the page and size parameters.
func (r PageRequest) Query() url.Values {
	q := make(url.Values, len(r.Params)+2)
	for k, v := range r.Params {
		q[k] = append([]string(nil), v...)
	}
	q.Set(ParamPage, strconv.Itoa(r.Page))
	q.Set(ParamSize, strconv.Itoa(r.Size))
	return q
}

// Page is one fetched page of raw items.
type Page struct {
	Items      []json.RawMessage
	Pagination *models.Pagination
	Metadata   models.Metadata
}

// PageFetcher fetches a single page.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// Getter is the part of *client.Client a ClientFetcher needs.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (*client.Response, error)
}

// ClientFetcher fetches pages through the EDC request executor and decodes
// the list envelope.
type ClientFetcher struct {
	client Getter
}

// NewClientFetcher creates a PageFetcher backed by c.
func NewClientFetcher(c Getter) *ClientFetcher {
	return &ClientFetcher{client: c}
}

// FetchPage implements PageFetcher.
func (f *ClientFetcher) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	resp, err := f.client.Get(ctx, req.Path, req.Query())
	if err != nil {
		return nil, err
	}

	var env models.Envelope[json.RawMessage]
	if err := resp.JSON(&env); err != nil {
		return nil, fmt.Errorf("page %d of %s: %w", req.Page, req.Path, err)
	}

	return &Page{Items: env.Data, Pagination: env.Pagination, Metadata: env.Metadata}, nil
}

// Paginator describes a listing walk. It holds no iteration state and may be
// iterated any number of times; each iteration starts again at page 0.
type Paginator struct {
	fetcher  PageFetcher
	path     string
	params   url.Values
	pageSize int
	logger   zerolog.Logger
}

// New creates a Paginator. pageSize is sent to the server unchanged.
func New(fetcher PageFetcher, path string, params url.Values, pageSize int) *Paginator {
	return &Paginator{
		fetcher:  fetcher,
		path:     path,
		params:   params,
		pageSize: pageSize,
		logger:   logging.NewLogger("pagination"),
	}
}

// Cursor starts a new walk.
func (p *Paginator) Cursor() *Cursor {
	return &Cursor{p: p}
}

// Cursor is a single pull-based walk over a Paginator. It is not safe for
// concurrent use.
type Cursor struct {
	p    *Paginator
	page int
	buf  []json.RawMessage
	done bool
}

// Next returns the next item. ok is false once the listing is exhausted.
// A failed page fetch is returned as err and may be retried by calling Next
// again.
func (c *Cursor) Next(ctx context.Context) (item json.RawMessage, ok bool, err error) {
	for len(c.buf) == 0 {
		if c.done {
			return nil, false, nil
		}
		if err := c.fetch(ctx); err != nil {
			return nil, false, err
		}
	}

	item, c.buf = c.buf[0], c.buf[1:]
	return item, true, nil
}

func (c *Cursor) fetch(ctx context.Context) error {
	req := PageRequest{
		Path:   c.p.path,
		Params: c.p.params,
		Page:   c.page,
		Size:   c.p.pageSize,
	}

	page, err := c.p.fetcher.FetchPage(ctx, req)
	if err != nil {
		return err
	}
	edcPagesFetched.Inc()

	c.buf = page.Items
	c.page++
	// Without pagination metadata the response is the only page.
	if page.Pagination == nil || c.page >= page.Pagination.TotalPages {
		c.done = true
	}

	c.p.logger.Debug().
		Str("path", req.Path).
		Int("page", req.Page).
		Int("items", len(page.Items)).
		Bool("last", c.done).
		Msg("Fetched page")

	return nil
}

// All returns the items as a range-over-func sequence. Iteration stops at
// the first error, which is yielded with a nil item.
func (p *Paginator) All(ctx context.Context) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		cur := p.Cursor()
		for {
			item, ok, err := cur.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(item, nil) {
				return
			}
		}
	}
}

// Item is one element delivered by Stream.
type Item struct {
	Raw json.RawMessage
	Err error
}

// Stream walks the listing on a producer goroutine. The channel is closed
// after the last item, after an Item carrying an error, or when ctx ends.
// At most one page is in flight at any time.
func (p *Paginator) Stream(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for raw, err := range p.All(ctx) {
			select {
			case out <- Item{Raw: raw, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Collect walks the whole listing and returns every item in order.
func (p *Paginator) Collect(ctx context.Context) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for raw, err := range p.All(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return items, nil
}
