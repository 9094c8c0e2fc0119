package cache

import "time"

// Entry is the stored form of one cached listing.
type Entry[T any] struct {
	// Items is the full parsed listing in server order.
	Items []T `json:"items"`

	// CachedAt is when the listing was stored.
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the entry was stored.
func (e *Entry[T]) Age() time.Duration {
	return time.Since(e.CachedAt)
}
