// Package pagination walks page-based EDC listing endpoints lazily.
//
// The service addresses pages by a zero-based `page` index and a `size`
// query parameter and reports `totalPages` in the response's pagination
// block. A Paginator fetches page 0, hands out its items one at a time, then
// fetches page 1, and so on until the reported page count is reached. When a
// response carries no pagination block it is treated as the only page.
//
// Pages are always requested one at a time in increasing order and items
// keep the order the server returned them in. Nothing is prefetched.
//
// Example usage:
//
//	p := pagination.New(pagination.NewClientFetcher(edcClient), "/api/v1/edc/studies", nil, 100)
//	for raw, err := range p.All(ctx) {
//		if err != nil {
//			return err
//		}
//		// decode raw
//	}
//
// The same walk is available as a pull cursor (Cursor.Next), as a channel
// fed by a producer goroutine (Stream), and fully materialized (Collect).
package pagination
