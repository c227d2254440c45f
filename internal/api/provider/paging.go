package provider

import "context"

// PageFunc fetches page index (zero based) and reports whether the provider
// has more items after it. items may be empty on a page that was entirely
// filtered out while more is still true.
type PageFunc[T any] func(ctx context.Context, page int) (items []T, more bool, err error)

// Paginate fetches pages sequentially until the provider reports no further
// items or limit pages have been read. A limit of zero or less is unbounded.
// Items are returned in page order; the first error aborts the walk.
func Paginate[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for page := 0; limit <= 0 || page < limit; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, more, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if !more {
			break
		}
	}
	return all, nil
}
