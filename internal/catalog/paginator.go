package catalog

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"
)

// ErrPageLimit is yielded when a source keeps returning full pages past the
// paginator's page cap.
var ErrPageLimit = eris.New("catalog: page limit exceeded")

// DefaultMaxPages caps a single pagination run.
const DefaultMaxPages = 1000

// PageFunc fetches up to limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Paginator walks an offset/limit source one page at a time.
type Paginator[T any] struct {
	fetch    PageFunc[T]
	size     int
	maxPages int
}

// NewPaginator returns a paginator requesting size items per page.
func NewPaginator[T any](size int, fetch PageFunc[T]) *Paginator[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Paginator[T]{fetch: fetch, size: size, maxPages: DefaultMaxPages}
}

// Pages returns a lazy sequence of pages. Every call starts again at offset
// 0. The sequence ends after an empty page (which is not yielded) or a page
// shorter than the page size. A fetch error is yielded once and ends the
// sequence.
func (p *Paginator[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		offset := 0
		for range p.maxPages {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := p.fetch(ctx, offset, p.size)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) || len(page) < p.size {
				return
			}
			offset += p.size
		}
		yield(nil, eris.Wrapf(ErrPageLimit, "stopped after %d pages of %d", p.maxPages, p.size))
	}
}

// All drains Pages into a single slice.
func (p *Paginator[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for page, err := range p.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}
