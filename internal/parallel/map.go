package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a parallel mapping function, which runs mapFunc over the input with
// at most limit calls in flight and yields results in completion order.
// Map is context aware: a canceled context or a consumer leaving the loop
// cancels pending calls, and Iter returns only after all of them finished.
//
//	for result, err := range parallel.NewMap(ctx, 4, mapFunc).Iter(input) {}
type Map[E, D any] struct {
	parentCtx context.Context
	limit     int
	mapFunc   func(context.Context, E) (D, error)
}

func NewMap[E, D any](parentCtx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	return &Map[E, D]{
		parentCtx: parentCtx,
		limit:     limit,
		mapFunc:   mapFunc,
	}
}

func (m *Map[E, D]) Iter(seq iter.Seq[E]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		ctx, cancel := context.WithCancel(m.parentCtx)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.limit)
		mapped := make(chan result[D])

		go func() {
			for entry := range seq {
				if gctx.Err() != nil {
					break
				}
				g.Go(func() error {
					d, err := m.mapFunc(gctx, entry)
					select {
					case mapped <- result[D]{d: d, e: err}:
					case <-gctx.Done():
					}
					return nil
				})
			}
			_ = g.Wait()
			close(mapped)
		}()

		defer func() {
			cancel()
			for range mapped { // drain until every worker returned
			}
		}()

		for r := range mapped {
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}

// First returns the first successful result of the parallel map, or the
// last error seen when every call failed. ok is false for an empty input.
func First[E, D any](ctx context.Context, limit int, seq iter.Seq[E], mapFunc func(context.Context, E) (D, error)) (d D, ok bool, err error) {
	for res, rerr := range NewMap(ctx, limit, mapFunc).Iter(seq) {
		ok = true
		if rerr != nil {
			err = rerr
			continue
		}
		return res, true, nil
	}
	var zero D
	return zero, ok, err
}
