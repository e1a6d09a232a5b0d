package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Chunk splits s into consecutive slices of at most size elements.
// An empty s yields no chunks.
func Chunk[T any](s []T, size int) [][]T {
	if len(s) == 0 {
		return nil
	}
	if size < 1 {
		size = len(s)
	}
	chunks := make([][]T, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		chunks = append(chunks, s[start:end])
	}
	return chunks
}

// RunBatches calls fn for every element, running batches of maxParallel
// elements concurrently. A batch starts only after the previous one has fully
// resolved. maxParallel 0 runs everything as one batch. The first error stops
// further batches and is returned once its batch has resolved.
func RunBatches[T any](ctx context.Context, elems []T, maxParallel int, fn func(context.Context, T) error) error {
	for _, batch := range Chunk(elems, maxParallel) {
		g, gctx := errgroup.WithContext(ctx)
		for _, e := range batch {
			g.Go(func() error { return fn(gctx, e) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
