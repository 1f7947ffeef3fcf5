package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewBoundedPool returns a pool of at most maxGoroutines workers whose tasks do
// not fail. Go blocks while every worker is busy.
func NewBoundedPool(maxGoroutines int) *pool.Pool {
	if maxGoroutines < 1 {
		maxGoroutines = 1
	}
	return pool.New().WithMaxGoroutines(maxGoroutines)
}

// Collect runs fn for every input on p and delivers the outputs on the returned
// channel in completion order. Once ctx is done, the remaining inputs are not
// dispatched and skip supplies their output instead. The channel is buffered for
// every input and closed after the last output.
func Collect[In, Out any](ctx context.Context, p *pool.Pool, inputs []In, fn func(In) Out, skip func(In, error) Out) <-chan Out {
	out := make(chan Out, len(inputs))

	go func() {
		defer close(out)
		for _, in := range inputs {
			if err := ctx.Err(); err != nil {
				out <- skip(in, err)
				continue
			}
			p.Go(func() {
				out <- fn(in)
			})
		}
		p.Wait()
	}()

	return out
}
