package core

import (
	"context"
	"sync"
)

// merge fans the values of all channels into one, closed once every input
// is drained or ctx is done.
func merge[T any](ctx context.Context, channels ...<-chan T) <-chan T {
	var wg sync.WaitGroup

	wg.Add(len(channels))
	out := make(chan T)
	multiplex := func(c <-chan T) {
		defer wg.Done()
		for v := range c {
			select {
			case <-ctx.Done():
				return
			case out <- v:
			}
		}
	}

	for _, c := range channels {
		go multiplex(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
