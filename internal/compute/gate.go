package compute

import (
	"context"
	"sync"
)

// Gate counts request completions. Transports call Signal once per
// completed request, whatever its outcome; the dispatcher calls Wait once
// per request it sent. Signals may arrive before the matching Wait.
type Gate struct {
	mu    sync.Mutex
	done  int
	waitc chan struct{}
}

// Signal records one completion and wakes waiters.
func (g *Gate) Signal() {
	g.mu.Lock()
	g.done++
	if g.waitc != nil {
		close(g.waitc)
		g.waitc = nil
	}
	g.mu.Unlock()
}

// Wait blocks until a completion is available and consumes it. It returns
// the context's error if the context completes first; no completion is
// consumed in that case.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	for g.done == 0 {
		if g.waitc == nil {
			g.waitc = make(chan struct{})
		}
		waitc := g.waitc
		g.mu.Unlock()
		select {
		case <-waitc:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
	}
	g.done--
	g.mu.Unlock()
	return nil
}

// Available returns the number of completions not yet consumed.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
