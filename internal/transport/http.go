// Package transport carries compute requests to nodes over HTTP.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/compute"
	"github.com/dreamware/isc/internal/layout"
)

// DefaultInflight is the default bound on requests on the wire at once.
const DefaultInflight = 64

// HTTP posts each request to its node's /isc/exec endpoint on a goroutine
// of its own. Requests beyond the in-flight bound queue inside the
// transport; Send never blocks on them.
type HTTP struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a transport with at most inflight requests on the wire. A
// non-positive inflight selects DefaultInflight.
func New(inflight int) *HTTP {
	if inflight <= 0 {
		inflight = DefaultInflight
	}
	return &HTTP{sem: semaphore.NewWeighted(int64(inflight))}
}

// EndpointAddress returns the base URL of the node serving seg.
func (t *HTTP) EndpointAddress(seg *layout.Segment) string {
	return strings.TrimRight(seg.Addr, "/")
}

// Send implements compute.Transport.
func (t *HTTP) Send(ctx context.Context, req *compute.Request, done compute.Signaler) error {
	if req.Segment == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("%v: no segment", req))
	}
	u, err := url.Parse(req.Addr)
	if err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("bad endpoint address %q", req.Addr), err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("bad endpoint address %q", req.Addr))
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.E(errors.Unavailable, "transport closed")
	}
	t.wg.Add(1)
	t.mu.Unlock()

	body := cluster.ExecRequest{
		Component: req.Component,
		Object:    req.Segment.Object,
		Input:     req.Input,
		ReplyCap:  req.ReplyCap,
	}
	target := strings.TrimRight(req.Addr, "/") + "/isc/exec"
	go func() {
		defer t.wg.Done()
		defer done.Signal()
		if err := t.sem.Acquire(ctx, 1); err != nil {
			req.Reply = compute.Reply{Status: -1, Err: err.Error()}
			return
		}
		defer t.sem.Release(1)
		var resp cluster.ExecResponse
		if err := cluster.PostJSON(ctx, target, body, &resp); err != nil {
			log.Debug.Printf("%v: %v", req, err)
			req.Reply = compute.Reply{Status: -1, Err: err.Error()}
			return
		}
		req.Reply = compute.Reply{Status: resp.Status, Payload: resp.Payload, Err: resp.Error}
	}()
	return nil
}

// Close refuses further requests and waits for those in flight to
// complete.
func (t *HTTP) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
