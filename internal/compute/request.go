package compute

import (
	"context"
	"fmt"

	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/layout"
)

// Request is one compute request, built per read step. The dispatcher owns
// it until it is sent, the transport until it signals completion, and the
// merger afterwards.
type Request struct {
	// Seq is the issuance order within the session.
	Seq       int
	Target    string
	Addr      string
	Op        string
	Component isc.ComponentID
	Input     []byte
	ReplyCap  int
	Segment   *layout.Segment

	// Reply is filled in by the transport before it signals completion.
	Reply Reply

	step layout.Step
}

func (r *Request) String() string {
	return fmt.Sprintf("request %d (%s) to %s for %v", r.Seq, r.Op, r.Target, r.Segment)
}

// Reply is the outcome of a request. Status 0 means success.
type Reply struct {
	Status  int
	Payload []byte
	Err     string
}

// OK tells whether the reply can be merged.
func (r Reply) OK() bool { return r.Status == 0 }

// Signaler is notified once per completed request.
type Signaler interface {
	Signal()
}

// Transport carries requests to compute services.
type Transport interface {
	// Send starts req without waiting for its reply. When the request
	// completes, successfully or not, the transport fills req.Reply and
	// calls done.Signal exactly once. An error means req was not sent and
	// done will not be signaled.
	Send(ctx context.Context, req *Request, done Signaler) error

	// EndpointAddress names the remote endpoint serving seg, for
	// diagnostics.
	EndpointAddress(seg *layout.Segment) string
}

// Plan is a layout traversal plan.
type Plan interface {
	Next(ctx context.Context) (layout.Step, error)
	Release(step layout.Step)
}
