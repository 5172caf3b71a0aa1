package compute

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/dreamware/isc/internal/layout"
)

// Session is one invocation of an operation over an object. It may run
// several traversal passes; the merger's state carries across them. A
// Session is used by a single goroutine.
type Session struct {
	op        *Operation
	transport Transport
	merger    Merger
	replyCap  int

	gate     *Gate
	inflight []*Request
	issued   int
}

// NewSession returns a session running op over transport and reporting to
// out. Replies larger than replyCap are refused by the services.
func NewSession(op *Operation, transport Transport, out io.Writer, replyCap int) *Session {
	return &Session{
		op:        op,
		transport: transport,
		merger:    op.NewMerger(out),
		replyCap:  replyCap,
		gate:      new(Gate),
	}
}

// TraceMerges makes the merger log every merge step, if it supports it.
func (s *Session) TraceMerges() {
	if t, ok := s.merger.(interface{ SetTrace(bool) }); ok {
		t.SetTrace(true)
	}
}

// Merger returns the session's reply handling.
func (s *Session) Merger() Merger { return s.merger }

// Launch runs one traversal pass: it sends a request for every read step
// of plan, waits for all of them to complete, and merges the replies in
// issuance order. If last is set the result is reported after the merge.
//
// A request that cannot be sent stops the traversal. Requests already in
// flight are still waited for and released, but nothing is merged and the
// error is returned. A request that completes with an error is logged and
// skipped.
func (s *Session) Launch(ctx context.Context, plan Plan, last bool) error {
	sendErr := s.dispatch(ctx, plan)
	for range s.inflight {
		if err := s.gate.Wait(ctx); err != nil {
			n := len(s.inflight)
			s.abandon(plan)
			return errors.E(errors.Fatal, fmt.Sprintf("waiting for %d requests", n), err)
		}
	}
	s.drain(plan, sendErr == nil)
	if sendErr != nil {
		return sendErr
	}
	if last {
		return s.merger.Finish()
	}
	return nil
}

func (s *Session) dispatch(ctx context.Context, plan Plan) error {
	var prev layout.Step
	for {
		step, err := plan.Next(ctx)
		if err != nil {
			return errors.E(errors.Fatal, "traversal", err)
		}
		switch step.Kind {
		case layout.StepDone:
			plan.Release(step)
			return nil
		case layout.StepNotice:
			plan.Release(step)
			if prev.Kind != layout.StepRead || prev.Segment != step.Segment {
				return errors.E(errors.Integrity, errors.Fatal, fmt.Sprintf("notice for %v without its read", step.Segment))
			}
			prev = step
			continue
		}
		prev = step
		req, err := s.prepare(step)
		if err != nil {
			plan.Release(step)
			return err
		}
		if err := s.transport.Send(ctx, req, s.gate); err != nil {
			plan.Release(step)
			return errors.E(errors.Net, errors.Fatal, fmt.Sprintf("error from %s received", req.Addr), err)
		}
		log.Debug.Printf("sent %v", req)
		s.inflight = append(s.inflight, req)
	}
}

func (s *Session) prepare(step layout.Step) (*Request, error) {
	input, err := s.op.Input(step.Segment)
	if err != nil {
		return nil, errors.E(errors.Fatal, fmt.Sprintf("%s input for %v", s.op.Name, step.Segment), err)
	}
	req := &Request{
		Seq:       s.issued,
		Target:    step.Segment.Service,
		Addr:      s.transport.EndpointAddress(step.Segment),
		Op:        s.op.Name,
		Component: s.op.Component,
		Input:     input,
		ReplyCap:  s.replyCap,
		Segment:   step.Segment,
		step:      step,
	}
	s.issued++
	return req, nil
}

// drain hands the completed requests to the merger in issuance order and
// releases their steps.
func (s *Session) drain(plan Plan, merge bool) {
	for i, req := range s.inflight {
		switch {
		case !merge:
		case req.Reply.OK():
			s.merger.Merge(req)
		default:
			log.Error.Printf("%v failed with status %d: %s", req, req.Reply.Status, req.Reply.Err)
			s.merger.Skip(req)
		}
		plan.Release(req.step)
		req.Input, req.Reply.Payload = nil, nil
		s.inflight[i] = nil
	}
	s.inflight = s.inflight[:0]
}

// abandon gives up on the requests in flight without merging them. Their
// steps are released and the gate is replaced, so completions that arrive
// later cannot satisfy the waits of a following pass.
func (s *Session) abandon(plan Plan) {
	for i, req := range s.inflight {
		plan.Release(req.step)
		s.inflight[i] = nil
	}
	s.inflight = s.inflight[:0]
	s.gate = new(Gate)
}
