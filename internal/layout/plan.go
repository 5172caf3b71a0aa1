package layout

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/dreamware/isc/internal/isc"
)

// StepKind distinguishes the steps a traversal plan yields.
type StepKind int

const (
	// StepRead carries a segment to act on.
	StepRead StepKind = iota
	// StepNotice follows the read of the same segment and only asks the
	// consumer to release it.
	StepNotice
	// StepDone ends the traversal.
	StepDone
)

func (k StepKind) String() string {
	switch k {
	case StepRead:
		return "read"
	case StepNotice:
		return "notice"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// Segment is the part of a traversal served by one service.
type Segment struct {
	// Seq is the issuance order of the segment within its plan.
	Seq     int
	Object  string
	Service string
	Addr    string
	// Offset and Length locate the segment in the object.
	Offset uint64
	Length uint64
	// Extents is the index vector local to the service's chunk, split at
	// unit boundaries.
	Extents []isc.Extent
}

func (s *Segment) String() string {
	return fmt.Sprintf("segment %d of %s [%d, %d) on %s", s.Seq, s.Object, s.Offset, s.Offset+s.Length, s.Service)
}

// Step is one unit of work yielded by a Plan.
type Step struct {
	Kind    StepKind
	Segment *Segment
}

type stepKey struct {
	seq  int
	kind StepKind
}

// Plan walks one range of an object segment by segment. It is used by a
// single goroutine. Every step handed out by Next stays held until it is
// passed to Release.
type Plan struct {
	steps []Step
	next  int
	held  map[stepKey]bool
}

// Build returns the traversal plan of [off, off+length) over obj. Each
// placement overlapping the range yields one read step followed by its
// notice step; the plan ends with a done step.
func Build(obj *Object, off, length uint64) (*Plan, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	end := off + length
	if end < off || end > obj.Size {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("range [%d, %d) outside object %s of %d bytes", off, end, obj.ID, obj.Size))
	}
	p := &Plan{held: make(map[stepKey]bool)}
	for _, pl := range obj.Placements {
		lo, hi := max(off, pl.Offset), min(end, pl.End())
		if lo >= hi {
			continue
		}
		seg := &Segment{
			Seq:     len(p.steps) / 2,
			Object:  obj.ID,
			Service: pl.Service,
			Addr:    pl.Addr,
			Offset:  lo,
			Length:  hi - lo,
		}
		for a := lo; a < hi; {
			b := min(hi, (a/obj.UnitSize+1)*obj.UnitSize)
			seg.Extents = append(seg.Extents, isc.Extent{Offset: a - pl.Offset, Length: b - a})
			a = b
		}
		p.steps = append(p.steps, Step{StepRead, seg}, Step{StepNotice, seg})
	}
	p.steps = append(p.steps, Step{Kind: StepDone})
	log.Debug.Printf("plan %s [%d, %d): %d segments", obj.ID, off, end, len(p.steps)/2)
	return p, nil
}

// Next returns the next step. Once the done step has been returned, Next
// keeps returning it.
func (p *Plan) Next(ctx context.Context) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	step := p.steps[p.next]
	if p.next < len(p.steps)-1 {
		p.next++
	}
	p.held[keyOf(step)] = true
	return step, nil
}

// Release returns a step to the plan. Releasing a step twice is a no-op.
func (p *Plan) Release(step Step) {
	delete(p.held, keyOf(step))
}

// Outstanding is the number of steps handed out and not yet released.
func (p *Plan) Outstanding() int {
	return len(p.held)
}

func keyOf(step Step) stepKey {
	if step.Segment == nil {
		return stepKey{seq: -1, kind: step.Kind}
	}
	return stepKey{seq: step.Segment.Seq, kind: step.Kind}
}
