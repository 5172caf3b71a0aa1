package compute

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/dreamware/isc/internal/isc"
)

// Merger interprets replies for one operation invocation.
type Merger interface {
	// Merge folds the successful reply of req. Replies are merged in
	// issuance order.
	Merge(req *Request)
	// Skip records that req failed and contributes nothing.
	Skip(req *Request)
	// Finish reports the result after the last segment of the object.
	Finish() error
}

// PingMerger prints each service's greeting. Nothing is accumulated.
type PingMerger struct {
	out     io.Writer
	replies int
}

func (m *PingMerger) Merge(req *Request) {
	m.replies++
	fmt.Fprintf(m.out, "Hello-%s @%s\n", req.Reply.Payload, req.Addr)
}

func (m *PingMerger) Skip(req *Request) {
	log.Printf("%v: no greeting: %s", req, req.Reply.Err)
}

func (m *PingMerger) Finish() error {
	if m.replies == 0 {
		return errors.E(errors.Unavailable, "no service answered")
	}
	return nil
}

// PartialResult is the running reduction over the segments merged so far.
// Indices are absolute element positions in the object.
type PartialResult struct {
	Value float64
	Index uint64
	Found bool
	// MaxIndex is the position of the element Right belongs to.
	MaxIndex uint64
	// Right is the text of the element still open at the end of the last
	// merged segment. Its digits may continue in the next segment.
	Right string
}

// Result is a finished reduction.
type Result struct {
	Value float64
	Index uint64
	Found bool
	// Partial is set when failed segments were skipped. Indices after the
	// first skipped segment are then approximate.
	Partial bool
	Skipped int
}

// ResultMerger folds min/max replies into a PartialResult. Elements that
// straddle segment boundaries are reassembled from the right fragment of
// one segment and the left fragment of the next; the first element of the
// object and the last are resolved from the outer fragments.
type ResultMerger struct {
	dir     isc.Direction
	out     io.Writer
	acc     *PartialResult
	gap     bool
	skipped int
	trace   bool
}

// NewResultMerger returns a merger reducing in direction dir that reports
// to out.
func NewResultMerger(dir isc.Direction, out io.Writer) *ResultMerger {
	return &ResultMerger{dir: dir, out: out}
}

// SetTrace turns logging of every merge step on or off.
func (m *ResultMerger) SetTrace(on bool) { m.trace = on }

func (m *ResultMerger) Merge(req *Request) {
	var y isc.MinMaxResult
	if err := json.Unmarshal(req.Reply.Payload, &y); err != nil {
		log.Error.Printf("%v: unreadable result: %v", req, err)
		m.Skip(req)
		return
	}
	m.Fold(y)
}

func (m *ResultMerger) Skip(req *Request) {
	m.skipped++
	m.gap = true
	if m.acc != nil {
		m.acc.Right = ""
	}
	log.Debug.Printf("%v skipped; boundary element lost", req)
}

// Fold merges one segment's result. Segments must be folded in order.
func (m *ResultMerger) Fold(y isc.MinMaxResult) {
	first := m.acc == nil
	if first {
		m.acc = &PartialResult{}
	}
	acc := m.acc
	if m.trace {
		log.Debug.Printf("%s fold: lbuf=%q rbuf=%q found=%v val=%g idx=%d idx_max=%d; open %q at %d",
			m.dir, y.Left, y.Right, y.Found, y.Value, y.Index, y.MaxIndex, acc.Right, acc.MaxIndex)
	}
	if !y.Split {
		// The whole segment is inside one element.
		if m.gap {
			acc.Right = ""
		} else {
			acc.Right += y.Left
		}
		return
	}
	var n uint64
	switch {
	case m.gap:
		// The element before the first separator began in a lost segment.
		n = 1
		m.gap = false
	case first:
		n = m.resolve(y.Left, 0, "left edge")
	default:
		n = m.resolve(acc.Right+y.Left, acc.MaxIndex, "boundary")
	}
	if y.Found {
		m.offer(y.Value, acc.MaxIndex+n+y.Index-1, "segment")
	}
	acc.MaxIndex += n + y.MaxIndex - 1
	acc.Right = y.Right
}

// resolve parses the elements in text, the first of which sits at index
// at, and offers each. It returns the number of element positions text
// occupies; unparsable elements keep their position.
func (m *ResultMerger) resolve(text string, at uint64, what string) uint64 {
	fields := strings.Fields(text)
	for i, f := range fields {
		v, err := isc.ParseValue(f)
		if err != nil {
			log.Error.Printf("%s element %d: %v", what, at+uint64(i), err)
			continue
		}
		m.offer(v, at+uint64(i), what)
	}
	return uint64(len(fields))
}

func (m *ResultMerger) offer(v float64, idx uint64, what string) {
	acc := m.acc
	if acc.Found && !m.dir.Better(v, acc.Value) {
		return
	}
	if m.trace {
		log.Debug.Printf("%s %s: idx=%d val=%g", m.dir, what, idx, v)
	}
	acc.Value, acc.Index, acc.Found = v, idx, true
}

// Result resolves the open right edge and returns the reduction. It is
// called after the last segment has been merged or skipped; calling it
// again returns the same result.
func (m *ResultMerger) Result() Result {
	if m.acc == nil {
		return Result{Partial: m.skipped > 0, Skipped: m.skipped}
	}
	if !m.gap && m.acc.Right != "" {
		m.resolve(m.acc.Right, m.acc.MaxIndex, "right edge")
		m.acc.Right = ""
	}
	return Result{
		Value:   m.acc.Value,
		Index:   m.acc.Index,
		Found:   m.acc.Found,
		Partial: m.skipped > 0,
		Skipped: m.skipped,
	}
}

func (m *ResultMerger) Finish() error {
	r := m.Result()
	if !r.Found {
		return errors.E(errors.NotExist, fmt.Sprintf("%s: no element could be reduced", m.dir))
	}
	fmt.Fprintf(m.out, "idx=%d val=%f\n", r.Index, r.Value)
	if r.Partial {
		fmt.Fprintf(m.out, "partial: %d segment(s) skipped\n", r.Skipped)
	}
	return nil
}
