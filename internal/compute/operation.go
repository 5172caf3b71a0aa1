package compute

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"

	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/layout"
)

// Operation binds a user-facing operation to its in-storage component, its
// request payload and its reply handling.
type Operation struct {
	Name      string
	Component isc.ComponentID
	// Input builds the request payload for a segment.
	Input func(seg *layout.Segment) ([]byte, error)
	// NewMerger returns the reply handling for one invocation.
	NewMerger func(out io.Writer) Merger
}

var operations = map[string]*Operation{
	"ping": {
		Name:      "ping",
		Component: isc.NewComponentID(isc.HelloWorld),
		Input:     func(*layout.Segment) ([]byte, error) { return []byte("Hello"), nil },
		NewMerger: func(out io.Writer) Merger { return &PingMerger{out: out} },
	},
	"min": reduction(isc.Min),
	"max": reduction(isc.Max),
}

func reduction(dir isc.Direction) *Operation {
	return &Operation{
		Name:      dir.String(),
		Component: dir.Component(),
		Input:     reductionInput,
		NewMerger: func(out io.Writer) Merger { return NewResultMerger(dir, out) },
	}
}

func reductionInput(seg *layout.Segment) ([]byte, error) {
	if len(seg.Extents) == 0 {
		return nil, errors.E(errors.Invalid, "at least 1 segment required")
	}
	return json.Marshal(isc.Targs{Object: seg.Object, Extents: seg.Extents})
}

// Lookup returns the operation with the given name.
func Lookup(name string) (*Operation, error) {
	op, ok := operations[name]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown operation %q", name))
	}
	return op, nil
}

// Names returns the operation names in sorted order.
func Names() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
