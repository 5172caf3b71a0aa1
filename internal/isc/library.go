package isc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// ExtentReader gives a function access to the chunk its node stores.
type ExtentReader interface {
	// ReadExtents returns the concatenated bytes of exts within object.
	ReadExtents(object string, exts []Extent) ([]byte, error)
}

// Func is an in-storage function. It receives the raw request input and
// returns the raw reply.
type Func func(ctx context.Context, r ExtentReader, input []byte) ([]byte, error)

// Registry maps component identities to the functions a node can run.
type Registry struct {
	mu    sync.RWMutex
	funcs map[ComponentID]registered
}

type registered struct {
	name string
	fn   Func
}

// NewRegistry returns a registry holding the demo library. hello_world
// answers with the given service id.
func NewRegistry(serviceID string) *Registry {
	r := &Registry{funcs: make(map[ComponentID]registered)}
	r.Register(HelloWorld, func(_ context.Context, _ ExtentReader, input []byte) ([]byte, error) {
		log.Debug.Printf("%s: greeting %q", HelloWorld, input)
		return []byte(serviceID), nil
	})
	r.Register(ArrMin, minmax(Min))
	r.Register(ArrMax, minmax(Max))
	return r
}

// Register adds fn under name, replacing any function already registered
// with the same identity.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[NewComponentID(name)] = registered{name, fn}
}

// Exec runs the function identified by id. A reply longer than replyCap is
// refused so the caller never receives a truncated result.
func (r *Registry) Exec(ctx context.Context, id ComponentID, rd ExtentReader, input []byte, replyCap int) ([]byte, error) {
	r.mu.RLock()
	f, ok := r.funcs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("component %v", id))
	}
	out, err := f.fn(ctx, rd, input)
	if err != nil {
		return nil, errors.E(f.name, err)
	}
	if replyCap > 0 && len(out) > replyCap {
		return nil, errors.E(errors.Precondition,
			fmt.Sprintf("%s: reply of %d bytes exceeds capacity %d", f.name, len(out), replyCap))
	}
	return out, nil
}

func minmax(d Direction) Func {
	return func(ctx context.Context, rd ExtentReader, input []byte) ([]byte, error) {
		var args Targs
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, errors.E(errors.Invalid, "decode arguments", err)
		}
		if len(args.Extents) == 0 {
			return nil, errors.E(errors.Invalid, "at least 1 segment required")
		}
		text, err := rd.ReadExtents(args.Object, args.Extents)
		if err != nil {
			return nil, err
		}
		res := Scan(text, d)
		log.Debug.Printf("arr_%s: object %s: %d bytes, %d extents, found=%v val=%v idx=%d idx_max=%d",
			d, args.Object, len(text), len(args.Extents), res.Found, res.Value, res.Index, res.MaxIndex)
		return json.Marshal(res)
	}
}
