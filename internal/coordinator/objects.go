package coordinator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/dreamware/isc/internal/layout"
)

// Objects holds the layouts of the objects stored on the services.
type Objects struct {
	mu      sync.RWMutex
	objects map[string]*layout.Object
}

// NewObjects returns an empty object registry.
func NewObjects() *Objects {
	return &Objects{objects: make(map[string]*layout.Object)}
}

// Put validates and stores obj, replacing any layout with the same id.
func (o *Objects) Put(obj *layout.Object) error {
	if err := obj.Validate(); err != nil {
		return err
	}
	cp := *obj
	cp.Placements = append([]layout.Placement(nil), obj.Placements...)
	o.mu.Lock()
	o.objects[obj.ID] = &cp
	o.mu.Unlock()
	log.Printf("object %v registered", &cp)
	return nil
}

// Get returns a copy of the layout of object id.
func (o *Objects) Get(id string) (*layout.Object, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[id]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("object %s", id))
	}
	cp := *obj
	cp.Placements = append([]layout.Placement(nil), obj.Placements...)
	return &cp, nil
}

// Delete forgets object id.
func (o *Objects) Delete(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, id)
}

// List returns the registered object ids in sorted order.
func (o *Objects) List() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.objects))
	for id := range o.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnService returns the sorted ids of objects with a placement on service.
func (o *Objects) OnService(service string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var ids []string
	for id, obj := range o.objects {
		for _, p := range obj.Placements {
			if p.Service == service {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}
