package coordinator

import (
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/exp/slices"

	"github.com/dreamware/isc/internal/cluster"
)

// Catalog is the ordered list of registered services. Services keep the
// position of their first registration; re-registering a service updates
// its address and category in place.
type Catalog struct {
	mu       sync.RWMutex
	services []cluster.NodeInfo
	// healthy, if set, hides services it rejects from Next.
	healthy func(id string) bool
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// SetHealthFilter makes Next skip services for which healthy returns false.
func (c *Catalog) SetHealthFilter(healthy func(id string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = healthy
}

// Register adds or updates a service. Services without a category are
// compute services.
func (c *Catalog) Register(node cluster.NodeInfo) error {
	if node.ID == "" || node.Addr == "" {
		return errors.E(errors.Invalid, "missing id/addr")
	}
	if node.Category == "" {
		node.Category = cluster.CategoryISC
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.IndexFunc(c.services, func(n cluster.NodeInfo) bool { return n.ID == node.ID }); i >= 0 {
		c.services[i] = node
		log.Printf("service %s re-registered at %s", node.ID, node.Addr)
		return nil
	}
	c.services = append(c.services, node)
	log.Printf("service %s (%s) registered at %s", node.ID, node.Category, node.Addr)
	return nil
}

// Remove drops a service from the catalog. It reports whether the service
// was registered.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.services)
	c.services = slices.DeleteFunc(c.services, func(s cluster.NodeInfo) bool { return s.ID == id })
	return len(c.services) < n
}

// Services returns a copy of all registered services in catalog order.
func (c *Catalog) Services() []cluster.NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.services)
}

// Lookup returns the service with the given id.
func (c *Catalog) Lookup(id string) (cluster.NodeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := slices.IndexFunc(c.services, func(n cluster.NodeInfo) bool { return n.ID == id })
	if i < 0 {
		return cluster.NodeInfo{}, false
	}
	return c.services[i], true
}

// Next returns the first healthy service of category registered after the
// service with id after. The empty id starts at the beginning and the empty
// category matches every service. ok is false when the walk is over. A
// cursor naming an unknown service is an error, since the walk could
// otherwise end early without notice.
func (c *Catalog) Next(after, category string) (node cluster.NodeInfo, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := 0
	if after != "" {
		i := slices.IndexFunc(c.services, func(n cluster.NodeInfo) bool { return n.ID == after })
		if i < 0 {
			return cluster.NodeInfo{}, false, errors.E(errors.NotExist, fmt.Sprintf("service %s", after))
		}
		start = i + 1
	}
	for _, n := range c.services[start:] {
		if category != "" && n.Category != category {
			continue
		}
		if c.healthy != nil && !c.healthy(n.ID) {
			log.Debug.Printf("catalog walk skips unhealthy service %s", n.ID)
			continue
		}
		return n, true, nil
	}
	return cluster.NodeInfo{}, false, nil
}
