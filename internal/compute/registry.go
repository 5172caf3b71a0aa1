package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"golang.org/x/exp/slices"

	"github.com/dreamware/isc/internal/cluster"
)

// Catalog is the service catalog discovery walks.
type Catalog interface {
	// NextService returns the first service of category after the one
	// with id after. The empty id starts the walk; ok is false at the end.
	NextService(ctx context.Context, after, category string) (node cluster.NodeInfo, ok bool, err error)
}

var catalogRetryPolicy = retry.MaxTries(retry.Backoff(100*time.Millisecond, time.Second, 2), 4)

// Discover walks the catalog from its start marker and returns the
// compute services in catalog order. Every call walks the catalog again.
// Finding no service is a configuration error.
func Discover(ctx context.Context, c Catalog) ([]cluster.NodeInfo, error) {
	var (
		services []cluster.NodeInfo
		after    string
	)
	for retries := 0; ; {
		node, ok, err := c.NextService(ctx, after, cluster.CategoryISC)
		if err != nil {
			if !errors.Is(errors.Net, err) {
				return nil, err
			}
			if werr := retry.Wait(ctx, catalogRetryPolicy, retries); werr != nil {
				return nil, errors.E("service discovery", err)
			}
			retries++
			log.Printf("service discovery: retrying after %v", err)
			continue
		}
		if !ok {
			break
		}
		if slices.ContainsFunc(services, func(s cluster.NodeInfo) bool { return s.ID == node.ID }) {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("service catalog cycles at %s", node.ID))
		}
		services = append(services, node)
		after = node.ID
		retries = 0
	}
	if len(services) == 0 {
		return nil, errors.E(errors.Invalid, "ISC services are not started")
	}
	log.Debug.Printf("discovered %d compute services", len(services))
	return services, nil
}
