// Package coordinator holds the state of the coordinator service: the
// service catalog, the object layouts and the service health monitor.
//
// # Catalog
//
// Services register with an id, a base address and a category. The
// Catalog keeps them in registration order and serves the cursor walk the
// clients use for discovery:
//
//	after=""  → a
//	after="a" → c      (b has another category)
//	after="c" → d
//	after="d" → end
//
// With a health filter installed, services the HealthMonitor has marked
// unhealthy are skipped by the walk but stay registered, so they reappear
// once a check succeeds again.
//
// # Objects
//
// Objects maps object ids to their layouts: the service holding each
// contiguous byte range and the stripe unit used to cut traversal
// segments. Layouts are validated on registration and handed out as
// copies.
//
// # Health
//
// The HealthMonitor polls GET /health on every registered service. Three
// consecutive failures mark a service unhealthy and run the OnUnhealthy
// callback once; one success restores it.
package coordinator
