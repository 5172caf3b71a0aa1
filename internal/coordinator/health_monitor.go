package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/dreamware/isc/internal/cluster"
)

// HealthStatus is the health of a service as seen by the monitor.
type HealthStatus string

const (
	StatusUnknown   HealthStatus = "unknown"
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ServiceHealth is the health record of one service.
type ServiceHealth struct {
	LastCheck        time.Time    `json:"last_check"`
	LastHealthy      time.Time    `json:"last_healthy"`
	ServiceID        string       `json:"service_id"`
	Status           HealthStatus `json:"status"`
	ConsecutiveFails int          `json:"consecutive_fails"`
}

// HealthMonitor polls the /health endpoint of every registered service.
// A service is unhealthy after maxFailures consecutive failed checks and
// healthy again after one successful check.
type HealthMonitor struct {
	services    map[string]*ServiceHealth
	httpClient  *http.Client
	check       func(ctx context.Context, addr string) error
	onUnhealthy func(id string)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor returns a monitor that checks every interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	h := &HealthMonitor{
		services:    make(map[string]*ServiceHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		interval:    interval,
		maxFailures: 3,
		ctx:         ctx,
		cancel:      cancel,
	}
	h.check = h.httpCheck
	return h
}

// SetOnUnhealthy registers a callback run, on its own goroutine, when a
// service turns unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(fn func(id string)) {
	h.onUnhealthy = fn
}

// SetCheckFunction replaces the HTTP health check.
func (h *HealthMonitor) SetCheckFunction(fn func(ctx context.Context, addr string) error) {
	h.check = fn
}

// Start checks the services returned by services immediately and then every
// interval, until ctx is done or Stop is called. It blocks.
func (h *HealthMonitor) Start(ctx context.Context, services func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	log.Printf("health monitor started, interval %v", h.interval)
	h.checkAll(ctx, services())
	for {
		select {
		case <-ticker.C:
			h.checkAll(ctx, services())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop ends monitoring and waits for Start to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Debug.Printf("health monitor stopped")
}

func (h *HealthMonitor) checkAll(ctx context.Context, services []cluster.NodeInfo) {
	current := make(map[string]bool, len(services))
	for _, s := range services {
		current[s.ID] = true
		h.checkService(ctx, s)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.services {
		if !current[id] {
			delete(h.services, id)
			log.Debug.Printf("service %s no longer monitored", id)
		}
	}
}

func (h *HealthMonitor) checkService(ctx context.Context, s cluster.NodeInfo) {
	h.mu.Lock()
	health, ok := h.services[s.ID]
	if !ok {
		now := time.Now()
		health = &ServiceHealth{ServiceID: s.ID, Status: StatusUnknown, LastCheck: now, LastHealthy: now}
		h.services[s.ID] = health
	}
	h.mu.Unlock()

	err := h.check(ctx, s.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()
	health.LastCheck = time.Now()
	if err == nil {
		if health.Status == StatusUnhealthy {
			log.Printf("service %s recovered", s.ID)
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return
	}
	health.ConsecutiveFails++
	log.Printf("health check of %s failed (%d/%d): %v", s.ID, health.ConsecutiveFails, h.maxFailures, err)
	if health.ConsecutiveFails < h.maxFailures || health.Status == StatusUnhealthy {
		return
	}
	health.Status = StatusUnhealthy
	log.Error.Printf("service %s unhealthy after %d failed checks", s.ID, health.ConsecutiveFails)
	if h.onUnhealthy != nil {
		go h.onUnhealthy(s.ID)
	}
}

func (h *HealthMonitor) httpCheck(ctx context.Context, addr string) error {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.E(errors.Invalid, err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return errors.E(errors.Net, "health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.E(errors.Unavailable, fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}
	return nil
}

// Health returns a copy of the health record of service id, or nil.
func (h *HealthMonitor) Health(id string) *ServiceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.services[id]
	if !ok {
		return nil
	}
	cp := *health
	return &cp
}

// All returns copies of all health records by service id.
func (h *HealthMonitor) All() map[string]*ServiceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	all := make(map[string]*ServiceHealth, len(h.services))
	for id, health := range h.services {
		cp := *health
		all[id] = &cp
	}
	return all
}

// IsHealthy reports whether service id passed its last check.
func (h *HealthMonitor) IsHealthy(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.services[id]
	return ok && health.Status == StatusHealthy
}

// Usable reports whether service id may receive work: it is not known to
// be unhealthy. Services not checked yet are usable.
func (h *HealthMonitor) Usable(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.services[id]
	return !ok || health.Status != StatusUnhealthy
}
