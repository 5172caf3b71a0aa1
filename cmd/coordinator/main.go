// Command coordinator runs the service catalog of an in-storage compute
// cluster.
//
// Compute nodes register with it; clients walk the catalog to discover the
// nodes, and fetch the layout of the objects they compute over. A health
// monitor polls every registered node and hides unhealthy ones from the
// catalog walk.
//
// Endpoints:
//
//	POST   /register                    register or update a service
//	GET    /services                    list services with their health
//	GET    /services/next?after=&category=
//	                                    next service in catalog order (404 at the end)
//	GET    /objects                     list object ids
//	GET    /objects/{id}                object layout
//	PUT    /objects/{id}                register an object layout
//	DELETE /objects/{id}                forget an object
//	POST   /broadcast                   post a payload to every service
//	GET    /health                      liveness
//
// Configuration:
//   - COORDINATOR_ADDR: listen address (default ":8080")
//   - HEALTH_INTERVAL: health check period (default "5s")
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/coordinator"
	"github.com/dreamware/isc/internal/layout"
)

func main() {
	log.AddFlags()
	flag.Parse()

	addr := getenv("COORDINATOR_ADDR", ":8080")
	interval, err := time.ParseDuration(getenv("HEALTH_INTERVAL", "5s"))
	if err != nil || interval <= 0 {
		log.Fatalf("bad HEALTH_INTERVAL: %v", err)
	}

	srv := newServer()
	srv.monitor = coordinator.NewHealthMonitor(interval)
	srv.catalog.SetHealthFilter(srv.monitor.Usable)
	srv.monitor.SetOnUnhealthy(srv.serviceUnhealthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.monitor.Start(ctx, srv.catalog.Services)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("coordinator listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	srv.monitor.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Printf("coordinator stopped")
}

type server struct {
	catalog *coordinator.Catalog
	objects *coordinator.Objects
	monitor *coordinator.HealthMonitor
}

func newServer() *server {
	return &server{
		catalog: coordinator.NewCatalog(),
		objects: coordinator.NewObjects(),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/services", s.handleServices)
	mux.HandleFunc("/services/next", s.handleNextService)
	mux.HandleFunc("/objects", s.handleListObjects)
	mux.HandleFunc("/objects/", s.handleObject)
	mux.HandleFunc("/broadcast", s.handleBroadcast)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// serviceUnhealthy reports the objects that cannot be computed over while
// service id is down.
func (s *server) serviceUnhealthy(id string) {
	if ids := s.objects.OnService(id); len(ids) > 0 {
		log.Error.Printf("service %s is unhealthy; objects %s are unavailable", id, strings.Join(ids, ", "))
	}
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.catalog.Register(req.Node); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type serviceStatus struct {
	cluster.NodeInfo
	Health coordinator.HealthStatus `json:"health"`
}

func (s *server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := s.catalog.Services()
	out := make([]serviceStatus, len(services))
	for i, n := range services {
		out[i] = serviceStatus{NodeInfo: n, Health: coordinator.StatusUnknown}
		if s.monitor == nil {
			continue
		}
		if h := s.monitor.Health(n.ID); h != nil {
			out[i].Health = h.Status
		}
	}
	writeJSON(w, struct {
		Services []serviceStatus `json:"services"`
	}{out})
}

func (s *server) handleNextService(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	node, ok, err := s.catalog.Next(q.Get("after"), q.Get("category"))
	switch {
	case err != nil && errors.Is(errors.NotExist, err):
		// The cursor itself is gone; 404 would read as the end of the walk.
		http.Error(w, err.Error(), http.StatusGone)
	case err != nil:
		httpError(w, err)
	case !ok:
		http.Error(w, "no more services", http.StatusNotFound)
	default:
		writeJSON(w, cluster.NextServiceResponse{Service: node})
	}
}

func (s *server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Objects []string `json:"objects"`
	}{s.objects.List()})
}

func (s *server) handleObject(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/objects/")
	if id == "" {
		http.Error(w, "object id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		obj, err := s.objects.Get(id)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, obj)
	case http.MethodPut:
		var obj layout.Object
		if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if obj.ID != id {
			http.Error(w, "object id does not match path", http.StatusBadRequest)
			return
		}
		for _, p := range obj.Placements {
			if _, ok := s.catalog.Lookup(p.Service); !ok {
				http.Error(w, "unknown service "+p.Service, http.StatusBadRequest)
				return
			}
		}
		if err := s.objects.Put(&obj); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		s.objects.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req cluster.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.Path[0] != '/' {
		http.Error(w, "path must start with '/'", http.StatusBadRequest)
		return
	}
	targets := s.catalog.Services()

	type result struct {
		ServiceID string `json:"service_id"`
		Err       string `json:"err,omitempty"`
	}
	out := make([]result, len(targets))
	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()
	var g errgroup.Group
	for i, n := range targets {
		i, n := i, n
		g.Go(func() error {
			out[i].ServiceID = n.ID
			if err := cluster.PostJSON(ctx, n.Addr+req.Path, req.Payload, nil); err != nil {
				out[i].Err = err.Error()
				return errors.E(fmt.Sprintf("broadcast %s to %s", req.Path, n.ID), err)
			}
			return nil
		})
	}
	// Failures are reported per service; the first one is logged.
	if err := g.Wait(); err != nil {
		log.Error.Printf("%v", err)
	}
	writeJSON(w, struct {
		SentTo  int      `json:"sent_to"`
		Results []result `json:"results"`
	}{SentTo: len(targets), Results: out})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error.Printf("write response: %v", err)
	}
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(errors.Invalid, err):
		code = http.StatusBadRequest
	case errors.Is(errors.NotExist, err):
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
