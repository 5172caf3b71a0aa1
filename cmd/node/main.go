// Package main implements the compute node: it stores one chunk of every
// object it takes part in and runs in-storage functions over those chunks.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Node                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health       - Health check         │
//	│    /control      - Control messages     │
//	│    /objects/*    - Chunk upload/read    │
//	│    /isc/exec     - Run a function       │
//	│    /info         - Node information     │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    shard         - Stored chunks        │
//	│    funcs         - Function library     │
//	│    Registration  - Coordinator link     │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for coordinator (default: "http://127.0.0.1:8081")
//   - NODE_CATEGORY: Catalog category (default: "iscs")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//
// Example usage:
//
//	NODE_ID=node-1 \
//	NODE_LISTEN=:8081 \
//	NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	./node
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/shard"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = log.Fatalf

// registerPolicy spaces registration attempts while the coordinator starts.
var registerPolicy = retry.MaxTries(retry.Backoff(100*time.Millisecond, time.Second, 2), 11)

// Node is a compute service: the partition of object chunks it stores and
// the functions it runs over them.
type Node struct {
	// ID uniquely identifies this node in the catalog.
	ID string

	shard *shard.Shard
	funcs *isc.Registry
}

// NewNode creates a node with an empty partition and the demo library.
func NewNode(id string) *Node {
	return &Node{
		ID:    id,
		shard: shard.NewShard(id),
		funcs: isc.NewRegistry(id),
	}
}

func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/control", n.handleControl)
	mux.HandleFunc("/objects/", n.handleObject)
	mux.HandleFunc("/isc/exec", n.handleExec)
	mux.HandleFunc("/info", n.handleInfo)
	return mux
}

func main() {
	log.AddFlags()
	flag.Parse()

	nodeID := mustGetenv("NODE_ID")
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	category := getenv("NODE_CATEGORY", cluster.CategoryISC)
	coord := mustGetenv("COORDINATOR_ADDR")

	node := NewNode(nodeID)

	s := &http.Server{
		Addr:              listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("node[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	register(context.Background(), coord, cluster.NodeInfo{ID: nodeID, Addr: public, Category: category})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Error.Printf("server shutdown: %v", err)
	}
	log.Printf("node stopped")
}

// register announces the node to the coordinator, retrying while the
// coordinator is unreachable or refuses the request. A node that cannot
// register is never discovered, so persistent failure is fatal.
func register(ctx context.Context, coord string, info cluster.NodeInfo) {
	body := cluster.RegisterRequest{Node: info}
	for retries := 0; ; retries++ {
		err := cluster.PostJSON(ctx, strings.TrimRight(coord, "/")+"/register", body, nil)
		if err == nil {
			log.Printf("registered with coordinator @ %s as %s/%s", coord, info.Category, info.ID)
			return
		}
		if werr := retry.Wait(ctx, registerPolicy, retries); werr != nil {
			logFatal("failed to register with coordinator: %v", err)
			return
		}
		log.Printf("register retry %d: %v", retries+1, err)
	}
}

// controlMessage is the payload of POST /control.
type controlMessage struct {
	Op string `json:"op"`
}

// handleControl processes coordinator broadcasts. "drain" stops the node
// from accepting new chunks while computations over stored chunks go on;
// "activate" lifts it. Other operations are logged and acknowledged.
func (n *Node) handleControl(w http.ResponseWriter, r *http.Request) {
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(r.Body); err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	var msg controlMessage
	if err := json.Unmarshal(raw.Bytes(), &msg); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	switch msg.Op {
	case "drain":
		n.shard.SetState(shard.ShardStateDraining)
	case "activate":
		n.shard.SetState(shard.ShardStateActive)
	}
	log.Printf("node[%s] control payload: %s", n.ID, raw.Bytes())
	w.WriteHeader(http.StatusNoContent)
}

// handleObject stores, returns or removes the chunk of an object.
//
// Endpoint: /objects/{id}
//
// Response:
//   - 204 No Content: chunk stored or removed
//   - 200 OK: chunk bytes
//   - 404 Not Found: no chunk for the object
//   - 503 Service Unavailable: the node is draining
func (n *Node) handleObject(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/objects/")
	if id == "" {
		http.Error(w, "object id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		b, err := n.shard.Store.Get(id)
		if err != nil {
			httpError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := w.Write(b); err != nil {
			log.Error.Printf("write response: %v", err)
		}
	case http.MethodPut:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if err := n.shard.Put(id, buf.Bytes()); err != nil {
			httpError(w, err)
			return
		}
		log.Debug.Printf("node[%s] stored %d bytes of %s", n.ID, buf.Len(), id)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := n.shard.Delete(id); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExec runs an in-storage function over the node's partition.
//
// Endpoint: POST /isc/exec
//
// A function failure is not a transport failure: it is answered with 200
// and a non-zero status in the ExecResponse.
func (n *Node) handleExec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	n.shard.CountExec()
	var resp cluster.ExecResponse
	out, err := n.funcs.Exec(r.Context(), req.Component, n.shard, req.Input, req.ReplyCap)
	if err != nil {
		log.Error.Printf("node[%s] exec %v on %s: %v", n.ID, req.Component, req.Object, err)
		resp = cluster.ExecResponse{Status: 1, Error: err.Error()}
	} else {
		resp.Payload = out
	}
	writeJSON(w, resp)
}

// nodeInfo is the answer of GET /info.
type nodeInfo struct {
	NodeID string               `json:"node_id"`
	Shard  shard.ShardInfo      `json:"shard"`
	Ops    shard.OperationStats `json:"operations"`
}

func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, nodeInfo{
		NodeID: n.ID,
		Shard:  n.shard.Info(),
		Ops:    n.shard.GetStats().Ops,
	})
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
	case errors.Is(errors.NotExist, err):
		code = http.StatusNotFound
	case errors.Is(errors.Unavailable, err):
		code = http.StatusServiceUnavailable
	case errors.Is(errors.Invalid, err):
		code = http.StatusBadRequest
	}
	http.Error(w, err.Error(), code)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv returns a required environment variable or exits.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
