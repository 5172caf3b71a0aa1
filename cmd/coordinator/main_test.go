package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/coordinator"
	"github.com/dreamware/isc/internal/layout"
)

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case nil:
	case string:
		b = []byte(v)
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, nodes ...cluster.NodeInfo) {
	t.Helper()
	for _, n := range nodes {
		if rec := do(t, h, http.MethodPost, "/register", cluster.RegisterRequest{Node: n}); rec.Code != http.StatusNoContent {
			t.Fatalf("register %s: status %d: %s", n.ID, rec.Code, rec.Body)
		}
	}
}

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{"set", "ISC_TEST_ENV_VAR", "value", "default", "value"},
		{"unset", "ISC_UNSET_ENV_VAR", "", "default", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
				defer os.Unsetenv(tt.key)
			}
			if got := getenv(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenv(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           interface{}
		expectedStatus int
		expectServices int
	}{
		{
			name:           "successful registration",
			method:         http.MethodPost,
			body:           cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "node1", Addr: "http://localhost:8081"}},
			expectedStatus: http.StatusNoContent,
			expectServices: 1,
		},
		{
			name:           "missing id",
			method:         http.MethodPost,
			body:           cluster.RegisterRequest{Node: cluster.NodeInfo{Addr: "http://localhost:8081"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing address",
			method:         http.MethodPost,
			body:           cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "node2"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid json",
			method:         http.MethodPost,
			body:           "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer()
			rec := do(t, srv.routes(), tt.method, "/register", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if got := len(srv.catalog.Services()); got != tt.expectServices {
				t.Errorf("services = %d, want %d", got, tt.expectServices)
			}
		})
	}
}

func TestHandleServices(t *testing.T) {
	srv := newServer()
	srv.monitor = coordinator.NewHealthMonitor(time.Hour)
	h := srv.routes()
	register(t, h,
		cluster.NodeInfo{ID: "node1", Addr: "http://localhost:8081"},
		cluster.NodeInfo{ID: "node2", Addr: "http://localhost:8082", Category: "blob"},
	)
	rec := do(t, h, http.MethodGet, "/services", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Services []serviceStatus `json:"services"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(resp.Services))
	}
	if resp.Services[0].ID != "node1" || resp.Services[0].Category != cluster.CategoryISC {
		t.Errorf("first service = %+v", resp.Services[0])
	}
	if resp.Services[1].Health != coordinator.StatusUnknown {
		t.Errorf("health = %s, want unknown", resp.Services[1].Health)
	}
}

func TestHandleNextService(t *testing.T) {
	srv := newServer()
	h := srv.routes()
	register(t, h,
		cluster.NodeInfo{ID: "a", Addr: "http://a"},
		cluster.NodeInfo{ID: "b", Addr: "http://b", Category: "blob"},
		cluster.NodeInfo{ID: "c", Addr: "http://c"},
	)
	tests := []struct {
		after    string
		expected string
		status   int
	}{
		{"", "a", http.StatusOK},
		{"a", "c", http.StatusOK},
		{"c", "", http.StatusNotFound},
		{"zz", "", http.StatusGone},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, "/services/next?category=iscs&after="+tt.after, nil)
		if rec.Code != tt.status {
			t.Errorf("after %q: status = %d, want %d", tt.after, rec.Code, tt.status)
			continue
		}
		if tt.status != http.StatusOK {
			continue
		}
		var resp cluster.NextServiceResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Service.ID != tt.expected {
			t.Errorf("after %q: got %s, want %s", tt.after, resp.Service.ID, tt.expected)
		}
	}
}

func TestDiscoveryThroughClient(t *testing.T) {
	srv := newServer()
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()
	register(t, srv.routes(),
		cluster.NodeInfo{ID: "n1", Addr: "http://n1"},
		cluster.NodeInfo{ID: "n2", Addr: "http://n2"},
	)
	c := cluster.NewClient(ts.URL)
	var ids []string
	after := ""
	for {
		n, ok, err := c.NextService(context.Background(), after, cluster.CategoryISC)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ids = append(ids, n.ID)
		after = n.ID
	}
	if len(ids) != 2 || ids[0] != "n1" || ids[1] != "n2" {
		t.Errorf("walk = %v", ids)
	}
}

func TestHandleObject(t *testing.T) {
	srv := newServer()
	h := srv.routes()
	register(t, h,
		cluster.NodeInfo{ID: "n1", Addr: "http://n1"},
		cluster.NodeInfo{ID: "n2", Addr: "http://n2"},
	)
	obj := layout.Object{
		ID:       "0:5",
		Size:     10,
		UnitSize: 4096,
		Placements: []layout.Placement{
			{Service: "n1", Addr: "http://n1", Offset: 0, Length: 6},
			{Service: "n2", Addr: "http://n2", Offset: 6, Length: 4},
		},
	}
	gap := obj
	gap.Placements = []layout.Placement{obj.Placements[0]}
	stranger := obj
	stranger.Placements = []layout.Placement{{Service: "n9", Addr: "http://n9", Offset: 0, Length: 10}}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"missing before put", http.MethodGet, "/objects/0:5", nil, http.StatusNotFound},
		{"put", http.MethodPut, "/objects/0:5", obj, http.StatusNoContent},
		{"get", http.MethodGet, "/objects/0:5", nil, http.StatusOK},
		{"id mismatch", http.MethodPut, "/objects/0:6", obj, http.StatusBadRequest},
		{"layout with gap", http.MethodPut, "/objects/0:5", gap, http.StatusBadRequest},
		{"unknown service", http.MethodPut, "/objects/0:5", stranger, http.StatusBadRequest},
		{"bad json", http.MethodPut, "/objects/0:5", "{", http.StatusBadRequest},
		{"no id", http.MethodGet, "/objects/", nil, http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/objects/0:5", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d: %s", tt.name, rec.Code, tt.status, rec.Body)
		}
	}

	rec := do(t, h, http.MethodGet, "/objects/0:5", nil)
	var got layout.Object
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Size != 10 || len(got.Placements) != 2 {
		t.Errorf("object = %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/objects", nil)
	var list struct {
		Objects []string `json:"objects"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Objects) != 1 || list.Objects[0] != "0:5" {
		t.Errorf("objects = %v", list.Objects)
	}

	if rec := do(t, h, http.MethodDelete, "/objects/0:5", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/objects/0:5", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestHandleBroadcast(t *testing.T) {
	var hits int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/control" {
			t.Errorf("path = %s, want /control", r.URL.Path)
		}
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	srv := newServer()
	h := srv.routes()
	register(t, h,
		cluster.NodeInfo{ID: "ok1", Addr: ok.URL},
		cluster.NodeInfo{ID: "bad", Addr: failing.URL},
		cluster.NodeInfo{ID: "ok2", Addr: ok.URL},
	)

	rec := do(t, h, http.MethodPost, "/broadcast", cluster.BroadcastRequest{
		Path:    "/control",
		Payload: json.RawMessage(`{"op":"ping"}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		SentTo  int `json:"sent_to"`
		Results []struct {
			ServiceID string `json:"service_id"`
			Err       string `json:"err"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SentTo != 3 || len(resp.Results) != 3 {
		t.Fatalf("sent_to = %d, results = %d", resp.SentTo, len(resp.Results))
	}
	for i, want := range []string{"ok1", "bad", "ok2"} {
		r := resp.Results[i]
		if r.ServiceID != want {
			t.Errorf("result %d from %s, want %s", i, r.ServiceID, want)
		}
		if (r.Err != "") != (want == "bad") {
			t.Errorf("result %s: err = %q", r.ServiceID, r.Err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("hits = %d, want 2", n)
	}

	for _, body := range []interface{}{
		cluster.BroadcastRequest{Path: "control"},
		cluster.BroadcastRequest{},
		"invalid json",
	} {
		if rec := do(t, h, http.MethodPost, "/broadcast", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := do(t, newServer().routes(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
