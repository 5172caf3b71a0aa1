package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/isc/internal/cluster"
	"github.com/dreamware/isc/internal/config"
	"github.com/dreamware/isc/internal/coordinator"
	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/layout"
	"github.com/dreamware/isc/internal/shard"
)

// testCluster is a catalog server with compute nodes registered in it.
type testCluster struct {
	coord   *httptest.Server
	catalog *coordinator.Catalog
	objects *coordinator.Objects
	shards  map[string]*shard.Shard
	nodes   []*httptest.Server
}

func newTestCluster(t *testing.T, n int) *testCluster {
	c := &testCluster{
		catalog: coordinator.NewCatalog(),
		objects: coordinator.NewObjects(),
		shards:  make(map[string]*shard.Shard),
	}
	c.coord = httptest.NewServer(http.HandlerFunc(c.serveCatalog))
	t.Cleanup(c.coord.Close)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("node-%d", i)
		sh := shard.NewShard(id)
		c.shards[id] = sh
		srv := httptest.NewServer(nodeHandler(sh, isc.NewRegistry(id)))
		t.Cleanup(srv.Close)
		c.nodes = append(c.nodes, srv)
		require.NoError(t, c.catalog.Register(cluster.NodeInfo{ID: id, Addr: srv.URL}))
	}
	return c
}

func (c *testCluster) serveCatalog(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/services/next":
		q := r.URL.Query()
		n, ok, err := c.catalog.Next(q.Get("after"), q.Get("category"))
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusGone)
		case !ok:
			http.NotFound(w, r)
		default:
			_ = json.NewEncoder(w).Encode(cluster.NextServiceResponse{Service: n})
		}
	case strings.HasPrefix(r.URL.Path, "/objects/"):
		id := strings.TrimPrefix(r.URL.Path, "/objects/")
		if r.Method == http.MethodPut {
			var obj layout.Object
			if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := c.objects.Put(&obj); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		obj, err := c.objects.Get(id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(obj)
	default:
		http.NotFound(w, r)
	}
}

func nodeHandler(sh *shard.Shard, lib *isc.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/isc/exec":
			var req cluster.ExecRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var resp cluster.ExecResponse
			if out, err := lib.Exec(r.Context(), req.Component, sh, req.Input, req.ReplyCap); err != nil {
				resp = cluster.ExecResponse{Status: 1, Error: err.Error()}
			} else {
				resp.Payload = out
			}
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasPrefix(r.URL.Path, "/objects/") && r.Method == http.MethodPut:
			b, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := sh.Put(strings.TrimPrefix(r.URL.Path, "/objects/"), b); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
}

func (c *testCluster) app(out io.Writer) *app {
	cfg := config.Default()
	cfg.Coordinator = c.coord.URL
	cfg.UnitSize = 4 << 10
	return &app{cfg: cfg, out: out}
}

// dataFile writes count values: i*7 mod 1000, except for a planted minimum
// and maximum.
func dataFile(t *testing.T, count, minAt, maxAt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", count)
	for i := 0; i < count; i++ {
		switch i {
		case minAt:
			b.WriteString("-12.5\n")
		case maxAt:
			b.WriteString("4096.25\n")
		default:
			fmt.Fprintf(&b, "%d\n", (i*7)%1000)
		}
	}
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestLoadAndReduce(t *testing.T) {
	c := newTestCluster(t, 3)
	path := dataFile(t, 5000, 1234, 4321)

	var out bytes.Buffer
	require.NoError(t, c.app(&out).run(context.Background(), []string{"load", "0x10", path}))
	assert.Contains(t, out.String(), "loaded 5000 values into 0:16")

	obj, err := c.objects.Get("0:16")
	require.NoError(t, err)
	require.Len(t, obj.Placements, 3)
	for _, p := range obj.Placements {
		assert.Contains(t, c.shards[p.Service].Objects(), "0:16")
	}
	length := fmt.Sprint((obj.Size + 1023) >> 10)

	tests := []struct {
		op   string
		want string
	}{
		{"max", "idx=4321 val=4096.250000\n"},
		{"min", "idx=1234 val=-12.500000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, c.app(&out).run(context.Background(), []string{tt.op, "16", length}))
			assert.Equal(t, tt.want, out.String())
		})
	}

	t.Run("small blocks", func(t *testing.T) {
		var out bytes.Buffer
		a := c.app(&out)
		a.cfg.BlockSize = config.Size(layout.MinLength)
		a.trace = true
		require.NoError(t, a.run(context.Background(), []string{"max", "0:16", length}))
		assert.Equal(t, "idx=4321 val=4096.250000\n", out.String())
	})

	t.Run("ping", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, c.app(&out).run(context.Background(), []string{"ping", "0:16", length}))
		for i, n := range c.nodes {
			assert.Contains(t, out.String(), fmt.Sprintf("Hello-node-%d @%s\n", i, n.URL))
		}
	})
}

func TestLengthClamped(t *testing.T) {
	c := newTestCluster(t, 2)
	path := dataFile(t, 10, 3, 8)
	require.NoError(t, c.app(io.Discard).run(context.Background(), []string{"load", "7", path}))

	var out bytes.Buffer
	require.NoError(t, c.app(&out).run(context.Background(), []string{"max", "7", "1024"}))
	assert.Equal(t, "idx=8 val=4096.250000\n", out.String())
}

func TestRunErrors(t *testing.T) {
	c := newTestCluster(t, 2)
	tests := []struct {
		name string
		args []string
		kind errors.Kind
		code int
	}{
		{"no args", nil, errors.Invalid, exitUsage},
		{"unknown operation", []string{"sum", "1", "4"}, errors.Invalid, exitUsage},
		{"missing length", []string{"max", "1"}, errors.Invalid, exitUsage},
		{"bad object id", []string{"max", "x:y", "4"}, errors.Invalid, exitUsage},
		{"short length", []string{"max", "1", "3"}, errors.Invalid, exitUsage},
		{"unknown object", []string{"max", "99", "4"}, errors.NotExist, exitInit},
		{"missing data file", []string{"load", "1", "/nonexistent/data.txt"}, errors.Invalid, exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.app(io.Discard).run(context.Background(), tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(tt.kind, err), "%v", err)
			assert.Equal(t, tt.code, exitCode(err))
		})
	}
}

func TestNoServices(t *testing.T) {
	c := newTestCluster(t, 0)
	path := dataFile(t, 10, 0, 1)
	err := c.app(io.Discard).run(context.Background(), []string{"load", "1", path})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestNodeDown(t *testing.T) {
	c := newTestCluster(t, 2)
	path := dataFile(t, 2000, 5, 1500)
	require.NoError(t, c.app(io.Discard).run(context.Background(), []string{"load", "1", path}))
	c.nodes[1].Close()

	// The planted maximum lives on the closed node; the best value left is
	// 999 = 857*7 mod 1000.
	var out bytes.Buffer
	require.NoError(t, c.app(&out).run(context.Background(), []string{"max", "1", "64"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, out.String())
	assert.Equal(t, "idx=857 val=999.000000", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "partial: "), lines[1])
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitTraversal, exitCode(errors.E(errors.Net, errors.Fatal, "send")))
	assert.Equal(t, exitTraversal, exitCode(errors.E("run", errors.E(errors.Invalid, errors.Fatal, "input"))))
	assert.Equal(t, exitUsage, exitCode(errors.E(errors.Invalid, "usage")))
	assert.Equal(t, exitInit, exitCode(errors.E(errors.NotExist, "object")))
}

func TestReadData(t *testing.T) {
	values, err := readData(strings.NewReader("3\n1.5 -2\n7e2\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, 700}, values)

	for _, bad := range []string{"", "x", "0", "3\n1 2", "2\n1 nan", "2\n1 2 3", "9000000000000000000 1 2 3"} {
		_, err := readData(strings.NewReader(bad))
		assert.True(t, errors.Is(errors.Invalid, err), "%q: %v", bad, err)
	}
}

func TestFormatChunk(t *testing.T) {
	assert.Equal(t, "1\n-2.5\n1e+21\n", string(formatChunk([]float64{1, -2.5, 1e21})))
}
