package storage

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
)

// TestMemoryStore tests the in-memory store implementation
func TestMemoryStore(t *testing.T) {
	t.Run("new store is empty", func(t *testing.T) {
		store := NewMemoryStore()

		if keys := store.List(); len(keys) != 0 {
			t.Errorf("Expected empty store, got %d keys", len(keys))
		}

		_, err := store.Get("0:1")
		if err != ErrKeyNotFound {
			t.Errorf("Expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("put and get chunk", func(t *testing.T) {
		store := NewMemoryStore()

		if err := store.Put("0:1", []byte("3 7\n")); err != nil {
			t.Fatalf("Failed to put chunk: %v", err)
		}

		value, err := store.Get("0:1")
		if err != nil {
			t.Fatalf("Failed to get chunk: %v", err)
		}
		if !bytes.Equal(value, []byte("3 7\n")) {
			t.Errorf("Expected '3 7\\n', got %q", value)
		}
	})

	t.Run("put copies input", func(t *testing.T) {
		store := NewMemoryStore()
		buf := []byte("1.5\n")
		store.Put("0:1", buf)
		buf[0] = '9'

		value, _ := store.Get("0:1")
		if value[0] != '1' {
			t.Errorf("Stored chunk changed with caller buffer: %q", value)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put("0:1", []byte("x"))

		if err := store.Delete("0:1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete("0:1"); err != nil {
			t.Fatalf("Second delete failed: %v", err)
		}
		if _, err := store.Get("0:1"); err != ErrKeyNotFound {
			t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
		}
	})
}

// TestMemoryStoreReadAt tests bounded range reads
func TestMemoryStoreReadAt(t *testing.T) {
	store := NewMemoryStore()
	store.Put("obj", []byte("0123456789"))

	tests := []struct {
		name    string
		off, n  uint64
		want    string
		wantErr bool
	}{
		{name: "prefix", off: 0, n: 4, want: "0123"},
		{name: "middle", off: 3, n: 3, want: "345"},
		{name: "suffix", off: 6, n: 4, want: "6789"},
		{name: "empty at end", off: 10, n: 0, want: ""},
		{name: "past end", off: 8, n: 4, wantErr: true},
		{name: "offset past end", off: 11, n: 0, wantErr: true},
		{name: "overflowing length", off: 1, n: ^uint64(0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ReadAt("obj", tt.off, tt.n)
			if tt.wantErr {
				if !errors.Is(errors.Invalid, err) {
					t.Errorf("Expected invalid range error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAt failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := store.ReadAt("missing", 0, 1); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// TestMemoryStoreStats tests statistics tracking
func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	store.Put("a", []byte("12345"))
	store.Put("b", []byte("123"))

	stats := store.Stats()
	if stats.Keys != 2 {
		t.Errorf("Expected 2 keys, got %d", stats.Keys)
	}
	if stats.Bytes != 8 {
		t.Errorf("Expected 8 bytes, got %d", stats.Bytes)
	}
}

// TestMemoryStoreConcurrency tests concurrent access
func TestMemoryStoreConcurrency(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("obj-%d", i%5)
			store.Put(key, []byte("1 2 3\n"))
			store.ReadAt(key, 0, 3)
			store.Stats()
		}(i)
	}
	wg.Wait()

	if got := len(store.List()); got != 5 {
		t.Errorf("Expected 5 keys, got %d", got)
	}
}
