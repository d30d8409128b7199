package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/convertflow/pkg/config"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
)

// fakeStorage emulates the handful of JSON API routes the client uses.
type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string]string
	deleted  []string
	failKeys map[string]bool
}

func (f *fakeStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/storage/v1/b/bucket/o"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")

	switch {
	case key == "" && r.Method == http.MethodGet:
		var items []map[string]any
		for name := range f.objects {
			if strings.HasPrefix(name, r.URL.Query().Get("prefix")) {
				items = append(items, map[string]any{"name": name, "size": "3"})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"kind": "storage#objects", "items": items})
	case r.Method == http.MethodDelete:
		if f.failKeys[key] {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
			return
		}
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		delete(f.objects, key)
		f.deleted = append(f.deleted, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write([]byte(body))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": key, "bucket": "bucket"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeStorage) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClientWithOptions(context.Background(),
		config.StorageConfig{InputBucket: "bucket", OutputBucket: "bucket"},
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewClientWithOptions: %v", err)
	}
	return client
}

func TestGetExistsAndList(t *testing.T) {
	fake := &fakeStorage{objects: map[string]string{
		"abc/moderation.json":         `{}`,
		"abc/transcoded/index.m3u8":   "#EXTM3U",
		"other/transcoded/index.m3u8": "#EXTM3U",
	}}
	client := newTestClient(t, fake)
	ctx := context.Background()

	rc, err := client.Get(ctx, "bucket", "abc/moderation.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{}` {
		t.Fatalf("unexpected body %q", data)
	}

	if _, err := client.Get(ctx, "bucket", "abc/labels.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}

	ok, err := client.Exists(ctx, "bucket", "abc/moderation.json")
	if err != nil || !ok {
		t.Fatalf("expected object to exist, got %v %v", ok, err)
	}
	ok, err = client.Exists(ctx, "bucket", "abc/labels.json")
	if err != nil || ok {
		t.Fatalf("expected object to be absent, got %v %v", ok, err)
	}

	objs, err := client.List(ctx, "bucket", "abc/transcoded/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 || objs[0].Key != "abc/transcoded/index.m3u8" {
		t.Fatalf("unexpected listing %+v", objs)
	}
}

func TestDeleteBatchAggregatesFailures(t *testing.T) {
	fake := &fakeStorage{
		objects: map[string]string{
			"abc/a.json": "a",
			"abc/b.json": "b",
			"abc/c.json": "c",
		},
		failKeys: map[string]bool{"abc/b.json": true},
	}
	client := newTestClient(t, fake)

	err := client.DeleteBatch(context.Background(), "bucket", []string{"abc/a.json", "abc/b.json", "abc/c.json", "abc/missing.json"})
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 failure, got %d: %v", got, err)
	}
	if len(fake.deleted) != 2 {
		t.Fatalf("expected the other deletes to proceed, got %v", fake.deleted)
	}
}

func TestNewClientRequiresBuckets(t *testing.T) {
	if _, err := NewClientWithOptions(context.Background(), config.StorageConfig{OutputBucket: "b"}); err == nil {
		t.Fatalf("expected missing input bucket error")
	}
}
