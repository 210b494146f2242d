package cache

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsulKV serves the parts of the Consul KV HTTP API that ConsulStore uses.
type fakeConsulKV struct {
	lock   sync.Mutex
	values map[string][]byte
}

func (f *fakeConsulKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
	f.lock.Lock()
	defer f.lock.Unlock()
	switch r.Method {
	case http.MethodGet:
		value, ok := f.values[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		data, _ := json.Marshal([]map[string]interface{}{{"Key": key, "Value": value}})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.values[key] = body
		_, _ = w.Write([]byte("true"))
	case http.MethodDelete:
		_, recurse := r.URL.Query()["recurse"]
		for k := range f.values {
			if k == key || (recurse && strings.HasPrefix(k, key)) {
				delete(f.values, k)
			}
		}
		_, _ = w.Write([]byte("true"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeConsulKV) keys() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	var ret []string
	for k := range f.values {
		ret = append(ret, k)
	}
	return ret
}

func TestConsulStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv := &fakeConsulKV{values: map[string][]byte{}}
	httphelpers.WithServer(kv, func(server *httptest.Server) {
		store, err := NewConsulStore(ConsulOptions{Address: server.URL}, "run")
		require.NoError(t, err)

		_, found, err := store.Get(ctx, "widgets/1")
		require.NoError(t, err)
		assert.False(t, found)

		entry := Entry{Status: 200, Header: http.Header{"Etag": {`"1"`}}, Body: []byte(`{"id":1}`)}
		require.NoError(t, store.Set(ctx, "widgets/1", entry))
		assert.Equal(t, []string{"run/widgets/1"}, kv.keys())

		got, found, err := store.Get(ctx, "widgets/1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, entry, got)

		require.NoError(t, store.Delete(ctx, "widgets/1"))
		_, found, err = store.Get(ctx, "widgets/1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestConsulStoreCloseRemovesItsKeys(t *testing.T) {
	ctx := context.Background()
	kv := &fakeConsulKV{values: map[string][]byte{"other/k": []byte("{}")}}
	httphelpers.WithServer(kv, func(server *httptest.Server) {
		store, err := NewConsulStore(ConsulOptions{Address: server.URL}, "run")
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "a", Entry{Status: 200}))
		require.NoError(t, store.Set(ctx, "b", Entry{Status: 200}))

		require.NoError(t, store.Close())
		assert.Equal(t, []string{"other/k"}, kv.keys())
	})
}

func TestConsulStoreRejectsInvalidEntry(t *testing.T) {
	kv := &fakeConsulKV{values: map[string][]byte{"run/k": []byte("not json")}}
	httphelpers.WithServer(kv, func(server *httptest.Server) {
		store, err := NewConsulStore(ConsulOptions{Address: server.URL}, "run")
		require.NoError(t, err)
		_, found, err := store.Get(context.Background(), "k")
		assert.False(t, found)
		assert.Error(t, err)
	})
}

func TestConsulStoreReportsServerErrors(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(500), func(server *httptest.Server) {
		store, err := NewConsulStore(ConsulOptions{Address: server.URL}, "run")
		require.NoError(t, err)
		ctx := context.Background()
		_, _, err = store.Get(ctx, "k")
		assert.Error(t, err)
		assert.Error(t, store.Set(ctx, "k", Entry{Status: 200}))
		assert.Error(t, store.Delete(ctx, "k"))
	})
}
