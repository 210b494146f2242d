// Package cache provides the response cache that is shared by every request in a test run.
//
// The cache is a simple key-value store with no eviction. The transport layer uses it to store
// GET responses that carry validators (ETag or Last-Modified) so that later requests for the
// same URL can be revalidated with a conditional GET.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrClosed is returned by operations on a Store that has been closed.
var ErrClosed = errors.New("cache store is closed")

// Entry is a cached response.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// ETag returns the entity tag of the cached response, if any.
func (e Entry) ETag() string { return e.Header.Get("ETag") }

// LastModified returns the Last-Modified header of the cached response, if any.
func (e Entry) LastModified() string { return e.Header.Get("Last-Modified") }

// Validated returns true if the entry can be revalidated with a conditional request.
func (e Entry) Validated() bool { return e.ETag() != "" || e.LastModified() != "" }

// Store is the interface for a response cache backend. Implementations must treat a missing key
// as (Entry{}, false, nil) rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func encodeEntry(entry Entry) ([]byte, error) {
	return json.Marshal(entry)
}

func decodeEntry(data []byte) (Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return entry, err
}

func addPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
