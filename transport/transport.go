// Package transport performs the HTTP requests issued by the test harness. A non-2xx response is
// always reported as an *HTTPError whose message includes the status code.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/launchdarkly/api-test-harness/cache"
)

// Options describes one request. The zero value is a GET with no body, no timeout, no cookie
// jar and no cache.
type Options struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
	Jar     *Jar
	Cache   cache.Store
}

// Response is a successful (2xx) response, with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// FromCache is true if the body came from the cache after the server answered 304.
	FromCache bool
}

// Transport is the capability that performs one HTTP request.
type Transport interface {
	Do(ctx context.Context, url string, options Options) (*Response, error)
}

// HTTPError is returned by a Transport for any non-2xx response.
type HTTPError struct {
	Status int
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Response code %d (%s)", e.Status, http.StatusText(e.Status))
}

func methodOrGet(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return method
}
