package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/framework/helpers"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// HTTPTransport is the standard Transport, based on net/http.
type HTTPTransport struct {
	client *http.Client
	logger framework.Logger
}

// Option is a configuration option for NewHTTPTransport.
type Option helpers.ConfigOption[HTTPTransport]

// WithHTTPClient makes the transport use a specific http.Client. Its Jar is ignored; the jar is
// chosen per request by Options.Jar.
func WithHTTPClient(client *http.Client) Option {
	return helpers.OptionFunc[HTTPTransport](func(t *HTTPTransport) error {
		if client == nil {
			return fmt.Errorf("http client must not be nil")
		}
		t.client = client
		return nil
	})
}

// WithLogger makes the transport log cache activity.
func WithLogger(logger framework.Logger) Option {
	return helpers.OptionFunc[HTTPTransport](func(t *HTTPTransport) error {
		if logger != nil {
			t.logger = logger
		}
		return nil
	})
}

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(options ...Option) (*HTTPTransport, error) {
	t := HTTPTransport{client: http.DefaultClient, logger: framework.NullLogger()}
	if err := helpers.ApplyOptions(&t, options...); err != nil {
		return nil, err
	}
	return &t, nil
}

// Do performs a request. Options.Timeout, if nonzero, bounds the entire request including reading
// the response body. If Options.Cache is set, GET responses carrying an ETag or Last-Modified
// header are cached, later GETs for the same URL are made conditional, and a 304 answer returns
// the cached response. A successful request with any other method removes the URL's cache entry.
func (t *HTTPTransport) Do(ctx context.Context, url string, options Options) (*Response, error) {
	method := methodOrGet(options.Method)
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if options.Body != nil {
		bodyReader = bytes.NewReader(options.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	headerNames := maps.Keys(options.Headers)
	slices.Sort(headerNames)
	for _, name := range headerNames {
		req.Header.Set(name, options.Headers[name])
	}

	cacheKey := method + " " + url
	var cached cache.Entry
	var haveCached bool
	if options.Cache != nil && method == http.MethodGet {
		cached, haveCached, err = options.Cache.Get(ctx, cacheKey)
		if err != nil {
			return nil, fmt.Errorf("cache lookup failed for %s: %w", url, err)
		}
		if haveCached {
			if etag := cached.ETag(); etag != "" && req.Header.Get("If-None-Match") == "" {
				req.Header.Set("If-None-Match", etag)
			}
			if lm := cached.LastModified(); lm != "" && req.Header.Get("If-Modified-Since") == "" {
				req.Header.Set("If-Modified-Since", lm)
			}
		}
	}

	client := *t.client
	if options.Jar != nil {
		client.Jar = options.Jar
	} else {
		client.Jar = nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && haveCached {
		t.logger.Printf("%s %s: not modified, using cached response", method, url)
		return &Response{Status: cached.Status, Header: cached.Header, Body: cached.Body, FromCache: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Method: method,
			URL:    url,
			Header: resp.Header,
			Body:   respBody,
		}
	}

	if options.Cache != nil {
		if err := t.updateCache(ctx, options.Cache, method, url, resp, respBody); err != nil {
			return nil, err
		}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func (t *HTTPTransport) updateCache(
	ctx context.Context,
	store cache.Store,
	method, url string,
	resp *http.Response,
	body []byte,
) error {
	getKey := http.MethodGet + " " + url
	if method != http.MethodGet {
		if err := store.Delete(ctx, getKey); err != nil {
			return fmt.Errorf("cache invalidation failed for %s: %w", url, err)
		}
		return nil
	}
	entry := cache.Entry{Status: resp.StatusCode, Header: http.Header{}, Body: body}
	for _, name := range []string{"Content-Type", "ETag", "Last-Modified"} {
		if value := resp.Header.Get(name); value != "" {
			entry.Header.Set(name, value)
		}
	}
	if !entry.Validated() {
		return nil
	}
	if err := store.Set(ctx, getKey, entry); err != nil {
		return fmt.Errorf("cache update failed for %s: %w", url, err)
	}
	t.logger.Printf("%s %s: cached response with validators", method, url)
	return nil
}
