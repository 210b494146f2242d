package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/transport"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// ErrRawBodyType is returned when JSON encoding is disabled but the body is not a string or []byte.
var ErrRawBodyType = errors.New("body must be a string or []byte when JSON encoding is disabled")

// ErrBodyNotAllowed is returned when a body is given to an operation that does not send one.
var ErrBodyNotAllowed = errors.New("request body is not allowed for this operation")

// Client issues requests against the instance under test and normalizes the outcome to a parsed
// JSON value or an error.
//
// Transport errors (including *transport.HTTPError for any non-2xx status) and parse errors are
// returned unchanged; Client never recovers from them.
//
// Cache handling: Get, JSON and Delete use the default cache unless RequestOptions.Cache is
// explicitly false. WithBody, Post and Put use it only if RequestOptions.Cache is explicitly true.
type Client struct {
	transport transport.Transport
	defaults  Defaults
	logger    framework.Logger
}

// New creates a Client. The defaults are copied; later changes to the caller's maps have no effect.
func New(t transport.Transport, defaults Defaults) *Client {
	d := defaults
	d.Headers = copyHeaders(defaults.Headers)
	return &Client{transport: t, defaults: d, logger: framework.NullLogger()}
}

// WithLogger returns a Client that shares this one's transport and defaults, but writes its
// request log to logger.
func (c *Client) WithLogger(logger framework.Logger) *Client {
	if logger == nil {
		logger = framework.NullLogger()
	}
	ret := *c
	ret.logger = logger
	return &ret
}

// Defaults returns a copy of the client's default options.
func (c *Client) Defaults() Defaults {
	d := c.defaults
	d.Headers = copyHeaders(c.defaults.Headers)
	return d
}

// URL resolves a path against the base URL. A path that is already an absolute http or https URL
// is returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimSuffix(c.defaults.BaseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Get issues a GET request and returns the raw response. options.Body must be nil.
func (c *Client) Get(ctx context.Context, path string, options RequestOptions) (*transport.Response, error) {
	if options.Body != nil {
		return nil, ErrBodyNotAllowed
	}
	return c.do(ctx, path, c.mergeOptions(http.MethodGet, options, options.Cache.OrElse(true), nil))
}

// JSON issues a GET request and parses the response body.
func (c *Client) JSON(ctx context.Context, path string, options RequestOptions) (ldvalue.Value, error) {
	resp, err := c.Get(ctx, path, options)
	if err != nil {
		return ldvalue.Null(), err
	}
	return parseBody(http.MethodGet, c.URL(path), resp.Body)
}

// Post is WithBody with the POST method.
func (c *Client) Post(ctx context.Context, path string, options RequestOptions) (ldvalue.Value, error) {
	return c.WithBody(ctx, http.MethodPost, path, options)
}

// Put is WithBody with the PUT method.
func (c *Client) Put(ctx context.Context, path string, options RequestOptions) (ldvalue.Value, error) {
	return c.WithBody(ctx, http.MethodPut, path, options)
}

// WithBody issues a request that may carry a body, and parses the response body.
//
// A Deferred body is resolved first. A Multipart body is buffered and its own headers (without the
// chunked transfer header) are applied, regardless of RequestOptions.JSON. A Literal body is
// JSON-encoded with a "Content-Type: application/json" header unless RequestOptions.JSON is false.
// Headers in RequestOptions take precedence over these content headers.
func (c *Client) WithBody(ctx context.Context, method, path string, options RequestOptions) (ldvalue.Value, error) {
	body, err := resolveBody(options.Body)
	if err != nil {
		return ldvalue.Null(), err
	}

	var data []byte
	var contentHeaders map[string]string
	switch b := body.(type) {
	case nil:
	case Multipart:
		if b.Payload == nil {
			return ldvalue.Null(), errors.New("multipart body has no payload")
		}
		if data, err = b.Payload.Buffer(ctx); err != nil {
			return ldvalue.Null(), fmt.Errorf("failed to encode multipart body: %w", err)
		}
		contentHeaders = b.Payload.Headers(false)
	case Literal:
		if options.JSON.OrElse(true) {
			if data, err = json.Marshal(b.Value); err != nil {
				return ldvalue.Null(), fmt.Errorf("failed to encode request body as JSON: %w", err)
			}
			contentHeaders = map[string]string{"Content-Type": "application/json"}
		} else {
			switch raw := b.Value.(type) {
			case string:
				data = []byte(raw)
			case []byte:
				data = raw
			case json.RawMessage:
				data = raw
			default:
				return ldvalue.Null(), fmt.Errorf("%w (got %T)", ErrRawBodyType, b.Value)
			}
		}
	default:
		return ldvalue.Null(), fmt.Errorf("unsupported body type %T", body)
	}

	topts := c.mergeOptions(method, options, options.Cache.OrElse(false), contentHeaders)
	topts.Body = data
	resp, err := c.do(ctx, path, topts)
	if err != nil {
		return ldvalue.Null(), err
	}
	return parseBody(method, c.URL(path), resp.Body)
}

// Delete issues a DELETE request and parses the response body. options.Body must be nil.
func (c *Client) Delete(ctx context.Context, path string, options RequestOptions) (ldvalue.Value, error) {
	if options.Body != nil {
		return ldvalue.Null(), ErrBodyNotAllowed
	}
	resp, err := c.do(ctx, path, c.mergeOptions(http.MethodDelete, options, options.Cache.OrElse(true), nil))
	if err != nil {
		return ldvalue.Null(), err
	}
	return parseBody(http.MethodDelete, c.URL(path), resp.Body)
}

// CookieString returns the cookies from the shared jar that would be sent to a path or URL.
func (c *Client) CookieString(ctx context.Context, pathOrURL string) (string, error) {
	if c.defaults.Jar == nil {
		return "", nil
	}
	return c.defaults.Jar.CookieString(ctx, c.URL(pathOrURL))
}

func (c *Client) do(ctx context.Context, path string, options transport.Options) (*transport.Response, error) {
	url := c.URL(path)
	framework.LogRequest(c.logger, options.Method, url)
	resp, err := c.transport.Do(ctx, url, options)
	if err != nil {
		framework.LogRequestFailed(c.logger, options.Method, url, err)
		return nil, err
	}
	framework.LogResponse(c.logger, options.Method, url, resp.Status, resp.FromCache)
	return resp, nil
}

func copyHeaders(headers map[string]string) map[string]string {
	ret := make(map[string]string, len(headers))
	for k, v := range headers {
		ret[k] = v
	}
	return ret
}
