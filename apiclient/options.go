package apiclient

import (
	"net/http"
	"time"

	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/framework/opt"
	"github.com/launchdarkly/api-test-harness/transport"
)

// RequestOptions describes one call. Unset optional fields fall back to the Client's Defaults.
type RequestOptions struct {
	// Method is used only by WithBody and by callers that dispatch on it; Get, JSON and Delete
	// always use their own method.
	Method string

	// Headers override the default headers and any content headers derived from the body.
	Headers map[string]string

	Body Body

	// Cache controls use of the default cache. See Client for how each operation treats an
	// undefined value.
	Cache opt.Maybe[bool]

	// JSON controls JSON encoding of a Literal body; it is true if undefined. When it is false, the
	// body must be a string or []byte and is sent verbatim without a Content-Type header.
	JSON opt.Maybe[bool]

	Timeout opt.Maybe[time.Duration]
}

// Defaults are the options shared by every call made through a Client. They are never modified by
// a call.
type Defaults struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	Jar     *transport.Jar
	Cache   cache.Store
}

// mergeOptions builds the transport options for one call: the default headers overlaid by the
// content headers and then by the call's own headers.
func (c *Client) mergeOptions(
	method string,
	options RequestOptions,
	useCache bool,
	contentHeaders map[string]string,
) transport.Options {
	headers := make(map[string]string, len(c.defaults.Headers)+len(contentHeaders)+len(options.Headers))
	for _, source := range []map[string]string{c.defaults.Headers, contentHeaders, options.Headers} {
		for name, value := range source {
			headers[http.CanonicalHeaderKey(name)] = value
		}
	}
	ret := transport.Options{
		Method:  method,
		Headers: headers,
		Timeout: options.Timeout.OrElse(c.defaults.Timeout),
		Jar:     c.defaults.Jar,
	}
	if useCache {
		ret.Cache = c.defaults.Cache
	}
	return ret
}
