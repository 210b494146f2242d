package apiclient

import (
	"bytes"
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// ParseError is returned when a response body is not a single valid JSON document.
type ParseError struct {
	Method string
	URL    string
	Body   []byte
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON in response to %s %s: %s", e.Method, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseJSON parses a response body. An empty body is JSON null; anything else must be exactly one
// JSON document, optionally surrounded by whitespace.
func ParseJSON(body []byte) (ldvalue.Value, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ldvalue.Null(), nil
	}
	r := jreader.NewReader(body)
	var value ldvalue.Value
	value.ReadFromJSONReader(&r)
	if err := r.Error(); err != nil {
		return ldvalue.Null(), err
	}
	if err := r.RequireEOF(); err != nil {
		return ldvalue.Null(), err
	}
	return value, nil
}

func parseBody(method, url string, body []byte) (ldvalue.Value, error) {
	value, err := ParseJSON(body)
	if err != nil {
		return ldvalue.Null(), &ParseError{Method: method, URL: url, Body: body, Err: err}
	}
	return value, nil
}
