package apiclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrNestedDeferred is returned when a Deferred body producer returns another Deferred.
var ErrNestedDeferred = errors.New("a deferred body must produce a literal or multipart body")

// Body is a request body. It is one of Literal, Deferred, or Multipart; a nil Body means the
// request has no body.
type Body interface {
	isBody()
}

// Literal is a body that is sent as-is. Unless JSON encoding is disabled for the request, Value
// is encoded with encoding/json.
type Literal struct {
	Value interface{}
}

// Deferred is a body that is produced only when the request is issued. The producer is called
// exactly once per request.
type Deferred func() (Body, error)

// Multipart is a multipart/form-data body. JSON encoding never applies to it.
type Multipart struct {
	Payload MultipartPayload
}

// MultipartPayload is the capability that encodes a multipart body. *formdata.Form implements it.
type MultipartPayload interface {
	Buffer(ctx context.Context) ([]byte, error)
	Headers(includeChunked bool) map[string]string
}

func (Literal) isBody()   {}
func (Deferred) isBody()  {}
func (Multipart) isBody() {}

// JSONBody is shorthand for Literal{Value: value}.
func JSONBody(value interface{}) Body {
	return Literal{Value: value}
}

func resolveBody(body Body) (Body, error) {
	deferred, ok := body.(Deferred)
	if !ok {
		return body, nil
	}
	if deferred == nil {
		return nil, nil
	}
	resolved, err := deferred()
	if err != nil {
		return nil, fmt.Errorf("failed to produce request body: %w", err)
	}
	if _, nested := resolved.(Deferred); nested {
		return nil, ErrNestedDeferred
	}
	return resolved, nil
}
