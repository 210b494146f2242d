package apitest

import (
	"fmt"
	"regexp"

	"github.com/launchdarkly/api-test-harness/framework/helpers"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Classification maps an expected status code to the pattern that a request's error message must
// match for a failure assertion to pass.
type Classification map[int]*regexp.Regexp

// StatusPattern returns the pattern matching the transport error for a status code.
func StatusPattern(code int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`Response code %d\b`, code))
}

// DefaultClassification returns the classification for 400, 404, and 405.
func DefaultClassification() Classification {
	ret := make(Classification)
	for _, code := range []int{400, 404, 405} {
		ret[code] = StatusPattern(code)
	}
	return ret
}

// With returns a copy of the classification with one entry added or replaced.
func (c Classification) With(code int, pattern *regexp.Regexp) Classification {
	ret := helpers.CopyMap(c)
	ret[code] = pattern
	return ret
}

// Pattern returns the pattern registered for a status code.
func (c Classification) Pattern(code int) (*regexp.Regexp, bool) {
	p, ok := c[code]
	return p, ok && p != nil
}

// Codes returns the registered status codes in ascending order.
func (c Classification) Codes() []int {
	ret := maps.Keys(c)
	slices.Sort(ret)
	return ret
}

// ParseClassification builds a classification from the defaults plus entries whose patterns are
// regular expression strings. An empty pattern means StatusPattern for that code.
func ParseClassification(entries map[int]string) (Classification, error) {
	ret := DefaultClassification()
	for code, expr := range entries {
		if expr == "" {
			ret[code] = StatusPattern(code)
			continue
		}
		rx, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for status %d: %w", code, err)
		}
		ret[code] = rx
	}
	return ret, nil
}
