// Package jsonmatch provides matchers for comparing parsed response bodies against expectations,
// either exactly (Equal) or by pattern (Partial).
package jsonmatch

import (
	"fmt"
	"sort"
	"strings"

	h "github.com/launchdarkly/api-test-harness/framework/helpers"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
)

// Equal is a matcher for strict structural equality of two JSON values. Both the expected value
// and the tested value may be anything that can be marshaled to JSON, or an ldvalue.Value.
//
// On failure, the description lists every path at which the values differ.
func Equal(expected interface{}) m.Matcher {
	expectedValue := h.AsJSONValue(expected)
	return m.New(
		func(value interface{}) bool {
			return h.AsJSONValue(value).Equal(expectedValue)
		},
		func() string {
			return "JSON equal to " + h.CanonicalizedJSONString(expectedValue)
		},
		func(value interface{}) string {
			return describeDiffs(Diff(expectedValue, h.AsJSONValue(value)))
		},
	)
}

// Partial is a matcher for a partial match against a pattern:
//   - An object pattern matches an object that has at least the pattern's properties, each of
//     which matches recursively. Other properties are ignored.
//   - An array pattern matches an array with at least as many elements, where each element of
//     the pattern matches the element at the same index.
//   - A *regexp.Regexp matches a string value that the expression matches.
//   - Any other pattern value must be equal to the tested value.
//
// The pattern can be built from maps, slices, ldvalue.Value, and *regexp.Regexp; other values
// are converted through JSON.
func Partial(expected interface{}) m.Matcher {
	p := compilePattern(expected)
	return m.New(
		func(value interface{}) bool {
			return len(p.mismatches("", h.AsJSONValue(value))) == 0
		},
		func() string {
			return "JSON matching " + p.String()
		},
		func(value interface{}) string {
			return describeDiffs(p.mismatches("", h.AsJSONValue(value)))
		},
	)
}

// Diff returns a description of every path at which two JSON values differ, in a stable order.
// It returns nil if the values are equal.
func Diff(expected, actual ldvalue.Value) []string {
	return diffValues("", expected, actual)
}

func diffValues(path string, expected, actual ldvalue.Value) []string {
	if expected.Equal(actual) {
		return nil
	}
	if expected.Type() != actual.Type() {
		return []string{mismatch(path, expected, actual)}
	}
	switch expected.Type() {
	case ldvalue.ObjectType:
		var ret []string
		for _, k := range unionKeys(expected, actual) {
			ev, eok := expected.TryGetByKey(k)
			av, aok := actual.TryGetByKey(k)
			switch {
			case !aok:
				ret = append(ret, fmt.Sprintf("%s: missing, expected %s", joinKey(path, k), h.CanonicalizedJSONString(ev)))
			case !eok:
				ret = append(ret, fmt.Sprintf("%s: unexpected property with value %s", joinKey(path, k), h.CanonicalizedJSONString(av)))
			default:
				ret = append(ret, diffValues(joinKey(path, k), ev, av)...)
			}
		}
		return ret
	case ldvalue.ArrayType:
		if expected.Count() != actual.Count() {
			return []string{fmt.Sprintf("%s: expected %d element(s), got %d: %s",
				displayPath(path), expected.Count(), actual.Count(), h.CanonicalizedJSONString(actual))}
		}
		var ret []string
		for i := 0; i < expected.Count(); i++ {
			ret = append(ret, diffValues(joinIndex(path, i), expected.GetByIndex(i), actual.GetByIndex(i))...)
		}
		return ret
	default:
		return []string{mismatch(path, expected, actual)}
	}
}

func unionKeys(a, b ldvalue.Value) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, v := range []ldvalue.Value{a, b} {
		for _, k := range v.Keys(nil) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func mismatch(path string, expected, actual ldvalue.Value) string {
	return fmt.Sprintf("%s: expected %s, got %s", displayPath(path),
		h.CanonicalizedJSONString(expected), h.CanonicalizedJSONString(actual))
}

func describeDiffs(diffs []string) string {
	return "differences:\n  " + strings.Join(diffs, "\n  ")
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, index int) string {
	return fmt.Sprintf("%s[%d]", path, index)
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
