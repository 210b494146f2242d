package jsonmatch

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	h "github.com/launchdarkly/api-test-harness/framework/helpers"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

type pattern interface {
	mismatches(path string, actual ldvalue.Value) []string
	String() string
}

type objectPattern map[string]pattern

type arrayPattern []pattern

type regexPattern struct{ rx *regexp.Regexp }

type literalPattern struct{ value ldvalue.Value }

func compilePattern(p interface{}) pattern {
	switch v := p.(type) {
	case pattern:
		return v
	case *regexp.Regexp:
		return regexPattern{v}
	case ldvalue.Value:
		return compileValue(v)
	case map[string]interface{}:
		ret := make(objectPattern, len(v))
		for k, item := range v {
			ret[k] = compilePattern(item)
		}
		return ret
	case []interface{}:
		ret := make(arrayPattern, 0, len(v))
		for _, item := range v {
			ret = append(ret, compilePattern(item))
		}
		return ret
	}
	rv := reflect.ValueOf(p)
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && !isByteSlice(rv) {
		ret := make(arrayPattern, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ret = append(ret, compilePattern(rv.Index(i).Interface()))
		}
		return ret
	}
	if rv.IsValid() && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		ret := make(objectPattern, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ret[iter.Key().String()] = compilePattern(iter.Value().Interface())
		}
		return ret
	}
	return compileValue(h.AsJSONValue(p))
}

func isByteSlice(rv reflect.Value) bool {
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
}

func compileValue(v ldvalue.Value) pattern {
	switch v.Type() {
	case ldvalue.ObjectType:
		ret := make(objectPattern, v.Count())
		for _, k := range v.Keys(nil) {
			ret[k] = compileValue(v.GetByKey(k))
		}
		return ret
	case ldvalue.ArrayType:
		ret := make(arrayPattern, 0, v.Count())
		for i := 0; i < v.Count(); i++ {
			ret = append(ret, compileValue(v.GetByIndex(i)))
		}
		return ret
	default:
		return literalPattern{v}
	}
}

func (p objectPattern) mismatches(path string, actual ldvalue.Value) []string {
	if actual.Type() != ldvalue.ObjectType {
		return []string{fmt.Sprintf("%s: expected an object matching %s, got %s",
			displayPath(path), p, h.CanonicalizedJSONString(actual))}
	}
	var ret []string
	for _, k := range p.sortedKeys() {
		av, ok := actual.TryGetByKey(k)
		if !ok {
			ret = append(ret, fmt.Sprintf("%s: missing, expected %s", joinKey(path, k), p[k]))
			continue
		}
		ret = append(ret, p[k].mismatches(joinKey(path, k), av)...)
	}
	return ret
}

func (p objectPattern) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p objectPattern) String() string {
	items := make([]string, 0, len(p))
	for _, k := range p.sortedKeys() {
		items = append(items, h.AsJSONString(k)+":"+p[k].String())
	}
	return "{" + strings.Join(items, ",") + "}"
}

func (p arrayPattern) mismatches(path string, actual ldvalue.Value) []string {
	if actual.Type() != ldvalue.ArrayType {
		return []string{fmt.Sprintf("%s: expected an array matching %s, got %s",
			displayPath(path), p, h.CanonicalizedJSONString(actual))}
	}
	if actual.Count() < len(p) {
		return []string{fmt.Sprintf("%s: expected at least %d element(s), got %d: %s",
			displayPath(path), len(p), actual.Count(), h.CanonicalizedJSONString(actual))}
	}
	var ret []string
	for i, item := range p {
		ret = append(ret, item.mismatches(joinIndex(path, i), actual.GetByIndex(i))...)
	}
	return ret
}

func (p arrayPattern) String() string {
	items := make([]string, 0, len(p))
	for _, item := range p {
		items = append(items, item.String())
	}
	return "[" + strings.Join(items, ",") + "]"
}

func (p regexPattern) mismatches(path string, actual ldvalue.Value) []string {
	if actual.IsString() && p.rx.MatchString(actual.StringValue()) {
		return nil
	}
	return []string{fmt.Sprintf("%s: expected a string matching %s, got %s",
		displayPath(path), p, h.CanonicalizedJSONString(actual))}
}

func (p regexPattern) String() string {
	return "/" + p.rx.String() + "/"
}

func (p literalPattern) mismatches(path string, actual ldvalue.Value) []string {
	if p.value.Equal(actual) {
		return nil
	}
	return []string{mismatch(path, p.value, actual)}
}

func (p literalPattern) String() string {
	return h.CanonicalizedJSONString(p.value)
}
