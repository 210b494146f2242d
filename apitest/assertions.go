package apitest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/launchdarkly/api-test-harness/apiclient"
	"github.com/launchdarkly/api-test-harness/formdata"
	"github.com/launchdarkly/api-test-harness/framework/helpers"
	"github.com/launchdarkly/api-test-harness/framework/jsonmatch"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
	"github.com/launchdarkly/api-test-harness/framework/opt"
	"github.com/launchdarkly/api-test-harness/transport"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
)

const maxBodyInDiagnostics = 500

type assertionDef struct {
	name  string
	arity int
	fn    ldtest.AssertionFunc
}

func assertionDefs() []assertionDef {
	var ret []assertionDef
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		withBody := method == http.MethodPost || method == http.MethodPut
		arity := helpers.IfElse(withBody, 3, 2)
		name := methodName(method)
		ret = append(ret,
			assertionDef{"check" + name, arity, successAssertion(method, withBody, jsonmatch.Equal)},
			assertionDef{"match" + name, arity, successAssertion(method, withBody, jsonmatch.Partial)},
			assertionDef{"check" + name + "Error", arity, failureAssertion(method, withBody)},
		)
	}
	return append(ret, assertionDef{"apiRejects", 3, apiRejects})
}

func registerAssertions(t *ldtest.T) {
	for _, a := range assertionDefs() {
		t.AddAssert(a.name, a.arity, a.fn)
	}
}

// ListAssertions describes the assertions that Setup registers, sorted by name.
func ListAssertions() []ldtest.AssertionInfo {
	defs := assertionDefs()
	ret := make([]ldtest.AssertionInfo, 0, len(defs))
	for _, a := range defs {
		ret = append(ret, ldtest.AssertionInfo{Name: a.name, Arity: a.arity})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

func methodName(method string) string {
	return method[:1] + strings.ToLower(method[1:])
}

// successAssertion implements checkX and matchX: the request must succeed, and its parsed
// response must satisfy the matcher built from the last argument.
func successAssertion(method string, withBody bool, newMatcher func(interface{}) m.Matcher) ldtest.AssertionFunc {
	return func(t *ldtest.T, call ldtest.AssertionCall) bool {
		t.Helper()
		tc, path, message, ok := beginAssertion(t, call, method)
		if !ok {
			return false
		}
		var options apiclient.RequestOptions
		if withBody {
			options.Body = bodyArg(call.Args[1])
		}
		expected := call.Args[len(call.Args)-1]

		value, err := perform(t, tc, method, path, options)
		if err != nil {
			t.Fail(message, call.Extra, "request failed: "+describeError(err))
			return false
		}
		if pass, desc := newMatcher(expected).Test(value); !pass {
			t.Fail(message, call.Extra, desc)
			return false
		}
		t.Pass(message, call.Extra)
		return true
	}
}

// failureAssertion implements checkXError: the request must fail with an error matching the
// classification pattern for the status code given as the last argument.
func failureAssertion(method string, withBody bool) ldtest.AssertionFunc {
	return func(t *ldtest.T, call ldtest.AssertionCall) bool {
		t.Helper()
		tc, path, message, ok := beginAssertion(t, call, method)
		if !ok {
			return false
		}
		var options apiclient.RequestOptions
		if withBody {
			options.Body = bodyArg(call.Args[1])
		}
		return expectRejection(t, tc, call, method, path, message, options)
	}
}

// apiRejects is the failure assertion for any method: its arguments are the path, the request
// options (whose Method defaults to GET), and the status code.
func apiRejects(t *ldtest.T, call ldtest.AssertionCall) bool {
	t.Helper()
	options, err := optionsArg(call.Args[1])
	if err != nil {
		method := rejectsMethod(declaredMethod(call.Args[1]))
		t.Fail(call.MessageOr(fmt.Sprintf("%s %v", method, call.Args[0])), call.Extra, err.Error())
		return false
	}
	method := rejectsMethod(options.Method)
	options.Method = method
	tc, path, message, ok := beginAssertion(t, call, method)
	if !ok {
		return false
	}
	return expectRejection(t, tc, call, method, path, message, options)
}

func rejectsMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}

// declaredMethod returns the method named by request options that could not be fully parsed.
func declaredMethod(v interface{}) string {
	switch o := v.(type) {
	case map[string]interface{}:
		s, _ := o["method"].(string)
		return s
	case apiclient.RequestOptions:
		return o.Method
	case *apiclient.RequestOptions:
		if o != nil {
			return o.Method
		}
	}
	return ""
}

func beginAssertion(t *ldtest.T, call ldtest.AssertionCall, method string) (*TestContext, string, string, bool) {
	t.Helper()
	path, isString := call.Args[0].(string)
	message := call.MessageOr(fmt.Sprintf("%s %v", method, call.Args[0]))
	if !isString {
		t.Fail(message, call.Extra, fmt.Sprintf("path must be a string, got %T", call.Args[0]))
		return nil, "", "", false
	}
	tc := ContextOf(t)
	if tc == nil {
		t.Fail(message, call.Extra, "no test context is attached to this test; apitest.Setup was not called")
		return nil, "", "", false
	}
	return tc, path, message, true
}

func expectRejection(
	t *ldtest.T,
	tc *TestContext,
	call ldtest.AssertionCall,
	method, path, message string,
	options apiclient.RequestOptions,
) bool {
	t.Helper()
	code, err := codeArg(call.Args[len(call.Args)-1])
	if err != nil {
		t.Fail(message, call.Extra, err.Error())
		return false
	}
	pattern, ok := tc.classification.Pattern(code)
	if !ok {
		t.Fail(message, call.Extra, fmt.Sprintf("no error classification is registered for status %d (known: %v)",
			code, tc.classification.Codes()))
		return false
	}
	value, err := perform(t, tc, method, path, options)
	if err == nil {
		t.Fail(message, call.Extra, fmt.Sprintf("expected the request to fail with status %d, but it succeeded with: %s",
			code, truncate(value.JSONString())))
		return false
	}
	if !pattern.MatchString(err.Error()) {
		t.Fail(message, call.Extra, fmt.Sprintf("expected an error matching /%s/ for status %d, got: %s",
			pattern, code, describeError(err)))
		return false
	}
	t.Pass(message, call.Extra)
	return true
}

func perform(
	t *ldtest.T,
	tc *TestContext,
	method, path string,
	options apiclient.RequestOptions,
) (ldvalue.Value, error) {
	client := tc.ClientFor(t)
	switch method {
	case http.MethodGet:
		return client.JSON(tc.ctx, path, options)
	case http.MethodDelete:
		return client.Delete(tc.ctx, path, options)
	default:
		return client.WithBody(tc.ctx, method, path, options)
	}
}

func describeError(err error) string {
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) != 0 {
		return fmt.Sprintf("%s\nresponse body: %s", err, truncate(string(httpErr.Body)))
	}
	var parseErr *apiclient.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Sprintf("%s\nresponse body: %s", err, truncate(string(parseErr.Body)))
	}
	return err.Error()
}

func truncate(s string) string {
	if len(s) <= maxBodyInDiagnostics {
		return s
	}
	return s[:maxBodyInDiagnostics] + "..."
}

// bodyArg converts an assertion argument into a request body. Values that are already a Body are
// used as-is, a *formdata.Form becomes a Multipart body, and anything else is a Literal.
func bodyArg(v interface{}) apiclient.Body {
	switch b := v.(type) {
	case nil:
		return nil
	case apiclient.Body:
		return b
	case *formdata.Form:
		return apiclient.Multipart{Payload: b}
	default:
		return apiclient.Literal{Value: v}
	}
}

func codeArg(v interface{}) (int, error) {
	switch c := v.(type) {
	case int:
		return c, nil
	case int64:
		return int(c), nil
	case float64:
		if c == math.Trunc(c) {
			return int(c), nil
		}
	case string:
		if n, err := strconv.Atoi(c); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("status code must be an integer, got %T (%v)", v, v)
}

// optionsArg accepts apiclient.RequestOptions, a pointer to one, nil, or a generic map such as
// one decoded from a suite file, with the keys method, headers, body, json, cache, and timeout.
func optionsArg(v interface{}) (apiclient.RequestOptions, error) {
	switch o := v.(type) {
	case nil:
		return apiclient.RequestOptions{}, nil
	case apiclient.RequestOptions:
		return o, nil
	case *apiclient.RequestOptions:
		if o == nil {
			return apiclient.RequestOptions{}, nil
		}
		return *o, nil
	case map[string]interface{}:
		return optionsFromMap(o)
	default:
		return apiclient.RequestOptions{}, fmt.Errorf("request options must be a map, got %T", v)
	}
}

func optionsFromMap(values map[string]interface{}) (apiclient.RequestOptions, error) {
	var ret apiclient.RequestOptions
	for key, value := range values {
		switch key {
		case "method":
			s, ok := value.(string)
			if !ok {
				return ret, fmt.Errorf("option %q must be a string", key)
			}
			ret.Method = s
		case "headers":
			headers, err := headersArg(value)
			if err != nil {
				return ret, err
			}
			ret.Headers = headers
		case "body":
			ret.Body = bodyArg(value)
		case "json", "cache":
			b, ok := value.(bool)
			if !ok {
				return ret, fmt.Errorf("option %q must be a boolean", key)
			}
			if key == "json" {
				ret.JSON = opt.Some(b)
			} else {
				ret.Cache = opt.Some(b)
			}
		case "timeout":
			s, ok := value.(string)
			d, err := time.ParseDuration(s)
			if !ok || err != nil {
				return ret, fmt.Errorf("option %q must be a duration such as \"5s\"", key)
			}
			ret.Timeout = opt.Some(d)
		default:
			return ret, fmt.Errorf("unknown request option %q", key)
		}
	}
	return ret, nil
}

func headersArg(v interface{}) (map[string]string, error) {
	switch h := v.(type) {
	case map[string]string:
		return h, nil
	case map[string]interface{}:
		ret := make(map[string]string, len(h))
		for k, value := range h {
			ret[k] = fmt.Sprint(value)
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("option \"headers\" must be a map, got %T", v)
	}
}
