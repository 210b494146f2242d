package ldtest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/launchdarkly/api-test-harness/framework/opt"
)

// Extra is optional metadata attached to an assertion. It is passed through unchanged to
// AssertionError, and from there to the TestLogger.
type Extra map[string]interface{}

// AssertionCall describes a single invocation of a registered assertion.
type AssertionCall struct {
	// Name is the registered name of the assertion.
	Name string

	// Args contains exactly as many values as the assertion's declared arity.
	Args []interface{}

	// Message is the caller-supplied description of the assertion, if any.
	Message opt.Maybe[string]

	// Extra is the caller-supplied metadata, if any.
	Extra Extra
}

// MessageOr returns the caller-supplied message, or defaultMessage if there was none.
func (c AssertionCall) MessageOr(defaultMessage string) string {
	return c.Message.OrElse(defaultMessage)
}

// AssertionFunc is the implementation of a registered assertion. It should report its outcome
// with T.Pass or T.Fail, and return true if the assertion passed.
type AssertionFunc func(t *T, call AssertionCall) bool

// AssertionInfo describes a registered assertion.
type AssertionInfo struct {
	Name  string
	Arity int
}

type registeredAssertion struct {
	arity int
	fn    AssertionFunc
}

type assertionRegistry map[string]registeredAssertion

// AddAssert registers a named assertion for the whole test run. The assertion is called with
// exactly arity positional arguments, optionally followed by a message string and an Extra map.
//
// Assertions must be registered before any subtest has been started; after that point the
// registry is frozen, and AddAssert reports an error on the current scope.
func (t *T) AddAssert(name string, arity int, fn AssertionFunc) {
	t.Helper()
	switch {
	case t.env.started:
		t.Errorf("cannot register assertion %q after tests have started", name)
	case name == "" || fn == nil || arity < 0:
		t.Errorf("invalid assertion registration for %q", name)
	default:
		if _, exists := t.env.assertions[name]; exists {
			t.Errorf("assertion %q was already registered", name)
			return
		}
		t.env.assertions[name] = registeredAssertion{arity: arity, fn: fn}
	}
}

// Assertions returns information about all registered assertions, sorted by name.
func (t *T) Assertions() []AssertionInfo {
	ret := make([]AssertionInfo, 0, len(t.env.assertions))
	for name, a := range t.env.assertions {
		ret = append(ret, AssertionInfo{Name: name, Arity: a.arity})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Assert invokes a registered assertion by name. The arguments are the assertion's positional
// arguments, optionally followed by a message string and then an Extra map (a plain
// map[string]interface{} is also accepted). Any other argument count is reported as a failure
// of the current scope without calling the assertion.
func (t *T) Assert(name string, args ...interface{}) bool {
	t.Helper()
	a, ok := t.env.assertions[name]
	if !ok {
		t.Errorf("unknown assertion %q", name)
		return false
	}
	if len(args) < a.arity || len(args) > a.arity+2 {
		t.Errorf("assertion %q takes %d argument(s) plus an optional message and extra data, but got %d",
			name, a.arity, len(args))
		return false
	}
	call := AssertionCall{Name: name, Args: args[:a.arity]}
	rest := args[a.arity:]
	if len(rest) > 0 {
		switch m := rest[0].(type) {
		case string:
			call.Message = opt.Some(m)
		case nil:
		default:
			t.Errorf("assertion %q: message must be a string, got %T", name, rest[0])
			return false
		}
	}
	if len(rest) > 1 {
		switch e := rest[1].(type) {
		case Extra:
			call.Extra = e
		case map[string]interface{}:
			call.Extra = Extra(e)
		case nil:
		default:
			t.Errorf("assertion %q: extra data must be a map, got %T", name, rest[1])
			return false
		}
	}
	return a.fn(t, call)
}

// Pass records a successful assertion in the debug output for this scope.
func (t *T) Pass(message string, extra Extra) {
	if len(extra) == 0 {
		t.debugLogger.Printf("ok: %s", message)
		return
	}
	t.debugLogger.Printf("ok: %s %s", message, formatExtra(extra, " "))
}

// Fail records a failed assertion. Unlike FailNow, it does not terminate the test. The resulting
// error is an AssertionError carrying the message, detail, and extra data.
func (t *T) Fail(message string, extra Extra, detail string) {
	t.failed = true
	err := AssertionError{
		Message:    message,
		Detail:     detail,
		Extra:      extra,
		Stacktrace: getStacktrace(false, t.helperFns),
	}
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// AssertionError is the error recorded by T.Fail.
type AssertionError struct {
	Message    string
	Detail     string
	Extra      Extra
	Stacktrace []StacktraceInfo
}

func (e AssertionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(e.Detail)
	}
	if len(e.Extra) != 0 {
		b.WriteString("\n")
		b.WriteString(formatExtra(e.Extra, "\n"))
	}
	return b.String()
}

func formatExtra(extra Extra, separator string) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, extra[k]))
	}
	return strings.Join(parts, separator)
}
