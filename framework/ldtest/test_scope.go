package ldtest

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/launchdarkly/api-test-harness/framework"
)

type environment struct {
	config     TestConfiguration
	results    Results
	assertions assertionRegistry
	started    bool
}

// T represents a test scope. It is very similar to Go's testing.T type.
type T struct {
	env         *environment
	id          TestID
	debugLogger framework.CapturingLogger
	context     interface{}
	failed      bool
	skipped     bool
	skipReason  string
	beforeEach  []func(*T)
	teardowns   []func(*T)
	cleanups    []func()
	errors      []error
	helperFns   []string
}

// TestConfiguration contains options for the entire test run.
type TestConfiguration struct {
	// Filter is an optional test selector based on test names.
	Filter Filter

	// TestLogger receives status information about each test.
	TestLogger TestLogger

	// Context is an optional value of any type defined by the application which can be accessed
	// from tests. It can be replaced for a scope and its descendants with T.SetContext.
	Context interface{}

	// Capabilities is a list of strings which are used by T.Capabilities and T.RequireCapability.
	Capabilities framework.Capabilities
}

// Run starts a top-level test scope.
func Run(
	config TestConfiguration,
	action func(*T),
) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	env := &environment{
		config:     config,
		assertions: make(assertionRegistry),
	}
	t := &T{env: env, context: config.Context}
	t.run(action)
	return env.results
}

func (t *T) run(action func(*T)) (result TestResult) {
	result.TestID = t.id
	defer func() {
		if !t.skipped {
			t.recordResult(&result)
		}
		for i := len(t.cleanups) - 1; i >= 0; i-- {
			t.cleanups[i]()
		}
	}()

	t.protect(func() {
		for _, hook := range t.beforeEach {
			hook(t)
		}
		action(t)
	})
	for i := len(t.teardowns) - 1; i >= 0; i-- {
		teardown := t.teardowns[i]
		t.protect(func() { teardown(t) })
	}
	return result
}

func (t *T) recordResult(result *TestResult) {
	result.Errors = t.errors
	if t.failed {
		t.env.results.Failures = append(t.env.results.Failures, *result)
	}
	t.env.results.Tests = append(t.env.results.Tests, *result)
}

// protect runs fn, converting a FailNow, Skip, or unexpected panic into the scope's state so that
// the caller can continue with teardown logic.
func (t *T) protect(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if t.skipped {
				return
			}
			t.failed = true
			var addError error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				t.errors = append(t.errors, addError)
				t.env.config.TestLogger.TestError(t.id, addError)
			}
		}
	}()
	fn()
}

// ID returns the full name of the current test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest in its own scope.
//
// This is equivalent to Go's testing.T.Run. Any hooks registered with BeforeEach on this scope
// or its ancestors run at the start of the subtest.
func (t *T) Run(name string, action func(*T)) {
	id := t.id.Plus(name)
	t.env.started = true

	t.env.config.TestLogger.TestStarted(id)
	if t.env.config.Filter != nil && !t.env.config.Filter.Match(id) {
		t.env.config.TestLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := &T{
		id:         id,
		env:        t.env,
		context:    t.context,
		beforeEach: append([]func(*T){}, t.beforeEach...),
	}
	t.debugLogger.AddChildLogger(&c1.debugLogger) // see comments on t.DebugLogger()
	result := c1.run(action)
	t.debugLogger.RemoveChildLogger(&c1.debugLogger)
	if c1.skipped {
		t.env.config.TestLogger.TestSkipped(id, c1.skipReason)
	} else {
		t.env.config.TestLogger.TestFinished(id, result, c1.debugLogger.Output())
	}
}

// BeforeEach registers a hook that runs at the start of every subtest created after this call,
// at any depth below this scope. Hooks run in registration order, before the subtest's action.
func (t *T) BeforeEach(hook func(*T)) {
	t.beforeEach = append(t.beforeEach, hook)
}

// Teardown registers a hook that runs after this scope's action and all of its subtests have
// finished. Unlike Defer, a teardown hook receives the scope and can report failures on it.
// Teardown hooks run in reverse order of registration, and run even if the scope failed.
func (t *T) Teardown(hook func(*T)) {
	t.teardowns = append(t.teardowns, hook)
}

// Errorf reports a test failure. It is equivalent to Go's testing.T.Errorf. It does not cause the test
// to terminate, but adds the failure message to the output and marks the test as failed.
//
// You will rarely use this method directly; it is part of this type's implementation of the base
// interfaces testing.T and assert.TestingT, allowing it to be called from assertion helpers.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	err := fmt.Errorf(format, args...)

	stacktrace := getStacktrace(false, t.helperFns)
	err = transformError(err, stacktrace)

	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// FailNow causes the test to immediately terminate and be marked as failed.
func (t *T) FailNow() {
	panic(t)
}

// Failed returns true if a failure has been reported for this scope.
func (t *T) Failed() bool {
	return t.failed
}

// Skip causes the test to immediately terminate and be marked as skipped.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

// SkipWithReason is equivalent to Skip but provides a message.
func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// Debug writes a message to the output for this test scope.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger instance for writing output for this test scope.
//
// The output that is captured for a test will be passed to TestLogger.TestFinished at the end of
// the test. The test runner can choose whether to display this or not based on command-line options.
//
// When a test has subtests (created with t.Run), the logger for a subtest starts out with a copy of
// any output that was already logged for the parent test. During the lifetime of the subtest, any
// further output that is sent to the parent test's logger will go to the child test's logger
// instead.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules a cleanup function which is guaranteed to be called when this test scope
// exits for any reason. Unlike a Go defer statement, Defer can be used from within helper
// functions.
func (t *T) Defer(cleanupFn func()) {
	t.cleanups = append(t.cleanups, cleanupFn)
}

// Context returns the application-defined context value for this scope: the value most recently
// passed to SetContext on this scope or an ancestor before it was created, or else the Context
// from the TestConfiguration.
func (t *T) Context() interface{} {
	return t.context
}

// SetContext replaces the application-defined context value for this scope and any subtests that
// it creates afterward.
func (t *T) SetContext(context interface{}) {
	t.context = context
}

// Capabilities returns the capabilities reported by the instance under test.
func (t *T) Capabilities() framework.Capabilities {
	return append(framework.Capabilities(nil), t.env.config.Capabilities...)
}

// RequireCapability causes the test to be skipped if the instance under test did not report the
// named capability.
func (t *T) RequireCapability(name string) {
	if !t.Capabilities().Has(name) {
		t.SkipWithReason(fmt.Sprintf("instance under test does not have capability %q", name))
	}
}

// Helper marks the function that calls it as a test helper that shouldn't appear in stacktraces.
// Equivalent to Go's testing.T.Helper().
func (t *T) Helper() {
	pc, _, _, ok := runtime.Caller(1) // 0 is Helper() itself, 1 is who called it
	if !ok {
		return
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return
	}
	t.helperFns = append(t.helperFns, f.Name())
}
