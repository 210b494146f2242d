package ldtest

import (
	"fmt"
	"strings"
)

// Results is the outcome of a test run. Tests contains every scope that ran, in the order that
// the scopes finished; Failures contains the subset that failed.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID TestID
	Errors []error
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Assertions returns all AssertionErrors recorded anywhere in the run.
func (r Results) Assertions() []AssertionError {
	var ret []AssertionError
	for _, f := range r.Failures {
		for _, e := range f.Errors {
			if ae, ok := e.(AssertionError); ok {
				ret = append(ret, ae)
			}
		}
	}
	return ret
}

type TestID []string

func (t TestID) String() string {
	return strings.Join(t, "/")
}

func (t TestID) Plus(name string) TestID {
	return append(append(TestID(nil), t...), name)
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}
