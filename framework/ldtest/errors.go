package ldtest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

const maxStackDepth = 128

// ErrorWithStacktrace is a test error that remembers where in the test code it was raised.
type ErrorWithStacktrace struct {
	Message    string
	Stacktrace []StacktraceInfo
}

// StacktraceInfo is one frame of a stacktrace.
type StacktraceInfo struct {
	FileName string
	Package  string
	Function string
	Line     int
}

func (e ErrorWithStacktrace) Error() string { return e.Message }

// String describes the frame with the package path shortened relative to this module.
func (s StacktraceInfo) String() string {
	packageName := strings.TrimPrefix(s.Package, rootPackageName()+"/")
	return fmt.Sprintf("%s.%s (%s:%d)", packageName, s.Function, s.FileName, s.Line)
}

var testifyTracePrefix = regexp.MustCompile(`^(?s:\s*Error Trace:.*\sError:\s*)`)

// transformError attaches our own stacktrace to an error. testify's assert and require functions
// put their own trace at the start of the message; that part is removed.
func transformError(err error, stacktrace []StacktraceInfo) error {
	message := err.Error()
	if strings.Contains(message, "Error Trace:") {
		message = strings.TrimSpace(testifyTracePrefix.ReplaceAllLiteralString(message, ""))
	}
	if len(stacktrace) == 0 {
		return errors.New(message)
	}
	return ErrorWithStacktrace{Message: message, Stacktrace: stacktrace}
}

func currentPackageName() string {
	return reflect.TypeOf(T{}).PkgPath()
}

// rootPackageName is the module path, assuming it has the usual host/owner/repo form.
func rootPackageName() string {
	parts := strings.Split(currentPackageName(), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}

// getStacktrace returns the caller's stack, innermost first, stopping at Run. Frames in this
// package are left out unless includeLDTestCode is true; so are the functions named in helperFns,
// which must be fully qualified.
func getStacktrace(includeLDTestCode bool, helperFns []string) []StacktraceInfo {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs) // skip runtime.Callers and getStacktrace
	frames := runtime.CallersFrames(pcs[:n])

	ldtestPackage := currentPackageName()
	helpers := make(map[string]bool, len(helperFns))
	for _, fn := range helperFns {
		helpers[fn] = true
	}

	callers := []StacktraceInfo{}
	for {
		frame, more := frames.Next()
		if frame.Function == "" {
			break
		}
		packageName, functionName := parsePackageAndFunctionName(frame.Function)
		if packageName == ldtestPackage && functionName == "Run" {
			break
		}
		inLDTest := packageName == ldtestPackage
		if (includeLDTestCode || !inLDTest) && !helpers[frame.Function] {
			callers = append(callers, StacktraceInfo{
				FileName: frame.File[strings.LastIndex(frame.File, "/")+1:],
				Package:  packageName,
				Function: functionName,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return callers
}

// parsePackageAndFunctionName splits a name such as "example.com/a/b.(*T).run" into its package
// path and function name.
func parsePackageAndFunctionName(fullName string) (string, string) {
	lastSlash := strings.LastIndex(fullName, "/")
	firstDotAfterSlash := strings.Index(fullName[lastSlash+1:], ".")
	if firstDotAfterSlash < 0 {
		return fullName, ""
	}
	packageName := fullName[0 : lastSlash+firstDotAfterSlash+1]
	return packageName, fullName[len(packageName)+1:]
}
