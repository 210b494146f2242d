package framework

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging contract used throughout the harness. Both *log.Logger and
// *logrus.Logger satisfy it.
type Logger interface {
	Println(args ...interface{})
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Println(args ...interface{})                {}
func (n nullLogger) Printf(message string, args ...interface{}) {}

// NullLogger returns a Logger that discards all output.
func NullLogger() Logger { return nullLogger{} }

// LogRequest writes the first line of a request log entry: "<METHOD> <url>".
func LogRequest(logger Logger, method, url string) {
	logger.Printf("%s %s", method, url)
}

// LogResponse writes the line that ends a request log entry when a response was received:
// "<METHOD> <url> -> <status>", with " (cached)" appended if the response came from the cache.
func LogResponse(logger Logger, method, url string, status int, fromCache bool) {
	if fromCache {
		logger.Printf("%s %s -> %d (cached)", method, url, status)
		return
	}
	logger.Printf("%s %s -> %d", method, url, status)
}

// LogRequestFailed writes the line that ends a request log entry when the request failed:
// "<METHOD> <url> failed: <error>".
func LogRequestFailed(logger Logger, method, url string, err error) {
	logger.Printf("%s %s failed: %s", method, url, err)
}

// CapturedMessage is one line of captured output.
type CapturedMessage struct {
	Time    time.Time
	Message string
}

// CapturedOutput is the output of a CapturingLogger, oldest first.
type CapturedOutput []CapturedMessage

// CapturingLogger records all output from a test scope, including the request log written by
// the request layer. See comments on ldtest.(*T).DebugLogger() for the rules of logging in
// parent/child scopes.
type CapturingLogger struct {
	output   []CapturedMessage
	children []*CapturingLogger
	lock     sync.Mutex
}

func (l *CapturingLogger) Println(args ...interface{}) {
	m := strings.TrimRight(fmt.Sprintln(args...), "\r\n") // Sprintln appends a newline
	l.append(CapturedMessage{Time: time.Now(), Message: m})
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.append(CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
}

// append stores m, or passes it to the active child loggers if there are any.
func (l *CapturingLogger) append(m CapturedMessage) {
	l.lock.Lock()
	if len(l.children) == 0 {
		l.output = append(l.output, m)
		l.lock.Unlock()
		return
	}
	children := append([]*CapturingLogger(nil), l.children...)
	l.lock.Unlock()
	for _, c := range children {
		c.append(m)
	}
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append(CapturedOutput(nil), l.output...)
}

// AddChildLogger makes child receive everything written to l until RemoveChildLogger is called.
// The child's output starts with a copy of what l has captured so far.
func (l *CapturingLogger) AddChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	l.children = append(l.children, child)
	inherited := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()

	child.lock.Lock()
	child.output = append(inherited, child.output...)
	child.lock.Unlock()
}

func (l *CapturingLogger) RemoveChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

// Messages returns the captured lines without timestamps.
func (output CapturedOutput) Messages() []string {
	ret := make([]string, 0, len(output))
	for _, m := range output {
		ret = append(ret, m.Message)
	}
	return ret
}

// ToString formats the output one line per message, each starting with prefix and a timestamp.
func (output CapturedOutput) ToString(prefix string) string {
	var b strings.Builder
	for i, m := range output {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s[%s] %s", prefix, m.Time.Format(timestampFormat), m.Message)
	}
	return b.String()
}

type prefixedLogger struct {
	base   Logger
	prefix string
}

// LoggerWithPrefix returns a Logger that prepends prefix to every message written to baseLogger.
func LoggerWithPrefix(baseLogger Logger, prefix string) Logger {
	return prefixedLogger{baseLogger, prefix}
}

func (p prefixedLogger) Println(args ...interface{}) {
	p.base.Println(append([]interface{}{p.prefix}, args...)...)
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf(p.prefix+message, args...)
}
