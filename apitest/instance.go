package apitest

import (
	"context"
	"path/filepath"
)

// Lifecycle is the part of an instance under test that the harness starts before the first test
// and stops after the last one. Implementations that have nothing to do can embed NoLifecycle.
type Lifecycle interface {
	// Start is called once during Setup. If it returns an error, no tests are run.
	Start(ctx context.Context) error

	// Stop is called once after all tests have finished.
	Stop(ctx context.Context) error

	// CheckStopped is called after Stop, and should return an error if the instance is still
	// running.
	CheckStopped(ctx context.Context) error
}

// NoLifecycle is a Lifecycle whose hooks do nothing.
type NoLifecycle struct{}

func (NoLifecycle) Start(context.Context) error        { return nil }
func (NoLifecycle) Stop(context.Context) error         { return nil }
func (NoLifecycle) CheckStopped(context.Context) error { return nil }

// PathResolver maps path elements to a location on the local filesystem that belongs to one named
// part of the instance under test, such as a fixtures or uploads directory.
type PathResolver interface {
	RunPath(elem ...string) string
}

// DirResolver is a PathResolver rooted at a directory.
type DirResolver string

// RunPath joins elem onto the directory.
func (d DirResolver) RunPath(elem ...string) string {
	return filepath.Join(append([]string{string(d)}, elem...)...)
}

// Instance is the service under test.
type Instance interface {
	Lifecycle

	// BaseURL is the URL that request paths are resolved against.
	BaseURL() string

	// Instances returns the named sub-instances whose files tests may read. It may be nil.
	Instances() map[string]PathResolver
}
