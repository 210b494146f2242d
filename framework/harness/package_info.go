// Package harness contains adapters for running tests against a service that was started outside
// of the test process.
package harness
