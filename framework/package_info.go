// Package framework contains the low-level implementation of test harness infrastructure that is
// independent of any particular API under test. The base package contains shared types such as
// Logger; other components are in subpackages.
//
// The general model is:
//
// 1. An instance under test is a running network service with a base URL. It may optionally be
// started and stopped by the harness, and it may expose named directories (sub-instances) that
// tests can resolve file paths against.
//
// 2. Tests issue HTTP requests to the instance through a request normalization layer (package
// apiclient) which turns heterogeneous request descriptions into a parsed JSON result or a
// classified transport error.
//
// 3. There is a general notion of a test scope which is similar to Go's testing.T (package
// ldtest), allowing pieces of test logic to be associated with a test identifier and to
// accumulate success/failure results. Named assertions (package apitest) are registered on
// the root scope and invoked by name from any test.
package framework
