// Package apitest binds the request client to the ldtest framework. Setup starts the instance under
// test, attaches a shared TestContext to every test, and registers a fixed set of named
// assertions (checkGet, matchPost, checkPutError, apiRejects, and so on) that tests invoke with
// T.Assert or with the typed functions in this package.
//
// Success assertions (checkX and matchX) require the request to succeed and compare the parsed
// response with an expected value, exactly or partially. Failure assertions (checkXError and
// apiRejects) require the request to fail with a transport error matching the Classification
// entry for a status code.
package apitest
