package apitest

import (
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
)

// The functions in this file call the registered assertions through T.Assert. Each takes the
// assertion's positional arguments followed by an optional message and optional ldtest.Extra.

func CheckGet(t *ldtest.T, path string, expected interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkGet", withArgs(msgAndExtra, path, expected)...)
}

func MatchGet(t *ldtest.T, path string, pattern interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("matchGet", withArgs(msgAndExtra, path, pattern)...)
}

func CheckGetError(t *ldtest.T, path string, code int, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkGetError", withArgs(msgAndExtra, path, code)...)
}

func CheckPost(t *ldtest.T, path string, body, expected interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkPost", withArgs(msgAndExtra, path, body, expected)...)
}

func MatchPost(t *ldtest.T, path string, body, pattern interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("matchPost", withArgs(msgAndExtra, path, body, pattern)...)
}

func CheckPostError(t *ldtest.T, path string, body interface{}, code int, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkPostError", withArgs(msgAndExtra, path, body, code)...)
}

func CheckPut(t *ldtest.T, path string, body, expected interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkPut", withArgs(msgAndExtra, path, body, expected)...)
}

func MatchPut(t *ldtest.T, path string, body, pattern interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("matchPut", withArgs(msgAndExtra, path, body, pattern)...)
}

func CheckPutError(t *ldtest.T, path string, body interface{}, code int, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkPutError", withArgs(msgAndExtra, path, body, code)...)
}

func CheckDelete(t *ldtest.T, path string, expected interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkDelete", withArgs(msgAndExtra, path, expected)...)
}

func MatchDelete(t *ldtest.T, path string, pattern interface{}, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("matchDelete", withArgs(msgAndExtra, path, pattern)...)
}

func CheckDeleteError(t *ldtest.T, path string, code int, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("checkDeleteError", withArgs(msgAndExtra, path, code)...)
}

// APIRejects asserts that a request built from options fails with the given status. The method
// comes from options and defaults to GET.
func APIRejects(t *ldtest.T, path string, options interface{}, code int, msgAndExtra ...interface{}) bool {
	t.Helper()
	return t.Assert("apiRejects", withArgs(msgAndExtra, path, options, code)...)
}

func withArgs(msgAndExtra []interface{}, args ...interface{}) []interface{} {
	return append(args, msgAndExtra...)
}
