package apitest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/launchdarkly/api-test-harness/apiclient"
	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
	"github.com/launchdarkly/api-test-harness/widgets"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetsRun struct {
	server  *widgets.Server
	tc      *apitest.TestContext
	results ldtest.Results
}

func runAgainstWidgets(t *testing.T, config apitest.Config, action func(*ldtest.T, *apitest.TestContext)) widgetsRun {
	server := widgets.NewServer("127.0.0.1:0", t.TempDir(), nil)
	config.Instance = server
	var run widgetsRun
	run.server = server
	run.results = ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
		run.tc = apitest.Setup(ldt, config)
		action(ldt, run.tc)
	})
	return run
}

func singleAssertionError(t *testing.T, results ldtest.Results) ldtest.AssertionError {
	errs := results.Assertions()
	require.Len(t, errs, 1)
	return errs[0]
}

func TestCheckGetExactMatchPasses(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("get", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.CheckGet(ldt1, "/widgets/1", map[string]interface{}{"id": 1, "name": "bolt"}))
		})
	})
	assert.True(t, run.results.OK())
}

func TestCheckGetReportsDifferingField(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("get", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.CheckGet(ldt1, "/widgets/1", map[string]interface{}{"id": 1, "name": "nut"}))
		})
	})
	ae := singleAssertionError(t, run.results)
	assert.Equal(t, "GET /widgets/1", ae.Message)
	assert.Contains(t, ae.Detail, `name: expected "nut", got "bolt"`)
}

func TestMatchGetIgnoresExtraProperties(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, tc *apitest.TestContext) {
		ldt.Run("match", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.MatchGet(ldt1, "/widgets/1", map[string]interface{}{"name": "bolt"}))
			assert.True(t, apitest.MatchGet(ldt1, "/widgets", []interface{}{map[string]interface{}{"id": 1}}))
			assert.True(t, apitest.MatchGet(ldt1, "/widgets/2",
				map[string]interface{}{"name": regexp.MustCompile("^n")}))
		})
		ldt.Run("mismatch", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.MatchGet(ldt1, "/widgets/2", map[string]interface{}{"name": "bolt"}))
		})
	})
	require.Len(t, run.results.Failures, 1)
	assert.Equal(t, ldtest.TestID{"mismatch"}, run.results.Failures[0].TestID)
}

func TestSuccessAssertionReportsTransportFailure(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("get", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.CheckGet(ldt1, "/widgets/99", map[string]interface{}{"id": 99}))
		})
	})
	ae := singleAssertionError(t, run.results)
	assert.Contains(t, ae.Detail, "request failed: Response code 404")
	assert.Contains(t, ae.Detail, "widget 99 not found")
}

func TestFailureAssertions(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("passing", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.CheckGetError(ldt1, "/widgets/99", 404))
			assert.True(t, apitest.CheckPostError(ldt1, "/widgets", map[string]interface{}{}, 405))
			assert.True(t, apitest.CheckPutError(ldt1, "/widgets/1", "{not json", 400))
			assert.True(t, apitest.CheckDeleteError(ldt1, "/widgets/99", 404))
		})
		ldt.Run("request succeeds", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.CheckPostError(ldt1, "/widgets/new", map[string]interface{}{"name": "gear"}, 405))
		})
		ldt.Run("wrong status", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.CheckGetError(ldt1, "/widgets/99", 400))
		})
		ldt.Run("unclassified status", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.CheckGetError(ldt1, "/widgets/99", 418))
		})
	})
	errs := run.results.Assertions()
	require.Len(t, errs, 3)
	assert.Equal(t, "POST /widgets/new", errs[0].Message)
	assert.Contains(t, errs[0].Detail, "expected the request to fail with status 405, but it succeeded")
	assert.Contains(t, errs[1].Detail, "expected an error matching /Response code 400\\b/ for status 400")
	assert.Contains(t, errs[1].Detail, "Response code 404")
	assert.Contains(t, errs[2].Detail, "no error classification is registered for status 418")
}

func TestAPIRejects(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("rejects", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.APIRejects(ldt1, "/widgets/99", nil, 404))
			assert.True(t, apitest.APIRejects(ldt1, "/widgets", apiclient.RequestOptions{Method: "DELETE"}, 405))
			assert.True(t, ldt1.Assert("apiRejects", "/widgets/new",
				map[string]interface{}{"method": "post", "body": "{", "json": false}, 400))
		})
		ldt.Run("accepted", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.APIRejects(ldt1, "/widgets/1", nil, 404))
		})
		ldt.Run("bad options", func(ldt1 *ldtest.T) {
			assert.False(t, ldt1.Assert("apiRejects", "/widgets/1", map[string]interface{}{"color": "red"}, 404))
		})
		ldt.Run("bad options with method", func(ldt1 *ldtest.T) {
			assert.False(t, ldt1.Assert("apiRejects", "/widgets/1",
				map[string]interface{}{"method": "delete", "json": "yes"}, 404))
		})
	})
	errs := run.results.Assertions()
	require.Len(t, errs, 3)
	assert.Equal(t, "GET /widgets/1", errs[0].Message)
	assert.Equal(t, "GET /widgets/1", errs[1].Message)
	assert.Contains(t, errs[1].Detail, `unknown request option "color"`)
	assert.Equal(t, "DELETE /widgets/1", errs[2].Message)
	assert.Contains(t, errs[2].Detail, `option "json" must be a boolean`)
}

func TestBodyAssertionsModifyService(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("crud", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.CheckPost(ldt1, "/widgets/new",
				map[string]interface{}{"name": "gear", "tags": []string{"metal"}},
				map[string]interface{}{"id": 3, "name": "gear", "tags": []interface{}{"metal"}}))
			assert.True(t, apitest.MatchPut(ldt1, "/widgets/3", map[string]interface{}{"name": "cog"},
				map[string]interface{}{"name": "cog"}))
			assert.True(t, apitest.CheckGet(ldt1, "/widgets/3", map[string]interface{}{"id": 3, "name": "cog"}))
			assert.True(t, apitest.CheckDelete(ldt1, "/widgets/3", map[string]interface{}{"deleted": 3, "name": "cog"}))
			assert.True(t, apitest.CheckGetError(ldt1, "/widgets/3", 404))
			assert.True(t, apitest.MatchDelete(ldt1, "/widgets/2", map[string]interface{}{"deleted": 2}))
			assert.True(t, apitest.CheckPut(ldt1, "/widgets/1", map[string]interface{}{"name": "screw"},
				map[string]interface{}{"id": 1, "name": "screw"}))
			assert.True(t, apitest.MatchPost(ldt1, "/widgets/new", map[string]interface{}{"name": "washer"},
				map[string]interface{}{"id": 4}))
		})
	})
	assert.True(t, run.results.OK(), "%+v", run.results.Failures)
}

func TestCustomMessageAndExtraAreForwarded(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("get", func(ldt1 *ldtest.T) {
			apitest.CheckGet(ldt1, "/widgets/2", map[string]interface{}{}, "widget two is empty",
				ldtest.Extra{"ticket": "W-2"})
		})
	})
	ae := singleAssertionError(t, run.results)
	assert.Equal(t, "widget two is empty", ae.Message)
	assert.Equal(t, ldtest.Extra{"ticket": "W-2"}, ae.Extra)
}

func TestAssertionArgumentErrors(t *testing.T) {
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("arity", func(ldt1 *ldtest.T) {
			assert.False(t, ldt1.Assert("checkGet", "/widgets/1"))
		})
		ldt.Run("path type", func(ldt1 *ldtest.T) {
			assert.False(t, ldt1.Assert("checkGet", 1, nil))
		})
		ldt.Run("code type", func(ldt1 *ldtest.T) {
			assert.False(t, ldt1.Assert("checkGetError", "/widgets/99", "not-a-number"))
		})
		ldt.Run("numeric code from decoded document", func(ldt1 *ldtest.T) {
			assert.True(t, ldt1.Assert("checkGetError", "/widgets/99", float64(404)))
			assert.True(t, ldt1.Assert("checkGetError", "/widgets/99", "404"))
		})
	})
	require.Len(t, run.results.Failures, 3)
	assert.Len(t, run.results.Assertions(), 2)
}

func TestLifecycleStates(t *testing.T) {
	var statesInTests []apitest.State
	var stateAfterSetup apitest.State
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, tc *apitest.TestContext) {
		stateAfterSetup = tc.State()
		for _, name := range []string{"a", "b"} {
			ldt.Run(name, func(ldt1 *ldtest.T) {
				assert.Same(t, tc, apitest.ContextOf(ldt1))
				statesInTests = append(statesInTests, tc.State())
				ldt1.Run("nested", func(ldt2 *ldtest.T) {
					assert.Same(t, tc, apitest.ContextOf(ldt2))
				})
			})
		}
	})
	require.True(t, run.results.OK())
	assert.Equal(t, apitest.Started, stateAfterSetup)
	assert.Equal(t, []apitest.State{apitest.Running, apitest.Running}, statesInTests)
	assert.Equal(t, apitest.Stopped, run.tc.State())

	<-run.server.Done()
	assert.NoError(t, run.server.CheckStopped(context.Background()))
}

type fakeInstance struct {
	baseURL     string
	startErr    error
	stopErr     error
	stoppedErr  error
	calls       []string
	subInstance map[string]apitest.PathResolver
}

func (f *fakeInstance) Start(context.Context) error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeInstance) Stop(context.Context) error {
	f.calls = append(f.calls, "stop")
	return f.stopErr
}

func (f *fakeInstance) CheckStopped(context.Context) error {
	f.calls = append(f.calls, "checkStopped")
	return f.stoppedErr
}

func (f *fakeInstance) BaseURL() string                            { return f.baseURL }
func (f *fakeInstance) Instances() map[string]apitest.PathResolver { return f.subInstance }

func TestStartFailureSkipsTests(t *testing.T) {
	instance := &fakeInstance{baseURL: "http://localhost:1", startErr: errors.New("no service")}
	ran := false
	results := ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
		apitest.Setup(ldt, apitest.Config{Instance: instance})
		ldt.Run("a", func(*ldtest.T) { ran = true })
	})
	assert.False(t, ran)
	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "failed to start instance under test: no service")
	assert.Equal(t, []string{"start"}, instance.calls)
}

func TestStopAndCheckStoppedAreCalledOnce(t *testing.T) {
	instance := &fakeInstance{baseURL: "http://localhost:1"}
	results := ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
		apitest.Setup(ldt, apitest.Config{Instance: instance})
		ldt.Run("a", func(*ldtest.T) {})
		ldt.Run("b", func(*ldtest.T) {})
	})
	assert.True(t, results.OK())
	assert.Equal(t, []string{"start", "stop", "checkStopped"}, instance.calls)
}

func TestStopFailuresAreReported(t *testing.T) {
	instance := &fakeInstance{baseURL: "http://localhost:1", stoppedErr: errors.New("still there")}
	results := ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
		apitest.Setup(ldt, apitest.Config{Instance: instance})
	})
	require.Len(t, results.Failures, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "instance under test did not stop: still there")
}

func TestNoLifecycleInstance(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(http.StatusOK, http.Header{"Content-Type": {"application/json"}},
		[]byte(`{"ok":true}`))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		results := ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
			tc := apitest.Setup(ldt, apitest.Config{Instance: &noLifecycleInstance{baseURL: server.URL}})
			ldt.Run("a", func(ldt1 *ldtest.T) {
				assert.True(t, apitest.CheckGet(ldt1, "/anything", map[string]interface{}{"ok": true}))
			})
			assert.Equal(t, server.URL+"/x", tc.URL("x"))
		})
		assert.True(t, results.OK())
	})
}

type noLifecycleInstance struct {
	apitest.NoLifecycle
	baseURL string
}

func (n *noLifecycleInstance) BaseURL() string                            { return n.baseURL }
func (n *noLifecycleInstance) Instances() map[string]apitest.PathResolver { return nil }

func TestFileBodyAndFileUpload(t *testing.T) {
	var uploaded []byte
	run := runAgainstWidgets(t, apitest.Config{}, func(ldt *ldtest.T, tc *apitest.TestContext) {
		dir, err := tc.Path(widgets.UploadsInstance)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "new.json"), []byte(`{"name":"gear"}`), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "manual.txt"), []byte("read me"), 0o600))

		ldt.Run("file body", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.MatchPost(ldt1, "/widgets/new", tc.FileBody(widgets.UploadsInstance, "new.json"),
				map[string]interface{}{"name": "gear"}))
		})
		ldt.Run("file upload", func(ldt1 *ldtest.T) {
			body := tc.FileUpload("file", "text/plain", widgets.UploadsInstance, "manual.txt")
			assert.True(t, apitest.MatchPost(ldt1, "/widgets/1/attachments", body,
				map[string]interface{}{"attachments": []interface{}{"manual.txt"}}))
			uploaded, err = tc.ReadFile(widgets.UploadsInstance, "1", "manual.txt")
			assert.NoError(t, err)
		})
		ldt.Run("missing sub-instance", func(ldt1 *ldtest.T) {
			assert.False(t, apitest.MatchPost(ldt1, "/widgets/new", tc.FileBody("fixtures", "x.json"),
				map[string]interface{}{}))
		})
	})
	require.Len(t, run.results.Failures, 1)
	assert.Contains(t, run.results.Assertions()[0].Detail, `no sub-instance named "fixtures"`)
	assert.Equal(t, "read me", string(uploaded))
}

func TestSharedCookieJar(t *testing.T) {
	config := apitest.Config{
		Classification: apitest.DefaultClassification().With(401, apitest.StatusPattern(401)),
	}
	var cookies string
	run := runAgainstWidgets(t, config, func(ldt *ldtest.T, tc *apitest.TestContext) {
		ldt.Run("no session", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.CheckGetError(ldt1, "/whoami", 401))
		})
		ldt.Run("start session", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.MatchGet(ldt1, "/session",
				map[string]interface{}{"session": regexp.MustCompile(".+")}))
		})
		ldt.Run("session is sent", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.MatchGet(ldt1, "/whoami",
				map[string]interface{}{"session": regexp.MustCompile(".+")}))
			var err error
			cookies, err = tc.CookieString("/whoami")
			assert.NoError(t, err)
		})
	})
	assert.True(t, run.results.OK(), "%+v", run.results.Failures)
	assert.Regexp(t, "^"+widgets.SessionCookieName+"=.+", cookies)
}

func TestListAssertions(t *testing.T) {
	infos := apitest.ListAssertions()
	arities := make(map[string]int)
	for _, info := range infos {
		arities[info.Name] = info.Arity
	}
	assert.Equal(t, map[string]int{
		"apiRejects":       3,
		"checkDelete":      2,
		"checkDeleteError": 2,
		"checkGet":         2,
		"checkGetError":    2,
		"checkPost":        3,
		"checkPostError":   3,
		"checkPut":         3,
		"checkPutError":    3,
		"matchDelete":      2,
		"matchGet":         2,
		"matchPost":        3,
		"matchPut":         3,
	}, arities)
	assert.Equal(t, "apiRejects", infos[0].Name)

	ldtest.Run(ldtest.TestConfiguration{}, func(ldt *ldtest.T) {
		apitest.Setup(ldt, apitest.Config{Instance: &noLifecycleInstance{baseURL: "http://localhost:1"}})
		assert.Equal(t, infos, ldt.Assertions())
	})
}

func TestCacheActivityIsLoggedWithPrefix(t *testing.T) {
	var logger framework.CapturingLogger
	run := runAgainstWidgets(t, apitest.Config{Logger: &logger}, func(ldt *ldtest.T, _ *apitest.TestContext) {
		ldt.Run("twice", func(ldt1 *ldtest.T) {
			assert.True(t, apitest.CheckGet(ldt1, "/widgets/1", map[string]interface{}{"id": 1, "name": "bolt"}))
			assert.True(t, apitest.CheckGet(ldt1, "/widgets/1", map[string]interface{}{"id": 1, "name": "bolt"}))
		})
	})
	require.True(t, run.results.OK(), "%+v", run.results.Failures)

	var cacheLines []string
	for _, m := range logger.Output().Messages() {
		if strings.HasPrefix(m, "[cache] ") {
			cacheLines = append(cacheLines, m)
		}
	}
	url := run.server.BaseURL() + "/widgets/1"
	assert.Equal(t, []string{
		"[cache] GET " + url + ": cached response with validators",
		"[cache] GET " + url + ": not modified, using cached response",
	}, cacheLines)
}
