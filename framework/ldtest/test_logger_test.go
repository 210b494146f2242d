package ldtest

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/launchdarkly/api-test-harness/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finishedTest struct {
	id     TestID
	result TestResult
	output framework.CapturedOutput
}

type recordingTestLogger struct {
	started  []TestID
	errors   []error
	finished []finishedTest
	skipped  []TestID
	ended    bool
	endErr   error
}

func (r *recordingTestLogger) TestStarted(id TestID)         { r.started = append(r.started, id) }
func (r *recordingTestLogger) TestError(id TestID, err error) { r.errors = append(r.errors, err) }
func (r *recordingTestLogger) TestFinished(id TestID, result TestResult, output framework.CapturedOutput) {
	r.finished = append(r.finished, finishedTest{id, result, output})
}
func (r *recordingTestLogger) TestSkipped(id TestID, reason string) { r.skipped = append(r.skipped, id) }
func (r *recordingTestLogger) EndLog(Results) error {
	r.ended = true
	return r.endErr
}

func TestMultiTestLoggerForwardsToAll(t *testing.T) {
	l1, l2 := &recordingTestLogger{}, &recordingTestLogger{endErr: errors.New("disk full")}
	multi := MultiTestLogger{l1, l2}
	results := Run(TestConfiguration{TestLogger: multi}, func(ldt *T) {
		ldt.Run("a", func(ldt1 *T) {
			ldt1.Debug("hello")
			ldt1.Errorf("bad")
		})
		ldt.Run("b", func(ldt1 *T) { ldt1.Skip() })
	})
	for _, l := range []*recordingTestLogger{l1, l2} {
		assert.Equal(t, []TestID{{"a"}, {"b"}}, l.started)
		assert.Len(t, l.errors, 1)
		require.Len(t, l.finished, 1)
		assert.Equal(t, TestID{"a"}, l.finished[0].id)
		require.Len(t, l.finished[0].output, 1)
		assert.Equal(t, "hello", l.finished[0].output[0].Message)
		assert.Equal(t, []TestID{{"b"}}, l.skipped)
	}
	assert.EqualError(t, multi.EndLog(results), "disk full")
	assert.True(t, l1.ended)
	assert.True(t, l2.ended)
}

func TestJUnitTestLoggerWritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("widgets"))
	logger := NewJUnitTestLogger(path, "API tests", map[string]string{"tests.baseURL": "http://localhost"}, filters)

	results := Run(TestConfiguration{TestLogger: logger}, func(ldt *T) {
		ldt.Run("widgets", func(ldt1 *T) {
			ldt1.Run("get", func(*T) {})
			ldt1.Run("put", func(ldt2 *T) { ldt2.Fail("PUT /widgets/bolt", Extra{"case": 1}, "status 500") })
			ldt1.Run("later", func(ldt2 *T) { ldt2.SkipWithReason("not yet") })
		})
	})
	require.NoError(t, logger.EndLog(results))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc jUnitXMLDocument
	require.NoError(t, xml.Unmarshal(data, &doc))

	require.Len(t, doc.Suites, 1)
	suite := doc.Suites[0]
	assert.Equal(t, "API tests: widgets", suite.Name)
	assert.Equal(t, 4, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, "tests.baseURL", suite.Properties[0].Name)
	assert.Equal(t, "http://localhost", suite.Properties[0].Value)
	assert.Equal(t, `"widgets"`, suite.Properties[1].Value)

	byName := make(map[string]jUnitXMLTestCase)
	for _, tc := range suite.TestCases {
		byName[tc.Name] = tc
	}
	assert.Nil(t, byName["widgets/get"].Failure)
	require.NotNil(t, byName["widgets/put"].Failure)
	assert.Contains(t, byName["widgets/put"].Failure.Message, "PUT /widgets/bolt\nstatus 500\ncase=1")
	require.NotNil(t, byName["widgets/later"].SkipMessage)
	assert.Equal(t, "not yet", byName["widgets/later"].SkipMessage.Message)
}
