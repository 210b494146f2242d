// Package suite runs declarative test suites. A suite file is JSON or YAML; each test case names a
// registered assertion and supplies its arguments.
//
//	name: widgets
//	cases:
//	  - name: get a widget
//	    assert: checkGet
//	    path: /widgets/1
//	    expect: {id: 1, name: bolt}
//	groups:
//	  - name: errors
//	    cases:
//	      - {assert: checkPostError, path: /widgets, body: {}, code: 405}
//
// Suite files may use the constants and parameters described in the data package.
package suite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/launchdarkly/api-test-harness/apiclient"
	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/data"
	"github.com/launchdarkly/api-test-harness/formdata"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
)

// PatternKey marks an object in an expectation as a regular expression: {"$matches": "^b"}
// matches any string value that the expression matches. It is only meaningful for the match
// assertions.
const PatternKey = "$matches"

// Suite is a named tree of test cases.
type Suite struct {
	Name   string  `json:"name"`
	Cases  []Case  `json:"cases"`
	Groups []Group `json:"groups"`

	// RequireCapabilities skips the whole suite unless the service reports all of these.
	RequireCapabilities []string `json:"requireCapabilities"`

	Source data.SourceInfo `json:"-"`
}

// Group is a nested set of test cases, run as a subtest.
type Group struct {
	Name                string   `json:"name"`
	Cases               []Case   `json:"cases"`
	Groups              []Group  `json:"groups"`
	RequireCapabilities []string `json:"requireCapabilities"`
}

// Case is one assertion.
type Case struct {
	// Name defaults to the assertion's default message, such as "GET /widgets/1".
	Name string `json:"name"`

	// Assert is the name of a registered assertion, such as "checkGet".
	Assert string `json:"assert"`

	Path string `json:"path"`

	// Method is used only by apiRejects.
	Method string `json:"method"`

	// The request body is Body, BodyFile, or Multipart; at most one may be set.
	Body      json.RawMessage `json:"body"`
	BodyFile  *FileRef        `json:"bodyFile"`
	Multipart *Multipart      `json:"multipart"`

	// Headers and JSON are used only by apiRejects.
	Headers map[string]string `json:"headers"`
	JSON    *bool             `json:"json"`

	// Expect is the expected response for a success assertion.
	Expect json.RawMessage `json:"expect"`

	// Code is the expected status for a failure assertion.
	Code int `json:"code"`

	Message string                 `json:"message"`
	Extra   map[string]interface{} `json:"extra"`

	// Skip, if not empty, is the reason the case is skipped.
	Skip string `json:"skip"`
}

// FileRef names a file belonging to a sub-instance of the service under test.
type FileRef struct {
	Instance string `json:"instance"`
	Path     string `json:"path"`
}

// Multipart describes a multipart/form-data body.
type Multipart struct {
	Fields map[string]string `json:"fields"`
	Files  []MultipartFile   `json:"files"`
}

// MultipartFile is a file part: either inline Content, or a File belonging to a sub-instance.
type MultipartFile struct {
	Field       string   `json:"field"`
	FileName    string   `json:"fileName"`
	ContentType string   `json:"contentType"`
	Content     string   `json:"content"`
	File        *FileRef `json:"file"`
}

// Load reads one suite file, or every suite file in a directory. A parameterized file produces one
// suite per parameter set.
func Load(path string) ([]Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	var sources []data.SourceInfo
	if info.IsDir() {
		sources, err = data.LoadDir(os.DirFS(path), ".")
	} else {
		sources, err = data.LoadFile(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no suite files found in %s", path)
	}
	ret := make([]Suite, 0, len(sources))
	for _, source := range sources {
		s, err := Parse(source)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

// Parse decodes one suite. The suite name defaults to the file name plus any parameters.
func Parse(source data.SourceInfo) (Suite, error) {
	var s Suite
	if err := source.ParseInto(&s); err != nil {
		return Suite{}, err
	}
	s.Source = source
	if s.Name == "" {
		s.Name = strings.TrimSuffix(source.BaseName, filepath.Ext(source.BaseName))
	}
	if params := source.ParamsString(); params != "" {
		s.Name += " " + params
	}
	return s, nil
}

// RunAll runs each suite as a subtest of t.
func RunAll(t *ldtest.T, suites []Suite) {
	names := make([]string, 0, len(suites))
	for _, s := range suites {
		names = append(names, s.Name)
	}
	for i, name := range uniqueNames(names) {
		suites[i].asGroup().runAs(t, name)
	}
}

// Run runs the suite as a subtest of t. Setup must already have been called for the run.
func (s Suite) Run(t *ldtest.T) {
	s.asGroup().Run(t)
}

func (s Suite) asGroup() Group {
	return Group{
		Name:                s.Name,
		Cases:               s.Cases,
		Groups:              s.Groups,
		RequireCapabilities: s.RequireCapabilities,
	}
}

// Run runs the group as a subtest of t.
func (g Group) Run(t *ldtest.T) {
	g.runAs(t, g.Name)
}

// runAs runs the group under the given test name. Cases and child groups share one namespace, and
// a name that is already taken in it gets a numeric suffix so that every test ID is distinct.
func (g Group) runAs(t *ldtest.T, name string) {
	t.Run(name, func(t *ldtest.T) {
		for _, c := range g.RequireCapabilities {
			t.RequireCapability(c)
		}
		names := make([]string, 0, len(g.Cases)+len(g.Groups))
		for _, c := range g.Cases {
			names = append(names, c.displayName())
		}
		for _, child := range g.Groups {
			names = append(names, child.Name)
		}
		names = uniqueNames(names)
		for i, c := range g.Cases {
			c.runAs(t, names[i])
		}
		for i, child := range g.Groups {
			child.runAs(t, names[len(g.Cases)+i])
		}
	})
}

// Run runs the case as a subtest of t.
func (c Case) Run(t *ldtest.T) {
	c.runAs(t, c.displayName())
}

func (c Case) runAs(t *ldtest.T, name string) {
	t.Run(name, func(t *ldtest.T) {
		if c.Skip != "" {
			t.SkipWithReason(c.Skip)
		}
		tc := apitest.ContextOf(t)
		if tc == nil {
			t.Errorf("no test context is attached to this test; apitest.Setup was not called")
			t.FailNow()
		}
		args, err := c.Arguments(tc)
		if err != nil {
			t.Errorf("invalid test case: %s", err)
			t.FailNow()
		}
		t.Assert(c.Assert, args...)
	})
}

// displayName is the case's test name: its name, else its message, else the method and path.
func (c Case) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Message != "" {
		return c.Message
	}
	method := c.Method
	if method == "" {
		method = methodOf(c.Assert)
	}
	return strings.ToUpper(method) + " " + c.Path
}

// uniqueNames returns names with each repeated name given a " (2)", " (3)", ... suffix.
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	ret := make([]string, len(names))
	for i, name := range names {
		unique := name
		for n := 2; seen[unique]; n++ {
			unique = fmt.Sprintf("%s (%d)", name, n)
		}
		seen[unique] = true
		ret[i] = unique
	}
	return ret
}

// Arguments builds the T.Assert arguments for the case: the path, then the body (or, for
// apiRejects, the request options) if the assertion takes one, then the expected value or status,
// then the message and extra data.
func (c Case) Arguments(tc *apitest.TestContext) ([]interface{}, error) {
	if c.Assert == "" {
		return nil, errors.New("no assertion name")
	}
	if c.Path == "" {
		return nil, errors.New("no path")
	}
	body, err := c.body(tc)
	if err != nil {
		return nil, err
	}
	rejects := c.Assert == "apiRejects"
	if !rejects && (c.Method != "" || len(c.Headers) != 0 || c.JSON != nil) {
		return nil, errors.New("method, headers, and json can only be used with apiRejects")
	}

	args := []interface{}{c.Path}
	switch {
	case rejects:
		options := map[string]interface{}{}
		if c.Method != "" {
			options["method"] = c.Method
		}
		if body != nil {
			options["body"] = body
		}
		if len(c.Headers) != 0 {
			options["headers"] = c.Headers
		}
		if c.JSON != nil {
			options["json"] = *c.JSON
		}
		args = append(args, options)
	case takesBody(c.Assert):
		args = append(args, body)
	case body != nil:
		return nil, fmt.Errorf("%s does not send a request body", c.Assert)
	}

	if rejects || strings.HasSuffix(c.Assert, "Error") {
		if c.Code == 0 {
			return nil, errors.New("no expected status code")
		}
		args = append(args, c.Code)
	} else {
		expected, err := decodeExpectation(c.Expect, strings.HasPrefix(c.Assert, "match"))
		if err != nil {
			return nil, err
		}
		args = append(args, expected)
	}

	if c.Message != "" || c.Extra != nil {
		args = append(args, messageOrNil(c.Message))
	}
	if c.Extra != nil {
		args = append(args, ldtest.Extra(c.Extra))
	}
	return args, nil
}

func (c Case) body(tc *apitest.TestContext) (interface{}, error) {
	count := 0
	for _, set := range []bool{len(c.Body) != 0, c.BodyFile != nil, c.Multipart != nil} {
		if set {
			count++
		}
	}
	if count > 1 {
		return nil, errors.New("only one of body, bodyFile, and multipart can be set")
	}
	switch {
	case len(c.Body) != 0:
		var value interface{}
		if err := json.Unmarshal(c.Body, &value); err != nil {
			return nil, err
		}
		return value, nil
	case c.BodyFile != nil:
		return tc.FileBody(c.BodyFile.Instance, c.BodyFile.Path), nil
	case c.Multipart != nil:
		return c.Multipart.body(tc), nil
	default:
		return nil, nil
	}
}

func (m *Multipart) body(tc *apitest.TestContext) apiclient.Body {
	return apiclient.Deferred(func() (apiclient.Body, error) {
		form := formdata.New()
		for name, value := range m.Fields {
			form.AddField(name, value)
		}
		for _, f := range m.Files {
			if f.File != nil {
				path, err := tc.Path(f.File.Instance, f.File.Path)
				if err != nil {
					return nil, err
				}
				form.AddFileFromPath(f.Field, path, f.ContentType)
				continue
			}
			form.AddFile(f.Field, f.FileName, f.ContentType, []byte(f.Content))
		}
		return apiclient.Multipart{Payload: form}, nil
	})
}

func decodeExpectation(raw json.RawMessage, allowPatterns bool) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	if !allowPatterns {
		return value, nil
	}
	return compilePatterns(value)
}

func compilePatterns(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		if expr, ok := v[PatternKey]; ok && len(v) == 1 {
			s, isString := expr.(string)
			if !isString {
				return nil, fmt.Errorf("%s must be a string", PatternKey)
			}
			rx, err := regexp.Compile(s)
			if err != nil {
				return nil, err
			}
			return rx, nil
		}
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			compiled, err := compilePatterns(item)
			if err != nil {
				return nil, err
			}
			out[k] = compiled
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			compiled, err := compilePatterns(item)
			if err != nil {
				return nil, err
			}
			out = append(out, compiled)
		}
		return out, nil
	default:
		return v, nil
	}
}

func takesBody(assertion string) bool {
	return strings.Contains(assertion, "Post") || strings.Contains(assertion, "Put")
}

func methodOf(assertion string) string {
	for _, method := range []string{"Get", "Post", "Put", "Delete"} {
		if strings.Contains(assertion, method) {
			return method
		}
	}
	return "GET"
}

func messageOrNil(message string) interface{} {
	if message == "" {
		return nil
	}
	return message
}

// RequiredCapabilities returns every capability named by the suites or their groups, sorted and
// without duplicates.
func RequiredCapabilities(suites []Suite) []string {
	seen := make(map[string]bool)
	var walk func(names []string, groups []Group)
	walk = func(names []string, groups []Group) {
		for _, c := range names {
			seen[c] = true
		}
		for _, g := range groups {
			walk(g.RequireCapabilities, g.Groups)
		}
	}
	for _, s := range suites {
		walk(s.RequireCapabilities, s.Groups)
	}
	ret := make([]string, 0, len(seen))
	for c := range seen {
		ret = append(ret, c)
	}
	sort.Strings(ret)
	return ret
}
