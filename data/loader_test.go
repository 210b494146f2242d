package data

import (
	"testing"
	"testing/fstest"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileWithoutSubstitutions(t *testing.T) {
	fsys := fstest.MapFS{"suites/a.yaml": {Data: []byte("name: a\n")}}
	sources, err := LoadFile(fsys, "suites/a.yaml")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "suites/a.yaml", sources[0].FilePath)
	assert.Equal(t, "a.yaml", sources[0].BaseName)
	assert.Equal(t, "", sources[0].ParamsString())
	assert.Equal(t, "name: a\n", string(sources[0].Data))
}

func TestLoadFileWithConstants(t *testing.T) {
	fsys := fstest.MapFS{"a.yaml": {Data: []byte(`
constants:
  id: 1
  name: bolt
path: /widgets/<id>
expect:
  id: <id>
  name: <name>
`)}}
	sources, err := LoadFile(fsys, "a.yaml")
	require.NoError(t, err)
	require.Len(t, sources, 1)

	var out struct {
		Path   string        `json:"path"`
		Expect ldvalue.Value `json:"expect"`
	}
	require.NoError(t, sources[0].ParseInto(&out))
	assert.Equal(t, "/widgets/1", out.Path)
	m.In(t).Assert(out.Expect.JSONString(), m.JSONStrEqual(`{"id":1,"name":"bolt"}`))
}

func TestLoadFileWithParameterList(t *testing.T) {
	fsys := fstest.MapFS{"a.json": {Data: []byte(`{
  "parameters": [{"id": 1, "name": "bolt"}, {"id": 2, "name": "nut"}],
  "path": "/widgets/<id>",
  "title": "widget <name>"
}`)}}
	sources, err := LoadFile(fsys, "a.json")
	require.NoError(t, err)
	require.Len(t, sources, 2)

	var titles []string
	for _, s := range sources {
		var out struct {
			Title string `json:"title"`
		}
		require.NoError(t, s.ParseInto(&out))
		titles = append(titles, out.Title)
	}
	assert.Equal(t, []string{"widget bolt", "widget nut"}, titles)
	assert.Equal(t, `(id=1,name="bolt")`, sources[0].ParamsString())
}

func TestLoadFileWithParameterPermutations(t *testing.T) {
	fsys := fstest.MapFS{"a.yaml": {Data: []byte(`
parameters:
  - [{method: PUT}, {method: POST}]
  - [{code: 404}, {code: 405}]
`)}}
	sources, err := LoadFile(fsys, "a.yaml")
	require.NoError(t, err)
	require.Len(t, sources, 4)

	var combos []string
	for _, s := range sources {
		combos = append(combos, s.ParamsString())
	}
	assert.ElementsMatch(t, []string{
		`(code=404,method="PUT")`, `(code=404,method="POST")`,
		`(code=405,method="PUT")`, `(code=405,method="POST")`,
	}, combos)
}

func TestLoadFileErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"bad-params.yaml": {Data: []byte("parameters: [1, 2]\n")},
		"empty-list.yaml": {Data: []byte("parameters: [[], [{a: 1}]]\n")},
	}
	_, err := LoadFile(fsys, "bad-params.yaml")
	assert.Error(t, err)
	_, err = LoadFile(fsys, "empty-list.yaml")
	assert.Error(t, err)
	_, err = LoadFile(fsys, "missing.yaml")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	fsys := fstest.MapFS{
		"suites/b.yml":       {Data: []byte("name: b\n")},
		"suites/a.json":      {Data: []byte(`{"name":"a"}`)},
		"suites/README.md":   {Data: []byte("# not data")},
		"suites/nested/c.ya": {Data: []byte("name: c\n")},
	}
	sources, err := LoadDir(fsys, "suites")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.json", sources[0].BaseName)
	assert.Equal(t, "b.yml", sources[1].BaseName)
}
