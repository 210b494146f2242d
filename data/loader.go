package data

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// SourceInfo represents JSON or YAML data that was read from a file, after post-processing to expand
// constants and parameters. For a file without parameters there is one SourceInfo; for a
// parameterized file there is one per parameter set, each with its own version of Data.
type SourceInfo struct {
	FilePath string
	BaseName string
	Params   map[string]ldvalue.Value
	Data     []byte
}

func (s SourceInfo) ParseInto(target interface{}) error {
	if err := ParseJSONOrYAML(s.Data, target); err != nil {
		return fmt.Errorf("error parsing %q %s: %w", s.BaseName, s.ParamsString(), err)
	}
	return nil
}

// ParamsString describes the parameter set, such as (id=1,name="bolt"), or returns "" if there
// are no parameters. Names are sorted.
func (s SourceInfo) ParamsString() string {
	if len(s.Params) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.Params))
	for k := range s.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+s.Params[k].JSONString())
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// IsDataFile returns true if the file name has a .json, .yaml, or .yml extension.
func IsDataFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// LoadFile reads a data file and performs any constant and parameter substitutions. It can return
// more than one SourceInfo, because any file can be parameterized.
func LoadFile(fsys fs.FS, filePath string) ([]SourceInfo, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", filePath, err)
	}
	sources, err := expandSubstitutions(data)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", filePath, err)
	}
	baseName := path.Base(filePath)
	for i := range sources {
		sources[i].FilePath = filePath
		sources[i].BaseName = baseName
	}
	return sources, nil
}

// LoadDir reads every data file directly inside a directory, in name order.
func LoadDir(fsys fs.FS, dir string) ([]SourceInfo, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var ret []SourceInfo
	for _, entry := range entries {
		if entry.IsDir() || !IsDataFile(entry.Name()) {
			continue
		}
		sources, err := LoadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		ret = append(ret, sources...)
	}
	return ret, nil
}
