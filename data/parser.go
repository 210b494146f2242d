package data

import (
	"encoding/json"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// ParseJSONOrYAML is used in the same way as json.Unmarshal, but if the data is YAML and not
// JSON, it will convert the YAML to JSON and then parse it as JSON. This means that only json
// struct tags matter, and that YAML anchors and merge keys are expanded before the target sees
// the data.
func ParseJSONOrYAML(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	jsonData, err := YAMLToJSON(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}

// ParseFile reads a JSON or YAML file into target.
func ParseFile(path string, target interface{}) error {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return err
	}
	if err := ParseJSONOrYAML(data, target); err != nil {
		return fmt.Errorf("error parsing %q: %w", path, err)
	}
	return nil
}

// YAMLToJSON converts a YAML document to the equivalent JSON.
func YAMLToJSON(data []byte) ([]byte, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	normalized, err := normalizeYAML(raw, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalizeYAML turns the generic YAML structure into one that encoding/json can marshal: every
// map must have string keys.
func normalizeYAML(value interface{}, path string) (interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for i, item := range v {
			item1, err := normalizeYAML(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item1)
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			item1, err := normalizeYAML(item, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = item1
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			var key string
			switch kv := k.(type) {
			case string:
				key = kv
			case int, int64, uint64, float64, bool:
				key = fmt.Sprint(kv)
			default:
				return nil, fmt.Errorf("YAML data at %q contained a map key of type %T; only scalar keys are allowed",
					path, k)
			}
			item1, err := normalizeYAML(item, path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = item1
		}
		return out, nil
	default:
		return v, nil
	}
}
