package data

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// A data file can declare "constants" and "parameters" at its top level. Every "<name>" in the
// file is replaced with the value of the constant or parameter of that name: a quoted "<name>" is
// replaced by the JSON value, so that it can be a number or an object, and an unquoted <name>
// inside a longer string is replaced by the plain string form.
//
// "parameters" is either a list of parameter sets, producing one result per set, or a list of
// lists of parameter sets, producing one result for every combination.
type substitutionSet map[string]ldvalue.Value

type substitutionHeader struct {
	Constants  substitutionSet   `json:"constants"`
	Parameters []json.RawMessage `json:"parameters"`
}

func expandSubstitutions(originalData []byte) ([]SourceInfo, error) {
	var header substitutionHeader
	if err := ParseJSONOrYAML(originalData, &header); err != nil {
		return nil, err
	}
	if len(header.Constants) == 0 && len(header.Parameters) == 0 {
		return []SourceInfo{{Data: originalData}}, nil
	}
	// YAML has to be converted first, so that substitution sees quoted JSON strings
	data := originalData
	if !json.Valid(data) {
		converted, err := YAMLToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}
	parameterSets, err := parameterPermutations(header.Parameters)
	if err != nil {
		return nil, err
	}
	if len(parameterSets) == 0 {
		return []SourceInfo{{Data: replaceVariables(data, header.Constants)}}, nil
	}
	ret := make([]SourceInfo, 0, len(parameterSets))
	for _, params := range parameterSets {
		// constants may refer to parameters and vice versa
		transformed := replaceVariables(data, header.Constants)
		transformed = replaceVariables(transformed, params)
		transformed = replaceVariables(transformed, header.Constants)
		ret = append(ret, SourceInfo{Data: transformed, Params: params})
	}
	return ret, nil
}

func parameterPermutations(paramsData []json.RawMessage) ([]substitutionSet, error) {
	if len(paramsData) == 0 {
		return nil, nil
	}
	allData, _ := json.Marshal(paramsData)
	switch ldvalue.Parse(paramsData[0]).Type() {
	case ldvalue.ObjectType:
		var list []substitutionSet
		if err := json.Unmarshal(allData, &list); err != nil {
			return nil, err
		}
		return list, nil
	case ldvalue.ArrayType:
	default:
		return nil, errors.New("unable to parse parameters - must be an array of objects or an array of arrays")
	}

	var lists [][]substitutionSet
	if err := json.Unmarshal(allData, &lists); err != nil {
		return nil, err
	}
	for _, list := range lists {
		if len(list) == 0 {
			return nil, errors.New("a parameter list must not be empty")
		}
	}
	indices := make([]int, len(lists))
	var result []substitutionSet
	for {
		merged := make(substitutionSet)
		for i, list := range lists {
			for k, v := range list[indices[i]] {
				merged[k] = v
			}
		}
		result = append(result, merged)

		pos := 0
		for pos < len(lists) {
			indices[pos]++
			if indices[pos] < len(lists[pos]) {
				break
			}
			indices[pos] = 0
			pos++
		}
		if pos == len(lists) {
			return result, nil
		}
	}
}

func replaceVariables(originalData []byte, substs substitutionSet) []byte {
	str := string(originalData)
	str = strings.ReplaceAll(str, `\u003c`, "<")
	str = strings.ReplaceAll(str, `\u003e`, ">")

	names := make([]string, 0, len(substs))
	for name := range substs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := substs[name]
		typedValueStr := value.JSONString()
		str = strings.ReplaceAll(str, `"<`+name+`>"`, typedValueStr)
		interpolated := typedValueStr
		if value.IsString() {
			interpolated = strings.Trim(typedValueStr, `"`)
		}
		str = strings.ReplaceAll(str, "<"+name+">", interpolated)
	}
	return []byte(str)
}
