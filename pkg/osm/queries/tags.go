package queries

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmnodes/pkg/core"
)

// TagsFromAny converts an untyped tag argument, typically decoded JSON, into a
// tag filter mapping. A nil value yields an empty mapping. Anything that is not
// a mapping of scalars fails with an invalid argument error.
func TagsFromAny(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			s, err := scalarString(val)
			if err != nil {
				return nil, core.Errorf(core.CodeInvalidArgument, "tag %q: %v", k, err)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, core.Errorf(core.CodeInvalidArgument, "tags must be a mapping, got %T", v).
			WithGuidance(`Pass tags as an object such as {"station": "subway"}`)
	}
}

// ParseTagsJSON decodes a JSON document into a tag filter mapping.
func ParseTagsJSON(data []byte) (map[string]string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, core.NewError(core.CodeInvalidArgument, "tags are not valid JSON").Wrap(err)
	}
	return TagsFromAny(v)
}

// ParseTagPairs parses "key=value" pairs into a tag filter mapping. A later
// pair overrides an earlier one with the same key.
func ParseTagPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, core.Errorf(core.CodeInvalidArgument, "tag %q is not of the form key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func scalarString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case json.Number:
		return s.String(), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	default:
		return "", fmt.Errorf("value must be a string, number or boolean, got %T", v)
	}
}
