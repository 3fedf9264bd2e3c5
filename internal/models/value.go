// internal/models/value.go
package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a decoded submission payload node.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// EmptyMap is the payload used when stored data is missing or unreadable.
func EmptyMap() Value {
	return Value{Kind: KindMap, Map: map[string]Value{}}
}

// ParsePayload decodes stored submission data. Data stored as a JSON string holding a
// JSON document is decoded twice. Anything that does not end up as an object yields EmptyMap.
func ParsePayload(raw []byte) Value {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return EmptyMap()
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return EmptyMap()
	}

	if s, ok := decoded.(string); ok {
		decoded = nil
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return EmptyMap()
		}
	}

	v := FromInterface(decoded)
	if v.Kind != KindMap {
		return EmptyMap()
	}
	return v
}

// FromInterface converts the output of encoding/json (or job variables) into a Value.
func FromInterface(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Value{Kind: KindNull}
	case string:
		return Value{Kind: KindString, Str: t}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case float64:
		return Value{Kind: KindNumber, Num: t}
	case float32:
		return Value{Kind: KindNumber, Num: float64(t)}
	case int:
		return Value{Kind: KindNumber, Num: float64(t)}
	case int64:
		return Value{Kind: KindNumber, Num: float64(t)}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{Kind: KindString, Str: t.String()}
		}
		return Value{Kind: KindNumber, Num: f}
	case []interface{}:
		list := make([]Value, len(t))
		for i, item := range t {
			list[i] = FromInterface(item)
		}
		return Value{Kind: KindList, List: list}
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromInterface(item)
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return Value{Kind: KindNull}
	}
}

// Lookup walks a dotted path through nested maps. Missing segments, traversal into
// a non-map and null leaves all report false.
func (v Value) Lookup(path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}

	current := v
	for _, segment := range strings.Split(path, ".") {
		if current.Kind != KindMap || segment == "" {
			return Value{}, false
		}
		next, ok := current.Map[segment]
		if !ok {
			return Value{}, false
		}
		current = next
	}

	if current.Kind == KindNull {
		return Value{}, false
	}
	return current, true
}

// String renders the value for substitution into message text.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return strings.Join(parts, ",")
	case KindMap:
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Interface converts back to plain Go values.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}
