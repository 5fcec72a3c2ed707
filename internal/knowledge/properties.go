package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind discriminates the variants of a property Value.
type ValueKind int

// Value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindFloat
	KindInt
	KindBool
	KindList
	KindMap
)

// Value is a structured property value: a tagged union over the scalar and
// nested shapes the graph store can hold. Store adapters are the only place
// that knows how to flatten it for a concrete backend.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	i    int64
	b    bool
	list []Value
	m    map[string]Value
}

// Properties is the open metadata mapping attached to a node.
type Properties map[string]Value

// Constructors.

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Float returns a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list Value.
func List(vals ...Value) Value { return Value{kind: KindList, list: vals} }

// Map returns a map Value.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// StringValue returns the string payload and whether the Value is a string.
func (v Value) StringValue() (string, bool) { return v.str, v.kind == KindString }

// FloatValue returns the float payload and whether the Value is a float.
func (v Value) FloatValue() (float64, bool) { return v.num, v.kind == KindFloat }

// IntValue returns the integer payload and whether the Value is an integer.
func (v Value) IntValue() (int64, bool) { return v.i, v.kind == KindInt }

// BoolValue returns the bool payload and whether the Value is a bool.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// ListValue returns the list payload and whether the Value is a list.
func (v Value) ListValue() ([]Value, bool) { return v.list, v.kind == KindList }

// MapValue returns the map payload and whether the Value is a map.
func (v Value) MapValue() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Interface converts the Value to plain Go types (string, float64, int64,
// bool, []interface{}, map[string]interface{}, nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindFloat:
		return v.num
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are decoded through
// json.Number so integral values keep their int kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts plain decoded JSON types into a Value.
func FromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case float64:
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", t.String())
		}
		return Float(f), nil
	case bool:
		return Bool(t), nil
	case []interface{}:
		list := make([]Value, len(t))
		for i, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return List(list...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported property value type %T", raw)
	}
}

// Keys returns the property keys in ascending order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the property map. Values are immutable
// from the caller's perspective, so a key-level copy is sufficient.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
