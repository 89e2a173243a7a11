// Package payload models caller-supplied job payloads as schema-on-read
// values. No shape is enforced beyond "a finite mapping at the top level".
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged union of JSON primitives, arrays and mappings.
// The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	array  []Value
	object Object
}

// Object is a string-keyed mapping of values
type Object map[string]Value

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, array: items} }
func FromObject(o Object) Value  { return Value{kind: KindObject, object: o} }

// Number builds a numeric value. Integers keep their exact textual form.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Int builds an integral numeric value
func Int(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

func (v Value) Kind() Kind { return v.kind }

// AsString returns the string variant
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsBool returns the bool variant
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsFloat returns the number variant as float64
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// AsInt returns the number variant when it is integral
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.num.Int64()
	return i, err == nil
}

// AsArray returns the array variant
func (v Value) AsArray() ([]Value, bool) {
	return v.array, v.kind == KindArray
}

// AsObject returns the mapping variant
func (v Value) AsObject() (Object, bool) {
	return v.object, v.kind == KindObject
}

// Interface converts the value into plain Go types (nil, bool, json.Number,
// string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.array))
		for i, item := range v.array {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		return v.object.Interface()
	default:
		return nil
	}
}

// Interface converts the object into map[string]any
func (o Object) Interface() map[string]any {
	out := make(map[string]any, len(o))
	for k, item := range o {
		out[k] = item.Interface()
	}
	return out
}

// Keys returns the object keys in sorted order
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromInterface converts decoded JSON-like Go values into a Value
func FromInterface(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		obj, err := ObjectFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return FromObject(obj), nil
	default:
		return Value{}, fmt.Errorf("unsupported payload type %T", in)
	}
}

// ObjectFromMap converts a decoded mapping into an Object
func ObjectFromMap(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, item := range m {
		v, err := FromInterface(item)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.array == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.array)
	case KindObject:
		if v.object == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]Value(v.object))
	default:
		return nil, fmt.Errorf("unknown payload kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers keep their textual
// representation so integers round-trip exactly.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	decoded, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
