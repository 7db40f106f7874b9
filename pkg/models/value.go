package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a JSON value: null, bool, number, string, array or object.
// The zero Value is null. Numbers decoded from JSON keep their source text
// so integers beyond float64 precision survive unchanged.
type Value struct {
	kind Kind
	b    bool
	n    float64
	raw  string
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// NumberText wraps a JSON number literal, keeping its exact text.
func NumberText(text string) Value {
	f, _ := strconv.ParseFloat(text, 64)
	return Value{kind: KindNumber, n: f, raw: text}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object wraps a set of named values.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// FromAny converts decoded JSON (or equivalent Go literals) into a Value.
// Unsupported types are rendered through fmt and stored as strings.
func FromAny(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case bool:
		return Bool(val)
	case string:
		return String(val)
	case float64:
		return Number(val)
	case float32:
		return Number(float64(val))
	case int:
		return NumberText(strconv.Itoa(val))
	case int32:
		return NumberText(strconv.FormatInt(int64(val), 10))
	case int64:
		return NumberText(strconv.FormatInt(val, 10))
	case uint64:
		return NumberText(strconv.FormatUint(val, 10))
	case json.Number:
		return NumberText(val.String())
	case []interface{}:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, FromAny(item))
		}
		return Array(items...)
	case []string:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, String(item))
		}
		return Array(items...)
	case map[string]interface{}:
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			fields[k] = FromAny(item)
		}
		return Object(fields)
	case map[string]string:
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			fields[k] = String(item)
		}
		return Object(fields)
	default:
		return String(fmt.Sprintf("%v", val))
	}
}

// Kind returns the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Field returns the named member of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Keys returns the member names of an object value in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of elements of an array or members of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Truthy follows the usual dynamic-language rules: null, false, 0, "" and
// empty containers are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return len(v.obj) > 0
	default:
		return false
	}
}

// String renders scalars as plain text and containers as JSON. Booleans
// render as "True" and "False", the form entity keys have always used.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindNumber:
		if v.raw != "" {
			return v.raw
		}
		if v.n == float64(int64(v.n)) {
			return strconv.FormatInt(int64(v.n), 10)
		}
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Any converts v back into plain Go values (map[string]interface{}, []interface{}, ...).
func (v Value) Any() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, 0, len(v.arr))
		for _, item := range v.arr {
			out = append(out, item.Any())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Numbers are written back with
// their decoded text.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.wire())
}

// wire is Any with numbers as json.Number.
func (v Value) wire() interface{} {
	switch v.kind {
	case KindNumber:
		if v.raw != "" {
			return json.Number(v.raw)
		}
		return v.n
	case KindArray:
		out := make([]interface{}, 0, len(v.arr))
		for _, item := range v.arr {
			out = append(out, item.wire())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.wire()
		}
		return out
	default:
		return v.Any()
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
