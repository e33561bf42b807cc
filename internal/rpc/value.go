// ABOUTME: Protocol-neutral tagged value used between wire bytes and typed params
// ABOUTME: Preserves list vs map shape and map member insertion order

package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Kind tags the shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Value is the intermediate representation both protocol codecs decode into
// and encode from. A one-element list stays a list and a one-member map stays
// a map; shape never depends on element count.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	om   *orderedMap
}

type orderedMap struct {
	keys []string
	vals map[string]Value
}

func Null() Value               { return Value{kind: KindNull} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// NewMap returns an empty insertion-ordered map value.
func NewMap() Value {
	return Value{kind: KindMap, om: &orderedMap{vals: make(map[string]Value)}}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Bool() bool     { return v.b }
func (v Value) Int() int64     { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Text() string   { return v.s }

// Items returns the elements of a list value.
func (v Value) Items() []Value {
	return v.list
}

// Keys returns map member names in insertion order.
func (v Value) Keys() []string {
	if v.om == nil {
		return nil
	}
	return v.om.keys
}

// Get looks up a map member by name.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap || v.om == nil {
		return Value{}, false
	}
	val, ok := v.om.vals[key]
	return val, ok
}

// Set binds a map member, appending the key on first insertion so encoders
// can replay members in the order they were set. Returns the map for chaining.
func (v Value) Set(key string, val Value) Value {
	if v.kind != KindMap || v.om == nil {
		return v
	}
	if _, exists := v.om.vals[key]; !exists {
		v.om.keys = append(v.om.keys, key)
	}
	v.om.vals[key] = val
	return v
}

// Len returns element count for lists and member count for maps.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		if v.om == nil {
			return 0
		}
		return len(v.om.keys)
	}
	return 0
}

// Equal reports deep structural equality, including map member order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.Len() != o.Len() {
			return false
		}
		for i, key := range v.om.keys {
			if o.om.keys[i] != key {
				return false
			}
			ov, _ := o.Get(key)
			vv, _ := v.Get(key)
			if !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON writes the value with map members in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		data, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, key := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			member, _ := v.Get(key)
			if err := member.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON parses JSON into a Value, keeping object member order and
// distinguishing integers from floats by the presence of a fraction/exponent.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	parsed, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}

	// Reject trailing tokens so "1 2" is not silently accepted.
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}

	*v = parsed
	return nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string")
				}
				member, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, member)
			}
			if _, err := dec.Token(); err != nil { // closing }
				return Value{}, err
			}
			return m, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}
