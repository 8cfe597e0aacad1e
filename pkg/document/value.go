package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindList
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
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNotObject is returned when a JSON document is expected to be an object but is not.
var ErrNotObject = errors.New("document: value is not a JSON object")

// Value is a JSON document tree. Objects keep their key insertion order so that a
// decoded record can be re-encoded in the shape it arrived in.
//
// A nil *Value behaves as JSON null for every read accessor.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	keys   []string
	fields map[string]*Value
	items  []*Value
}

// Null returns a JSON null.
func Null() *Value { return &Value{kind: KindNull} }

// String returns a JSON string value.
func String(s string) *Value { return &Value{kind: KindString, str: s} }

// Bool returns a JSON boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Number returns a JSON number value.
func Number(f float64) *Value {
	return &Value{kind: KindNumber, num: json.Number(formatFloat(f))}
}

// Object returns an empty JSON object.
func Object() *Value { return &Value{kind: KindObject, fields: map[string]*Value{}} }

// List returns a JSON array holding items.
func List(items ...*Value) *Value { return &Value{kind: KindList, items: items} }

// Kind reports the variant held by v.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) IsNull() bool   { return v.Kind() == KindNull }
func (v *Value) IsObject() bool { return v.Kind() == KindObject }
func (v *Value) IsList() bool   { return v.Kind() == KindList }
func (v *Value) IsString() bool { return v.Kind() == KindString }

// IsScalar reports whether v is a string, number or boolean.
func (v *Value) IsScalar() bool {
	switch v.Kind() {
	case KindString, KindNumber, KindBool:
		return true
	}
	return false
}

// Get returns the member named key, or nil when v is not an object or lacks the key.
func (v *Value) Get(key string) *Value {
	if v.Kind() != KindObject {
		return nil
	}
	return v.fields[key]
}

// Has reports whether the object v carries key, even when the member is null.
func (v *Value) Has(key string) bool {
	if v.Kind() != KindObject {
		return false
	}
	_, ok := v.fields[key]
	return ok
}

// Keys returns the object's keys in insertion order.
func (v *Value) Keys() []string {
	if v.Kind() != KindObject {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Set stores val under key, keeping the original position of an existing key.
func (v *Value) Set(key string, val *Value) {
	if v == nil || v.kind != KindObject {
		return
	}
	if val == nil {
		val = Null()
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

// Delete removes key from the object v.
func (v *Value) Delete(key string) {
	if v.Kind() != KindObject {
		return
	}
	if _, ok := v.fields[key]; !ok {
		return
	}
	delete(v.fields, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Items returns v as a list: null yields no items, a list yields its elements and any
// other value yields a single-element list.
func (v *Value) Items() []*Value {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindList:
		return v.items
	default:
		return []*Value{v}
	}
}

// Append adds items to the list v.
func (v *Value) Append(items ...*Value) {
	if v == nil || v.kind != KindList {
		return
	}
	v.items = append(v.items, items...)
}

// Len returns the number of members of an object or elements of a list.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindObject:
		return len(v.keys)
	case KindList:
		return len(v.items)
	}
	return 0
}

// Text returns the canonical text of a scalar. Integral numbers render without a decimal
// point and other numbers in their shortest form, so the same identifier or timestamp
// produces the same text regardless of how the producer serialized it. Objects, lists
// and null render as "".
func (v *Value) Text() string {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindNumber:
		return canonicalNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Str returns the canonical text of the member key.
func (v *Value) Str(key string) string {
	return v.Get(key).Text()
}

// TrimmedStr returns the whitespace-trimmed canonical text of the member key.
func (v *Value) TrimmedStr(key string) string {
	return strings.TrimSpace(v.Str(key))
}

// FirstStr returns the first non-empty trimmed text among keys.
func (v *Value) FirstStr(keys ...string) string {
	for _, k := range keys {
		if s := v.TrimmedStr(k); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the numeric value of v. Numeric strings are accepted.
func (v *Value) Float() (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		f, err := v.num.Float64()
		return f, err == nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	}
	return 0, false
}

// Truthy mirrors JSON truthiness: null, false, 0, "" and empty containers are false.
func (v *Value) Truthy() bool {
	switch v.Kind() {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		f, _ := v.num.Float64()
		return f != 0
	case KindString:
		return v.str != ""
	default:
		return v.Len() > 0
	}
}

// Native converts v to a value a graph store property can hold: strings, int64,
// float64, bool or nil. Objects and lists are stored as their compact JSON text.
func (v *Value) Native() any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindNumber:
		if i, err := v.num.Int64(); err == nil {
			return i
		}
		f, _ := v.num.Float64()
		return f
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	}
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	c := &Value{kind: v.kind, b: v.b, num: v.num, str: v.str}
	switch v.kind {
	case KindObject:
		c.keys = append([]string(nil), v.keys...)
		c.fields = make(map[string]*Value, len(v.fields))
		for k, f := range v.fields {
			c.fields[k] = f.Clone()
		}
	case KindList:
		c.items = make([]*Value, len(v.items))
		for i, it := range v.items {
			c.items[i] = it.Clone()
		}
	}
	return c
}

// Parse decodes a single JSON document.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("document: trailing data after JSON value")
	}
	return v, nil
}

// ParseObject decodes data and requires the result to be an object.
func ParseObject(data []byte) (*Value, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !v.IsObject() {
		return nil, ErrNotObject
	}
	return v, nil
}

// Decode reads the next JSON value from dec. The decoder must have UseNumber enabled.
func Decode(dec *json.Decoder) (*Value, error) {
	return decodeValue(dec)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return &Value{kind: KindNumber, num: t}, nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("document: unexpected object key %v", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, member)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			list := List()
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list.items = append(list.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("document: unexpected token %v", tok)
}

// MarshalJSON implements json.Marshaler, preserving object key order. HTML characters
// are not escaped.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent encodes v with two-space indentation.
func (v *Value) MarshalIndent() ([]byte, error) {
	compact, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (v *Value) writeJSON(buf *bytes.Buffer) error {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		return writeString(buf, v.str)
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return formatFloat(f)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
