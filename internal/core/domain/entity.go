package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is one key of an Entity. Value holds the raw JSON exactly as received.
type Field struct {
	Key   string
	Value json.RawMessage
}

// StringField builds a field holding a JSON string.
func StringField(key, value string) Field {
	raw, _ := json.Marshal(value)
	return Field{Key: key, Value: raw}
}

// Entity is one account submitted for processing. Fields other than "name"
// are not interpreted; they are carried through in their original order.
type Entity struct {
	fields []Field
}

// NewEntity builds an entity from fields. A repeated key keeps its first
// position and its last value.
func NewEntity(fields ...Field) Entity {
	var e Entity
	for _, f := range fields {
		e.set(f)
	}
	return e
}

func (e *Entity) set(f Field) {
	v := append(json.RawMessage(nil), f.Value...)
	for i := range e.fields {
		if e.fields[i].Key == f.Key {
			e.fields[i].Value = v
			return
		}
	}
	e.fields = append(e.fields, Field{Key: f.Key, Value: v})
}

// Name returns the display label, or "" when absent or not a string.
func (e Entity) Name() string {
	s, _ := e.String("name")
	return s
}

// String returns the value of key when it holds a JSON string.
func (e Entity) String(key string) (string, bool) {
	raw, ok := e.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Get returns a copy of the raw value of key.
func (e Entity) Get(key string) (json.RawMessage, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return append(json.RawMessage(nil), f.Value...), true
		}
	}
	return nil, false
}

// Keys returns field names in order.
func (e Entity) Keys() []string {
	keys := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Len returns the number of fields.
func (e Entity) Len() int {
	return len(e.fields)
}

func (e Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("entity must be a JSON object")
	}
	var out Entity
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.set(Field{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*e = out
	return nil
}
