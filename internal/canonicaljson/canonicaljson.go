// Package canonicaljson implements the hashing-contract encoding described in
// spec.md §6: "UTF-8 encoding of JSON with ... no insignificant whitespace"
// plus lexicographically sorted object keys and stable number formatting.
//
// This is deliberately a *stricter* canonicalization than the original source
// used (see DESIGN.md, Open Question 2): sorting keys makes persist(v) depend
// only on v's logical content, not on the producer's field-emission order.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v into its canonical byte form.
//
// v is first passed through encoding/json (so Go structs, maps, and slices are
// all accepted) and decoded back with json.Number preserved, so integer and
// float literals keep their original textual precision rather than being
// rounded through float64. The result is then re-encoded with object keys
// sorted and no insignificant whitespace.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes an already-serialized JSON document into canonical
// form: sorted object keys, compact separators, preserved number literals.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicaljson: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(val.String())
		return nil
	case string:
		return encodeString(buf, val)
	case []any:
		return encodeArray(buf, val)
	case map[string]any:
		return encodeObject(buf, val)
	default:
		return fmt.Errorf("canonicaljson: unsupported type %T", v)
	}
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeString reuses encoding/json's string escaping (HTML-escaping is
// irrelevant here; it still produces a byte-stable, valid JSON string).
func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("canonicaljson: encode string: %w", err)
	}
	buf.Write(b)
	return nil
}
