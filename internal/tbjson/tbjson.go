// Package tbjson stands in for the engine's external tagged-binary-JSON
// (VelocyPack-equivalent) codec. The real wire format is an out-of-scope
// external collaborator (see SPEC_FULL.md §1); this package gives the
// recovery engine the minimal concrete surface it needs against that
// collaborator: a parsed attribute bag, encode/decode, and a numeric
// accessor tolerant of both numeric and string encodings of the same
// attribute.
package tbjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Object is a decoded TBJSON object: a named attribute bag.
type Object map[string]interface{}

// Parse decodes a TBJSON payload into an Object. Numbers are decoded via
// json.Number rather than float64 so that 64-bit ticks and ids survive the
// round trip without precision loss.
func Parse(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("tbjson: decode object: %w", err)
	}
	return Object(raw), nil
}

// Encode serializes v (normally an Object or a map[string]interface{}) to
// its TBJSON wire representation.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("tbjson: encode: %w", err)
	}
	return data, nil
}

// Get returns the raw attribute value and whether it was present.
func (o Object) Get(attr string) (interface{}, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o[attr]
	return v, ok
}

// GetObject returns a nested object attribute, e.g. the "data" payload of
// a DDL marker.
func (o Object) GetObject(attr string) (Object, bool) {
	v, ok := o.Get(attr)
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return Object(t), true
	case Object:
		return t, true
	default:
		return nil, false
	}
}

// GetString returns a string attribute.
func (o Object) GetString(attr string) (string, bool) {
	v, ok := o.Get(attr)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// NumericValue extracts an unsigned integer attribute, accepting either a
// numeric or a string representation (legacy encoding drift tolerance, per
// the marker codec's documented contract).
func NumericValue(obj Object, attr string) (uint64, error) {
	v, ok := obj.Get(attr)
	if !ok {
		return 0, fmt.Errorf("tbjson: missing attribute %q", attr)
	}

	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseUint(t.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("tbjson: attribute %q: %w", attr, err)
		}
		return n, nil
	case float64:
		return uint64(t), nil
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("tbjson: attribute %q: %w", attr, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("tbjson: attribute %q has unsupported type %T", attr, v)
	}
}
