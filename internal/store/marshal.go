package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// normalize NFC-normalizes text at the storage boundary.
func normalize(s string) string {
	return norm.NFC.String(s)
}

// marshalJSON converts v to JSON TEXT for storage.
// Go's json.Marshal sorts map keys, so equal maps store identically.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // trace text is shown verbatim; < > & stay as-is
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return normalize(string(bytes.TrimRight(buf.Bytes(), "\n"))), nil
}

// marshalParams converts resolved scenario parameters to JSON TEXT.
func marshalParams(p map[string]string) (string, error) {
	if p == nil {
		p = map[string]string{}
	}
	s, err := marshalJSON(p)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return s, nil
}

// marshalState converts a final state snapshot to JSON TEXT. Durations are
// stored as nanoseconds.
func marshalState(state map[string]any) (string, error) {
	if state == nil {
		state = map[string]any{}
	}
	s, err := marshalJSON(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return s, nil
}

// unmarshalParams parses JSON TEXT from the database into parameters.
func unmarshalParams(s string) (map[string]string, error) {
	p := map[string]string{}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return p, nil
}

// unmarshalState parses JSON TEXT from the database into a state map.
// Numbers come back as json.Number so large integers survive.
func unmarshalState(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return m, nil
}
