package fsdb

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the content of a record: a string-keyed mapping whose values
// are nested mappings, slices, strings, numbers, booleans or nil.
type Document map[string]any

// Codec serializes documents to and from record file content.
type Codec interface {
	Marshal(doc Document) ([]byte, error)
	// Unmarshal returns an error wrapping ErrParse on malformed input.
	Unmarshal(data []byte) (Document, error)
}

// JSONCodec stores documents as compact JSON. Numbers decode as float64.
type JSONCodec struct{}

// Marshal implements [Codec]. A nil document is written as "{}".
func (JSONCodec) Marshal(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal implements [Codec]. The top level value must be an object.
func (JSONCodec) Unmarshal(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrParse)
	}
	return doc, nil
}

var errUnindexable = errors.New("value cannot be encoded")

// indexValue returns the string form of a field value used as an index entry
// name. Strings are used as is; any other value uses its JSON encoding, so
// 1 is "1", true is "true" and nil is "null".
func indexValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errUnindexable, err)
		}
		s = string(b)
	}
	if err := ValidateName(s); err != nil {
		return "", err
	}
	return s, nil
}
