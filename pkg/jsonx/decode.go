package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var (
	// ErrEmptyBody is returned when a strict decode sees no JSON content.
	ErrEmptyBody = errors.New("empty body")
	// ErrTrailingJSON is returned when more than one JSON value is present.
	ErrTrailingJSON = errors.New("trailing data")
)

// ParseJSONObject decodes the first JSON value from src into dst,
// rejecting unknown fields. Anything after that value is not read.
func ParseJSONObject[T any](src io.Reader, dst *T) error {
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ParseStrictJSON decodes exactly one JSON value out of data into dst,
// rejecting unknown fields, empty input, and trailing data. Used to parse
// the command envelope's jsonData string.
func ParseStrictJSON[T any](data []byte, dst *T) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrTrailingJSON
	}
	return nil
}
