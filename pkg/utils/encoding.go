package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyInput = errors.New("empty input")

// Encode marshals value to JSON and wraps it in URL-safe base64 so it can be
// stored as a plain mailbox string
func Encode[T any](value T) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode
func Decode[T any](encoded string) (T, error) {
	var result T
	if encoded == "" {
		return result, fmt.Errorf("failed to decode: %w", ErrEmptyInput)
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("failed to decode base64: %w", err)
	}
	return DecodeJSON[T](raw)
}

// EncodeJSON encodes any value to JSON bytes
func EncodeJSON[T any](value T) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return raw, nil
}

// DecodeJSON decodes JSON bytes to the specified type
func DecodeJSON[T any](data []byte) (T, error) {
	var result T
	if len(data) == 0 {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", ErrEmptyInput)
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON (%d bytes): %w", len(data), err)
	}
	return result, nil
}
