package configurator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDecodeFailure reports a payload that could not be decoded. Decode never
// returns it; DecodeStrict does.
var ErrDecodeFailure = errors.New("configurator: decode failure")

type wirePayload struct {
	Meta   *MetaSchema `json:"meta,omitempty"`
	States [][]any     `json:"states"`
}

// Encode serializes the schema and entries to JSON and base64 encodes it.
func (s *State) Encode() (string, error) {
	payload := wirePayload{States: [][]any{}}
	schema := DefaultMetaSchema()
	if s != nil {
		schema = s.schema
		if len(s.tuples) > 0 {
			payload.States = s.tuples
		}
	}
	payload.Meta = &schema

	buffer, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("configurator: encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buffer), nil
}

// Encode is a convenience wrapper around State.Encode.
func Encode(state *State) (string, error) {
	return state.Encode()
}

// Decode parses an encoded state. Any failure yields an empty state, so a
// caller cannot tell a corrupt payload from a missing one.
func Decode(encoded string, opts ...Option) *State {
	state, err := DecodeStrict(encoded, opts...)
	if err != nil {
		return New(opts...)
	}
	return state
}

// DecodeStrict parses an encoded state and reports why decoding failed. An
// empty input decodes to an empty state.
func DecodeStrict(encoded string, opts ...Option) (*State, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return New(opts...), nil
	}

	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecodeFailure, err)
	}

	var payload wirePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrDecodeFailure, err)
	}

	state := New(opts...)
	if payload.Meta != nil {
		if err := payload.Meta.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		state.schema = *payload.Meta
	}

	width := state.schema.width()
	for _, tuple := range payload.States {
		// Pad short tuples so upserts can write every schema position.
		if len(tuple) < width {
			padded := make([]any, width)
			copy(padded, tuple)
			tuple = padded
		}
		state.tuples = append(state.tuples, tuple)
	}
	return state, nil
}

func decodeBase64(encoded string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, encoding := range encodings {
		raw, err := encoding.DecodeString(encoded)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
