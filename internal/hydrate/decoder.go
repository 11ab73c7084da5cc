// Package hydrate decodes CMS record attributes into typed views.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Context identifies the record being decoded.
type Context struct {
	Type string
	ID   string
}

func (c Context) String() string {
	if c.Type == "" {
		return strconv.Quote(c.ID)
	}
	return c.Type + " " + strconv.Quote(c.ID)
}

// Normalizer rewrites top-level attributes before decoding. The map is a
// copy owned by the decoder.
type Normalizer func(Context, map[string]any) error

// Check validates or completes a decoded value.
type Check[T any] func(Context, *T) error

// Option configures a Decoder.
type Option[T any] func(*Decoder[T])

// Decoder turns an attribute map into T. Numeric values under keys ending in
// "_id" are read as strings, since the CMS emits ids in both forms. A
// configured Decoder is safe for concurrent use.
type Decoder[T any] struct {
	normalizers []Normalizer
	checks      []Check[T]
	setID       func(*T, string)
	strict      bool
}

// Normalize registers fn to run before decoding.
func Normalize[T any](fn Normalizer) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.normalizers = append(d.normalizers, fn)
		}
	}
}

// LowerCase trims and lowercases the named string attributes.
func LowerCase[T any](keys ...string) Option[T] {
	return Normalize[T](func(_ Context, attributes map[string]any) error {
		for _, key := range keys {
			if value, ok := attributes[key].(string); ok {
				attributes[key] = strings.ToLower(strings.TrimSpace(value))
			}
		}
		return nil
	})
}

// Identity copies the record id into the decoded value.
func Identity[T any](set func(*T, string)) Option[T] {
	return func(d *Decoder[T]) {
		d.setID = set
	}
}

// Strict rejects attributes T does not declare.
func Strict[T any]() Option[T] {
	return func(d *Decoder[T]) {
		d.strict = true
	}
}

// After registers fn to run on the decoded value.
func After[T any](fn Check[T]) Option[T] {
	return func(d *Decoder[T]) {
		if fn != nil {
			d.checks = append(d.checks, fn)
		}
	}
}

// New builds a Decoder.
func New[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts attributes into T. A nil map decodes as no attributes; the
// caller's map is never modified.
func (d *Decoder[T]) Decode(ctx Context, attributes map[string]any) (T, error) {
	var out T

	working := maps.Clone(attributes)
	if working == nil {
		working = map[string]any{}
	}
	stringifyIDs(working)
	for _, normalize := range d.normalizers {
		if err := normalize(ctx, working); err != nil {
			return out, fmt.Errorf("hydrate: normalize %s: %w", ctx, err)
		}
	}

	payload, err := json.Marshal(working)
	if err != nil {
		return out, fmt.Errorf("hydrate: encode %s: %w", ctx, err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("hydrate: decode %s: %w", ctx, err)
	}

	if d.setID != nil {
		d.setID(&out, ctx.ID)
	}
	for _, check := range d.checks {
		if err := check(ctx, &out); err != nil {
			var zero T
			return zero, fmt.Errorf("hydrate: check %s: %w", ctx, err)
		}
	}
	return out, nil
}

func stringifyIDs(attributes map[string]any) {
	for key, value := range attributes {
		if key != "id" && !strings.HasSuffix(key, "_id") {
			continue
		}
		switch v := value.(type) {
		case float64:
			attributes[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			attributes[key] = strconv.Itoa(v)
		case int64:
			attributes[key] = strconv.FormatInt(v, 10)
		case json.Number:
			attributes[key] = v.String()
		}
	}
}
