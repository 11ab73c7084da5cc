// Package cms is the data collaborator the launchers resolve logical targets
// through. The launch core only depends on Resolver; Client and MemoryStore
// are the bundled implementations.
package cms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("cms: record not found")

// Type names a CMS record type. Relationship names use the same vocabulary.
type Type string

const (
	TypeProduct          Type = "product"
	TypeProductVariation Type = "product_variation"
	TypeScene            Type = "scene"
	TypeSceneProduct     Type = "scene_product"
	TypeFileModel        Type = "file_model"
)

// Resolver fetches a record and the related records named by includes.
// Include paths are dot separated relationship names, e.g.
// "product_variation.file_model".
type Resolver interface {
	Resolve(ctx context.Context, typ Type, id string, includes ...string) (*Record, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, typ Type, id string, includes ...string) (*Record, error)

// Resolve implements Resolver.
func (fn ResolverFunc) Resolve(ctx context.Context, typ Type, id string, includes ...string) (*Record, error) {
	return fn(ctx, typ, id, includes...)
}

// Ref points at another record.
type Ref struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// Record is a resolved CMS entity. Records returned by a Resolver are shared
// and must be treated as read-only.
type Record struct {
	Type          Type
	ID            string
	Attributes    map[string]any
	Relationships map[string][]Ref
	Included      []*Record
}

// Key returns the canonical "type/id" identifier of the record.
func (r *Record) Key() string {
	if r == nil {
		return ""
	}
	return key(r.Type, r.ID)
}

func key(typ Type, id string) string {
	return fmt.Sprintf("%s/%s", typ, id)
}

// String returns a string attribute or "" when absent.
func (r *Record) String(attribute string) string {
	if r == nil {
		return ""
	}
	value, _ := r.Attributes[attribute].(string)
	return strings.TrimSpace(value)
}

// Related returns the references stored under a relationship name.
func (r *Record) Related(name string) []Ref {
	if r == nil {
		return nil
	}
	refs := r.Relationships[name]
	if len(refs) == 0 {
		return nil
	}
	return append([]Ref(nil), refs...)
}

// Find looks up an included record. With an id it returns that exact record;
// without one it returns the first record of typ this record relates to,
// falling back to the first included record of typ.
func (r *Record) Find(typ Type, id ...string) (*Record, bool) {
	if r == nil {
		return nil, false
	}
	if len(id) > 0 && id[0] != "" {
		want := id[0]
		if r.Type == typ && r.ID == want {
			return r, true
		}
		for _, included := range r.Included {
			if included.Type == typ && included.ID == want {
				return included, true
			}
		}
		return nil, false
	}

	names := make([]string, 0, len(r.Relationships))
	for name := range r.Relationships {
		if name != string(typ) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{string(typ)}, names...)
	for _, name := range names {
		for _, ref := range r.Relationships[name] {
			if ref.Type != typ {
				continue
			}
			if found, ok := r.Find(typ, ref.ID); ok {
				return found, true
			}
		}
	}
	for _, included := range r.Included {
		if included.Type == typ {
			return included, true
		}
	}
	return nil, false
}

// FindAll returns every included record of typ in include order.
func (r *Record) FindAll(typ Type) []*Record {
	if r == nil {
		return nil
	}
	var out []*Record
	for _, included := range r.Included {
		if included.Type == typ {
			out = append(out, included)
		}
	}
	return out
}
