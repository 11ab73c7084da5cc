package cms

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Resolver intended for tests, examples and the
// CLI's fixture mode. Records are keyed by Record.Key().
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore(records ...*Record) *MemoryStore {
	s := &MemoryStore{records: map[string]*Record{}}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put stores a copy of r, replacing any record with the same key. Included
// records on r are ignored; relationships are expanded on Resolve.
func (s *MemoryStore) Put(r *Record) {
	if s == nil || r == nil || r.ID == "" {
		return
	}
	stored := cloneRecord(r)
	stored.Included = nil

	s.mu.Lock()
	s.records[stored.Key()] = stored
	s.mu.Unlock()
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Resolve implements Resolver. Each include path is followed through
// relationships; dangling references are skipped.
func (s *MemoryStore) Resolve(ctx context.Context, typ Type, id string, includes ...string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key(typ, id))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.records[key(typ, id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key(typ, id))
	}
	out := cloneRecord(root)
	out.Included = nil

	seen := map[string]bool{out.Key(): true}
	for _, include := range includes {
		path := strings.Split(strings.TrimSpace(include), ".")
		s.expand(root, path, seen, &out.Included)
	}
	return out, nil
}

func (s *MemoryStore) expand(from *Record, path []string, seen map[string]bool, into *[]*Record) {
	if len(path) == 0 || path[0] == "" {
		return
	}
	for _, ref := range from.Relationships[path[0]] {
		next, ok := s.records[key(ref.Type, ref.ID)]
		if !ok {
			continue
		}
		if !seen[next.Key()] {
			seen[next.Key()] = true
			included := cloneRecord(next)
			included.Included = nil
			*into = append(*into, included)
		}
		s.expand(next, path[1:], seen, into)
	}
}

func cloneRecord(r *Record) *Record {
	out := &Record{Type: r.Type, ID: r.ID}
	if r.Attributes != nil {
		out.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	if r.Relationships != nil {
		out.Relationships = make(map[string][]Ref, len(r.Relationships))
		for name, refs := range r.Relationships {
			out.Relationships[name] = append([]Ref(nil), refs...)
		}
	}
	if len(r.Included) > 0 {
		out.Included = append([]*Record(nil), r.Included...)
	}
	return out
}
