package configurator

import (
	"fmt"
	"strconv"
	"strings"
)

// MetaSchema records the tuple position of each entry field. The schema is
// encoded next to the entries so older payloads keep decoding after the
// layout changes.
type MetaSchema struct {
	SceneProductIndex     int `json:"scene_product_index"`
	ProductVariationIndex int `json:"product_variation_index"`
	MetaIndex             int `json:"meta_index"`
}

// MaxSchemaIndex bounds every schema position. Tuples are padded to the
// widest position, so payloads cannot size that allocation freely.
const MaxSchemaIndex = 15

// DefaultMetaSchema returns the layout used by every payload written so far.
func DefaultMetaSchema() MetaSchema {
	return MetaSchema{SceneProductIndex: 0, ProductVariationIndex: 1, MetaIndex: 2}
}

func (m MetaSchema) width() int {
	width := m.SceneProductIndex
	if m.ProductVariationIndex > width {
		width = m.ProductVariationIndex
	}
	if m.MetaIndex > width {
		width = m.MetaIndex
	}
	return width + 1
}

func (m MetaSchema) validate() error {
	if m.SceneProductIndex < 0 || m.ProductVariationIndex < 0 || m.MetaIndex < 0 {
		return fmt.Errorf("configurator: negative schema index in %+v", m)
	}
	if m.SceneProductIndex > MaxSchemaIndex || m.ProductVariationIndex > MaxSchemaIndex || m.MetaIndex > MaxSchemaIndex {
		return fmt.Errorf("configurator: schema index above %d in %+v", MaxSchemaIndex, m)
	}
	if m.SceneProductIndex == m.ProductVariationIndex ||
		m.SceneProductIndex == m.MetaIndex ||
		m.ProductVariationIndex == m.MetaIndex {
		return fmt.Errorf("configurator: schema indices must be distinct, got %+v", m)
	}
	return nil
}

// Metadata is the optional third slot of an entry.
type Metadata struct {
	Augment bool   `json:"augment"`
	Type    string `json:"type,omitempty"`
}

// DefaultMetadata is applied when an entry carries no metadata slot.
func DefaultMetadata() Metadata {
	return Metadata{Augment: true}
}

func (m Metadata) toSlot() map[string]any {
	slot := map[string]any{"augment": m.Augment}
	if m.Type != "" {
		slot["type"] = m.Type
	}
	return slot
}

// Entry is a read view of one positional tuple.
type Entry struct {
	SceneProductID     string
	ProductVariationID string
	Meta               Metadata
}

// Option configures a State.
type Option func(*State)

// WithSchema overrides the default meta-index schema for a new state.
func WithSchema(schema MetaSchema) Option {
	return func(s *State) {
		if schema.validate() == nil {
			s.schema = schema
		}
	}
}

// WithStrictAugment makes reads honor the stored augment flag. Without it the
// flag always reads true, which is what every existing consumer relies on.
func WithStrictAugment() Option {
	return func(s *State) {
		s.strict = true
	}
}

// State is an ordered list of scene product selections. It is not safe for
// concurrent mutation.
type State struct {
	schema MetaSchema
	tuples [][]any
	strict bool
}

// New returns an empty state using the default schema.
func New(opts ...Option) *State {
	s := &State{schema: DefaultMetaSchema()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schema returns the meta-index schema of the state.
func (s *State) Schema() MetaSchema {
	if s == nil {
		return DefaultMetaSchema()
	}
	return s.schema
}

// Len reports the number of stored tuples, including tuples without an id.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tuples)
}

// Add upserts an entry keyed by sceneProductID. A nil meta stores the default
// metadata. Empty ids are ignored.
func (s *State) Add(sceneProductID, productVariationID string, meta *Metadata) {
	value := DefaultMetadata()
	if meta != nil {
		value = *meta
	}
	s.upsert(sceneProductID, productVariationID, &value)
}

// Set upserts an entry like Add, but a nil meta keeps whatever metadata the
// entry already stores.
func (s *State) Set(sceneProductID, productVariationID string, meta *Metadata) {
	s.upsert(sceneProductID, productVariationID, meta)
}

func (s *State) upsert(sceneProductID, productVariationID string, meta *Metadata) {
	id := strings.TrimSpace(sceneProductID)
	if s == nil || id == "" {
		return
	}
	for _, tuple := range s.tuples {
		if s.readString(tuple, s.schema.SceneProductIndex) != id {
			continue
		}
		tuple[s.schema.ProductVariationIndex] = productVariationID
		if meta != nil {
			tuple[s.schema.MetaIndex] = meta.toSlot()
		}
		return
	}

	tuple := make([]any, s.schema.width())
	tuple[s.schema.SceneProductIndex] = id
	tuple[s.schema.ProductVariationIndex] = productVariationID
	slot := DefaultMetadata()
	if meta != nil {
		slot = *meta
	}
	tuple[s.schema.MetaIndex] = slot.toSlot()
	s.tuples = append(s.tuples, tuple)
}

// Remove deletes the entry for sceneProductID and reports whether it existed.
func (s *State) Remove(sceneProductID string) bool {
	if s == nil {
		return false
	}
	for i, tuple := range s.tuples {
		if s.readString(tuple, s.schema.SceneProductIndex) == sceneProductID {
			s.tuples = append(s.tuples[:i], s.tuples[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns every tuple as an Entry, in insertion order.
func (s *State) Entries() []Entry {
	if s == nil || len(s.tuples) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(s.tuples))
	for _, tuple := range s.tuples {
		out = append(out, s.entry(tuple))
	}
	return out
}

// ForEach calls fn for every entry with a scene product id until fn returns false.
func (s *State) ForEach(fn func(Entry) bool) {
	if s == nil || fn == nil {
		return
	}
	for _, tuple := range s.tuples {
		entry := s.entry(tuple)
		if entry.SceneProductID == "" {
			continue
		}
		if !fn(entry) {
			return
		}
	}
}

// First returns the first entry with a non-empty scene product id.
func (s *State) First() (Entry, bool) {
	return s.find(func(Entry) bool { return true })
}

// FirstOfType returns the first entry whose metadata type equals kind.
func (s *State) FirstOfType(kind string) (Entry, bool) {
	return s.find(func(e Entry) bool { return e.Meta.Type == kind })
}

// FirstActiveOfType returns the first entry of kind that reads as augmentable.
func (s *State) FirstActiveOfType(kind string) (Entry, bool) {
	return s.find(func(e Entry) bool { return e.Meta.Type == kind && e.Meta.Augment })
}

func (s *State) find(match func(Entry) bool) (Entry, bool) {
	var found Entry
	ok := false
	s.ForEach(func(e Entry) bool {
		if match(e) {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok
}

func (s *State) entry(tuple []any) Entry {
	return Entry{
		SceneProductID:     s.readString(tuple, s.schema.SceneProductIndex),
		ProductVariationID: s.readString(tuple, s.schema.ProductVariationIndex),
		Meta:               s.readMeta(tuple),
	}
}

func (s *State) readString(tuple []any, index int) string {
	if index < 0 || index >= len(tuple) {
		return ""
	}
	switch v := tuple[index].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (s *State) readMeta(tuple []any) Metadata {
	meta := DefaultMetadata()
	index := s.schema.MetaIndex
	if index >= len(tuple) {
		return meta
	}
	slot, ok := tuple[index].(map[string]any)
	if !ok {
		return meta
	}
	if kind, ok := slot["type"].(string); ok {
		meta.Type = kind
	}
	stored, ok := slot["augment"].(bool)
	if !ok {
		return meta
	}
	if s.strict {
		meta.Augment = stored
		return meta
	}
	// Legacy consumers read `augment || true`; keep that answer.
	meta.Augment = stored || true
	return meta
}
