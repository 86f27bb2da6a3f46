// Package gallery implements the identity gallery: an in-memory immutable
// snapshot for readers, kept in step with a durable Backend by a
// write-through Store.
package gallery

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceid/internal/face"
)

// Entry is one reference embedding of an identity.
type Entry struct {
	ID           uuid.UUID
	Vector       face.Embedding
	RegisteredAt time.Time
}

// Record is an identity with its reference embeddings, oldest first.
// RegisteredAt is the time of the first registration and never changes.
type Record struct {
	Key          string
	ModelVersion string
	RegisteredAt time.Time
	Entries      []Entry
}

// Dim returns the dimensionality of the record's embeddings, 0 if it has none.
func (r *Record) Dim() int {
	if len(r.Entries) == 0 {
		return 0
	}
	return r.Entries[0].Vector.Dim()
}

// LastRegisteredAt returns the time of the newest embedding.
func (r *Record) LastRegisteredAt() time.Time {
	if len(r.Entries) == 0 {
		return r.RegisteredAt
	}
	return r.Entries[len(r.Entries)-1].RegisteredAt
}

// CompareRecords orders records by registration time, then key. It is the
// gallery's canonical order and the matcher's tie-break.
func CompareRecords(a, b *Record) int {
	if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// Snapshot is an immutable view of the gallery. Records reachable from a
// snapshot are never modified; writers build a new snapshot instead.
type Snapshot struct {
	byKey      map[string]*Record
	ordered    []*Record
	embeddings int
}

// NewSnapshot builds a snapshot from records. Records without entries are skipped.
func NewSnapshot(records []*Record) *Snapshot {
	s := &Snapshot{byKey: make(map[string]*Record, len(records))}
	for _, r := range records {
		if len(r.Entries) == 0 {
			continue
		}
		s.byKey[r.Key] = r
		s.ordered = append(s.ordered, r)
		s.embeddings += len(r.Entries)
	}
	slices.SortFunc(s.ordered, CompareRecords)
	return s
}

// Len returns the number of identities.
func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// EmbeddingCount returns the total number of reference embeddings.
func (s *Snapshot) EmbeddingCount() int {
	return s.embeddings
}

// Get returns the record for key.
func (s *Snapshot) Get(key string) (*Record, bool) {
	r, ok := s.byKey[key]
	return r, ok
}

// Records returns all records in canonical order. The slice and the records
// must not be modified.
func (s *Snapshot) Records() []*Record {
	return s.ordered
}

// with returns a copy of s in which rec replaces any record with the same key.
func (s *Snapshot) with(rec *Record) *Snapshot {
	next := &Snapshot{
		byKey:      make(map[string]*Record, len(s.byKey)+1),
		ordered:    make([]*Record, 0, len(s.ordered)+1),
		embeddings: s.embeddings + len(rec.Entries),
	}
	for k, r := range s.byKey {
		next.byKey[k] = r
	}
	for _, r := range s.ordered {
		if r.Key == rec.Key {
			next.embeddings -= len(r.Entries)
			continue
		}
		next.ordered = append(next.ordered, r)
	}
	next.byKey[rec.Key] = rec
	i, _ := slices.BinarySearchFunc(next.ordered, rec, CompareRecords)
	next.ordered = slices.Insert(next.ordered, i, rec)
	return next
}

// without returns a copy of s with key removed.
func (s *Snapshot) without(key string) *Snapshot {
	next := &Snapshot{
		byKey:      make(map[string]*Record, len(s.byKey)),
		ordered:    make([]*Record, 0, len(s.ordered)),
		embeddings: s.embeddings,
	}
	for _, r := range s.ordered {
		if r.Key == key {
			next.embeddings -= len(r.Entries)
			continue
		}
		next.byKey[r.Key] = r
		next.ordered = append(next.ordered, r)
	}
	return next
}
