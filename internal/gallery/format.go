package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceid/internal/face"
)

const (
	documentFormat  = "faceid.identity"
	documentVersion = 1
)

// identityDocument is the self-describing on-disk form of a Record.
type identityDocument struct {
	Format       string              `json:"format"`
	Version      int                 `json:"version"`
	IdentityKey  string              `json:"identity_key"`
	ModelVersion string              `json:"model_version"`
	Dim          int                 `json:"dim"`
	RegisteredAt time.Time           `json:"registered_at"`
	Embeddings   []embeddingDocument `json:"embeddings"`
}

type embeddingDocument struct {
	ID           uuid.UUID `json:"id"`
	Vector       []float32 `json:"vector"`
	RegisteredAt time.Time `json:"registered_at"`
}

func marshalRecord(rec Record) ([]byte, error) {
	doc := identityDocument{
		Format:       documentFormat,
		Version:      documentVersion,
		IdentityKey:  rec.Key,
		ModelVersion: rec.ModelVersion,
		Dim:          rec.Dim(),
		RegisteredAt: rec.RegisteredAt,
		Embeddings:   make([]embeddingDocument, len(rec.Entries)),
	}
	for i, e := range rec.Entries {
		doc.Embeddings[i] = embeddingDocument{ID: e.ID, Vector: e.Vector, RegisteredAt: e.RegisteredAt}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding identity %q: %w", rec.Key, err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (Record, error) {
	var doc identityDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("decoding identity document: %w", err)
	}
	if doc.Format != documentFormat {
		return Record{}, fmt.Errorf("unexpected format %q", doc.Format)
	}
	if doc.Version != documentVersion {
		return Record{}, fmt.Errorf("unsupported document version %d", doc.Version)
	}

	rec := Record{
		Key:          doc.IdentityKey,
		ModelVersion: doc.ModelVersion,
		RegisteredAt: doc.RegisteredAt,
		Entries:      make([]Entry, len(doc.Embeddings)),
	}
	for i, e := range doc.Embeddings {
		if len(e.Vector) != doc.Dim {
			return Record{}, fmt.Errorf("embedding %d has %d components, document declares %d", i, len(e.Vector), doc.Dim)
		}
		rec.Entries[i] = Entry{ID: e.ID, Vector: e.Vector, RegisteredAt: e.RegisteredAt}
	}
	if err := ValidateRecord(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ValidateRecord checks the structural invariants every backend must enforce
// when loading: a key, a registration time and finite, equally sized
// embeddings with distinct IDs. A record without entries is valid here; the
// store prunes it.
func ValidateRecord(rec *Record) error {
	if rec.Key == "" {
		return errors.New("record has no identity key")
	}
	if rec.RegisteredAt.IsZero() {
		return fmt.Errorf("identity %q has no registration time", rec.Key)
	}
	dim := rec.Dim()
	seen := make(map[uuid.UUID]struct{}, len(rec.Entries))
	for i, e := range rec.Entries {
		if e.Vector.Dim() != dim {
			return fmt.Errorf("identity %q embedding %d has dim %d, want %d", rec.Key, i, e.Vector.Dim(), dim)
		}
		if err := e.Vector.Validate(); err != nil {
			return fmt.Errorf("identity %q embedding %d: %w", rec.Key, i, err)
		}
		if e.ID == uuid.Nil {
			return fmt.Errorf("identity %q embedding %d has no id", rec.Key, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("identity %q has duplicate embedding id %s", rec.Key, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// corruptionError marks decode failures so they are reported as ErrCorruptRecord.
func corruptionError(err error) error {
	return fmt.Errorf("%w: %v", face.ErrCorruptRecord, err)
}
