package gallery

import "context"

// Backend is durable storage for identity records. Implementations must make
// each Put and Delete atomic at the record level: after a crash a record is
// either fully old or fully new.
type Backend interface {
	// Load returns every stored record plus the records that could not be
	// decoded. It does not repair anything.
	Load(ctx context.Context) ([]Record, []CorruptRecord, error)
	// Put stores rec, replacing any previous version of the same key.
	Put(ctx context.Context, rec Record) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Purge removes all records.
	Purge(ctx context.Context) error
	// Discard moves a corrupt record out of the way so the next Load skips it.
	Discard(ctx context.Context, c CorruptRecord) error
	Close() error
}

// CorruptRecord describes a durable record that failed to decode or validate.
type CorruptRecord struct {
	Location string // backend specific: file path or identity key
	Key      string // identity key, when it could be recovered
	Err      error
}
