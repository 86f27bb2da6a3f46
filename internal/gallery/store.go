package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/constants"
	"github.com/kozaktomas/faceid/internal/face"
)

// Options configure a Store.
type Options struct {
	ModelVersion  string // version stamped on new records and required of loaded ones
	Dim           int    // embedding dimensionality of the loaded model
	MaxEmbeddings int    // per identity; the oldest embedding is evicted beyond it
	CorruptPolicy string // config.CorruptFail or config.CorruptDiscard
	WriteRetries  int
	Now           func() time.Time
}

// Store is the gallery: readers take immutable snapshots without locking,
// writers are serialized and write through to the backend before the new
// snapshot becomes visible.
type Store struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
}

// Open loads the gallery from backend. Records that do not belong to the
// configured model are a fatal ErrDimensionMismatch. Corrupt records fail the
// open or are discarded according to the corrupt policy. Identities without
// embeddings are pruned.
func Open(ctx context.Context, backend Backend, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.MaxEmbeddings <= 0 {
		opts.MaxEmbeddings = constants.DefaultMaxEmbeddingsPerIdentity
	}
	if opts.CorruptPolicy == "" {
		opts.CorruptPolicy = config.CorruptFail
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{backend: backend, opts: opts, logger: logger}

	records, corrupt, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading gallery: %v", face.ErrStorage, err)
	}

	for _, c := range corrupt {
		if opts.CorruptPolicy != config.CorruptDiscard {
			return nil, fmt.Errorf("%w: %s: %v", face.ErrCorruptRecord, c.Location, c.Err)
		}
		logger.Warn("discarding corrupt gallery record",
			zap.String("location", c.Location),
			zap.String("identity", c.Key),
			zap.Error(c.Err))
		if err := backend.Discard(ctx, c); err != nil {
			return nil, fmt.Errorf("%w: discarding %s: %v", face.ErrStorage, c.Location, err)
		}
	}

	loaded := make([]*Record, 0, len(records))
	for i := range records {
		rec := &records[i]
		if len(rec.Entries) == 0 {
			logger.Warn("pruning identity without embeddings", zap.String("identity", rec.Key))
			if err := backend.Delete(ctx, rec.Key); err != nil {
				return nil, fmt.Errorf("%w: pruning %q: %v", face.ErrStorage, rec.Key, err)
			}
			continue
		}
		if rec.ModelVersion != opts.ModelVersion {
			return nil, fmt.Errorf("%w: identity %q was encoded by model %q, loaded model is %q",
				face.ErrDimensionMismatch, rec.Key, rec.ModelVersion, opts.ModelVersion)
		}
		if rec.Dim() != opts.Dim {
			return nil, fmt.Errorf("%w: identity %q has %d-dim embeddings, encoder produces %d",
				face.ErrDimensionMismatch, rec.Key, rec.Dim(), opts.Dim)
		}
		loaded = append(loaded, rec)
	}

	snap := NewSnapshot(loaded)
	s.current.Store(snap)
	logger.Info("gallery loaded",
		zap.Int("identities", snap.Len()),
		zap.Int("embeddings", snap.EmbeddingCount()),
		zap.Int("dim", opts.Dim),
		zap.Int("discarded", len(corrupt)))
	return s, nil
}

// Snapshot returns the current immutable gallery view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Put appends emb to key's record, creating the record if needed. When the
// record already holds MaxEmbeddings entries the oldest is evicted. The
// returned record is the one now visible to readers.
func (s *Store) Put(ctx context.Context, key string, emb face.Embedding) (*Record, error) {
	if emb.Dim() != s.opts.Dim {
		return nil, fmt.Errorf("%w: embedding has %d components, gallery holds %d", face.ErrDimensionMismatch, emb.Dim(), s.opts.Dim)
	}
	if err := emb.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	now := s.opts.Now().UTC().Round(0)
	entry := Entry{ID: uuid.New(), Vector: emb.Clone(), RegisteredAt: now}

	rec := &Record{Key: key, ModelVersion: s.opts.ModelVersion, RegisteredAt: now}
	if old, ok := snap.Get(key); ok {
		rec.RegisteredAt = old.RegisteredAt
		rec.Entries = make([]Entry, 0, len(old.Entries)+1)
		rec.Entries = append(rec.Entries, old.Entries...)
	}
	rec.Entries = append(rec.Entries, entry)
	if n := len(rec.Entries); n > s.opts.MaxEmbeddings {
		rec.Entries = rec.Entries[n-s.opts.MaxEmbeddings:]
	}

	if err := s.retry(ctx, "put", key, func() error { return s.backend.Put(ctx, *rec) }); err != nil {
		return nil, fmt.Errorf("%w: storing identity %q: %v", face.ErrStorage, key, err)
	}

	s.current.Store(snap.with(rec))
	return rec, nil
}

// Remove deletes key's record. An absent key is ErrNotFound and touches nothing.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, ok := snap.Get(key); !ok {
		return fmt.Errorf("identity %q: %w", key, face.ErrNotFound)
	}

	if err := s.retry(ctx, "delete", key, func() error { return s.backend.Delete(ctx, key) }); err != nil {
		return fmt.Errorf("%w: deleting identity %q: %v", face.ErrStorage, key, err)
	}

	s.current.Store(snap.without(key))
	return nil
}

// Purge removes every identity and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if err := s.retry(ctx, "purge", "", func() error { return s.backend.Purge(ctx) }); err != nil {
		return 0, fmt.Errorf("%w: purging gallery: %v", face.ErrStorage, err)
	}

	s.current.Store(NewSnapshot(nil))
	s.logger.Warn("gallery purged", zap.Int("identities", snap.Len()))
	return snap.Len(), nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("closing gallery backend: %w", err)
	}
	return nil
}

// errPermanent marks backend errors that retrying cannot fix.
var errPermanent = errors.New("permanent storage failure")

// Permanent wraps err so the store does not retry it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}
