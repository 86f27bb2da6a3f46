package gallery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"go.uber.org/zap"
)

const (
	recordExt  = ".json"
	corruptExt = ".corrupt"
)

// FileBackend stores one JSON document per identity in a directory. Each
// write goes to a temporary file that is synced and renamed over the old
// document, followed by a sync of the directory.
type FileBackend struct {
	dir    string
	logger *zap.Logger
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating gallery directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBackend{dir: dir, logger: logger}, nil
}

func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + recordExt
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, fileName(key))
}

func (b *FileBackend) Load(ctx context.Context) ([]Record, []CorruptRecord, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading gallery directory: %w", err)
	}

	var records []Record
	var corrupt []CorruptRecord
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := e.Name()
		full := filepath.Join(b.dir, name)

		if e.IsDir() {
			continue
		}
		// Leftover temporary file from an interrupted write. The previous
		// document, if any, is still intact under its final name.
		if strings.HasPrefix(name, ".") {
			b.logger.Warn("removing stale temporary file", zap.String("path", full))
			if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, nil, fmt.Errorf("removing stale file %s: %w", full, err)
			}
			continue
		}
		if !strings.HasSuffix(name, recordExt) {
			continue
		}

		data, err := os.ReadFile(full) //nolint:gosec // path is inside the gallery directory
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", full, err)
		}
		rec, err := decodeRecordFile(data, name)
		if err != nil {
			c := CorruptRecord{Location: full, Err: err}
			if raw, decErr := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, recordExt)); decErr == nil {
				c.Key = string(raw)
			}
			corrupt = append(corrupt, c)
			continue
		}
		records = append(records, rec)
	}
	return records, corrupt, nil
}

// decodeRecordFile decodes the document stored under file name. Every error
// it returns is a corruption.
func decodeRecordFile(data []byte, name string) (Record, error) {
	rec, err := unmarshalRecord(data)
	if err != nil {
		return Record{}, corruptionError(err)
	}
	if fileName(rec.Key) != name {
		return Record{}, corruptionError(fmt.Errorf("document for %q stored under %s", rec.Key, name))
	}
	return rec, nil
}

func (b *FileBackend) Put(_ context.Context, rec Record) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return Permanent(err)
	}
	if err := renameio.WriteFile(b.path(rec.Key), data, 0o600); err != nil {
		return fmt.Errorf("writing identity %q: %w", rec.Key, err)
	}
	return b.syncDir()
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing identity %q: %w", key, err)
	}
	return b.syncDir()
}

func (b *FileBackend) Purge(ctx context.Context) error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("reading gallery directory: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return b.syncDir()
}

// Discard renames the document to *.corrupt so it is kept for inspection.
func (b *FileBackend) Discard(_ context.Context, c CorruptRecord) error {
	if err := os.Rename(c.Location, c.Location+corruptExt); err != nil {
		return fmt.Errorf("quarantining %s: %w", c.Location, err)
	}
	return b.syncDir()
}

func (b *FileBackend) Close() error {
	return nil
}

// syncDir makes the latest rename or unlink in the directory durable.
func (b *FileBackend) syncDir() error {
	d, err := os.Open(b.dir)
	if err != nil {
		return fmt.Errorf("opening gallery directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing gallery directory: %w", err)
	}
	return nil
}
