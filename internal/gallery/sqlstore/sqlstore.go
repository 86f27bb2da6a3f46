// Package sqlstore implements gallery backends on SQLite, PostgreSQL (with
// pgvector) and MySQL/MariaDB.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/gallery"
)

// Store is a gallery.Backend on a SQL database. Each identity is one row in
// identities plus one row per embedding; every write runs in a transaction.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

var _ gallery.Backend = (*Store)(nil)

// Open connects to the backend named by cfg.Backend and applies migrations.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case config.BackendPostgres:
		return openPool(ctx, postgresDialect, cfg, logger)
	case config.BackendMySQL:
		return openPool(ctx, mysqlDialect, cfg, logger)
	}
	return nil, fmt.Errorf("unsupported SQL backend %q", cfg.Backend)
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas below in effect for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma failed: %w", err)
		}
	}

	return newStore(ctx, db, sqliteDialect, logger)
}

func openPool(ctx context.Context, d dialect, cfg config.StorageConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open(d.driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	return newStore(ctx, db, d, logger)
}

func newStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Verify connection.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dialect: d, logger: logger.With(zap.String("backend", d.name))}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	applied, err := s.MigrationsApplied(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("gallery schema ready", zap.Strings("migrations", applied))
	return s, nil
}

func (s *Store) Load(ctx context.Context) ([]gallery.Record, []gallery.CorruptRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity_key, model_version, dim, registered_at FROM identities ORDER BY identity_key")
	if err != nil {
		return nil, nil, fmt.Errorf("query identities: %w", err)
	}
	var order []string
	records := make(map[string]*gallery.Record)
	dims := make(map[string]int)
	for rows.Next() {
		var rec gallery.Record
		var dim int
		var at int64
		if err := rows.Scan(&rec.Key, &rec.ModelVersion, &dim, &at); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan identity: %w", err)
		}
		rec.RegisteredAt = time.Unix(0, at).UTC()
		records[rec.Key] = &rec
		dims[rec.Key] = dim
		order = append(order, rec.Key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate identities: %w", err)
	}

	broken, err := s.loadEmbeddings(ctx, records, dims)
	if err != nil {
		return nil, nil, err
	}

	var out []gallery.Record
	var corrupt []gallery.CorruptRecord
	for _, key := range order {
		rec := records[key]
		if err := broken[key]; err == nil {
			err = gallery.ValidateRecord(rec)
			if err == nil {
				out = append(out, *rec)
				continue
			}
			broken[key] = err
		}
		corrupt = append(corrupt, gallery.CorruptRecord{
			Location: key,
			Key:      key,
			Err:      fmt.Errorf("%w: %v", face.ErrCorruptRecord, broken[key]),
		})
	}
	return out, corrupt, nil
}

// loadEmbeddings fills records with their embeddings and returns, per
// identity, the first decoding problem found.
func (s *Store) loadEmbeddings(ctx context.Context, records map[string]*gallery.Record, dims map[string]int) (map[string]error, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity_key, id, vector, registered_at FROM identity_embeddings ORDER BY identity_key, position")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	broken := make(map[string]error)
	for rows.Next() {
		var key, id string
		var at int64
		dest, decode := s.dialect.vector.scanner()
		if err := rows.Scan(&key, &id, dest, &at); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		rec, ok := records[key]
		if !ok || broken[key] != nil {
			continue
		}

		vec, err := decode()
		if err != nil {
			broken[key] = err
			continue
		}
		if vec.Dim() != dims[key] {
			broken[key] = fmt.Errorf("embedding %s has %d components, identity declares %d", id, vec.Dim(), dims[key])
			continue
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			broken[key] = fmt.Errorf("embedding id %q: %w", id, err)
			continue
		}
		rec.Entries = append(rec.Entries, gallery.Entry{ID: uid, Vector: vec, RegisteredAt: time.Unix(0, at).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return broken, nil
}

// Put replaces the identity's rows in one transaction.
func (s *Store) Put(ctx context.Context, rec gallery.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(s.dialect.upsert),
		rec.Key, rec.ModelVersion, rec.Dim(), rec.RegisteredAt.UnixNano()); err != nil {
		return fmt.Errorf("upserting identity %q: %w", rec.Key, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind("DELETE FROM identity_embeddings WHERE identity_key = ?"), rec.Key); err != nil {
		return fmt.Errorf("clearing embeddings of %q: %w", rec.Key, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(
		"INSERT INTO identity_embeddings (id, identity_key, position, vector, registered_at) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("preparing embedding insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range rec.Entries {
		if _, err := stmt.ExecContext(ctx, e.ID.String(), rec.Key, i, s.dialect.vector.encode(e.Vector), e.RegisteredAt.UnixNano()); err != nil {
			return fmt.Errorf("inserting embedding %d of %q: %w", i, rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing identity %q: %w", rec.Key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.deleteWhere(ctx, " WHERE identity_key = ?", key)
}

func (s *Store) Purge(ctx context.Context) error {
	return s.deleteWhere(ctx, "")
}

func (s *Store) deleteWhere(ctx context.Context, where string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"identity_embeddings", "identities"} {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind("DELETE FROM "+table+where), args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// Discard deletes the rows of a corrupt identity.
func (s *Store) Discard(ctx context.Context, c gallery.CorruptRecord) error {
	s.logger.Warn("deleting corrupt identity rows", zap.String("identity", c.Location))
	return s.Delete(ctx, c.Location)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
