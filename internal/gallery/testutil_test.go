package gallery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceid/internal/face"
)

var errTransient = errors.New("disk busy")

// memBackend is an in-memory Backend that can be told to fail writes.
type memBackend struct {
	mu        sync.Mutex
	records   map[string]Record
	corrupt   []CorruptRecord
	discarded []CorruptRecord
	deleted   []string
	failPuts  int // number of upcoming Put calls that fail
	putCalls  int
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[string]Record)}
}

func (m *memBackend) Load(context.Context) ([]Record, []CorruptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, m.corrupt, nil
}

func (m *memBackend) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failPuts > 0 {
		m.failPuts--
		return errTransient
	}
	rec.Entries = append([]Entry(nil), rec.Entries...)
	m.records[rec.Key] = rec
	return nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memBackend) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	return nil
}

func (m *memBackend) Discard(_ context.Context, c CorruptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded = append(m.discarded, c)
	return nil
}

func (m *memBackend) Close() error { return nil }

// fakeClock returns a time one second later on every call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func vec(vals ...float32) face.Embedding {
	return face.Embedding(vals)
}

func record(key string, at time.Time, vectors ...face.Embedding) Record {
	rec := Record{Key: key, ModelVersion: "test-v1", RegisteredAt: at}
	for i, v := range vectors {
		rec.Entries = append(rec.Entries, Entry{ID: uuid.New(), Vector: v, RegisteredAt: at.Add(time.Duration(i) * time.Second)})
	}
	return rec
}

func testOptions(clock *fakeClock) Options {
	return Options{
		ModelVersion:  "test-v1",
		Dim:           3,
		MaxEmbeddings: 10,
		WriteRetries:  0,
		Now:           clock.Now,
	}
}
