// Package matcher decides which gallery identity, if any, a query embedding
// belongs to.
package matcher

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/constants"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/gallery"
)

// Result is the outcome of one query. Score is the best distance found in
// the gallery, whether or not it passed the threshold; it is 0 when the
// gallery is empty.
type Result struct {
	IdentityKey string
	Score       float64
	Label       face.Label
}

// Matched reports whether an identity was accepted.
func (r Result) Matched() bool {
	return r.Label == face.LabelMatch
}

// Matcher compares a query against every embedding of a snapshot. An
// identity scores the minimum distance over its embeddings; the best
// identity wins and ties go to the earliest registration.
type Matcher struct {
	metric        metric
	strategy      string
	shortlistSize int
	minEmbeddings int

	mu    sync.Mutex
	snap  *gallery.Snapshot
	index *gallery.Index
}

// New creates a matcher for the engine's metric and strategy.
func New(cfg config.EngineConfig) (*Matcher, error) {
	m, err := metricByName(cfg.Metric)
	if err != nil {
		return nil, err
	}
	strategy := cfg.Strategy
	switch strategy {
	case "":
		strategy = config.StrategyExact
	case config.StrategyExact, config.StrategyHNSW:
	default:
		return nil, fmt.Errorf("unknown match strategy %q: %w", cfg.Strategy, face.ErrInvalidInput)
	}
	shortlist := cfg.ShortlistSize
	if shortlist <= 0 {
		shortlist = constants.DefaultShortlistSize
	}
	return &Matcher{
		metric:        m,
		strategy:      strategy,
		shortlistSize: shortlist,
		minEmbeddings: cfg.HNSWMinEmbeddings,
	}, nil
}

// Query matches query against snap. A distance equal to threshold is a match.
// An empty gallery is a no-match, not an error.
func (m *Matcher) Query(query face.Embedding, snap *gallery.Snapshot, threshold float64) Result {
	if snap == nil || snap.Len() == 0 {
		return Result{Label: face.LabelNoMatch}
	}

	records := snap.Records()
	if m.strategy == config.StrategyHNSW && snap.EmbeddingCount() >= m.minEmbeddings {
		if shortlist := m.shortlist(query, snap); len(shortlist) > 0 {
			records = shortlist
		}
	}

	best, dist := m.scan(query, records)
	if best == nil {
		return Result{Label: face.LabelNoMatch}
	}
	if dist <= threshold {
		return Result{IdentityKey: best.Key, Score: dist, Label: face.LabelMatch}
	}
	return Result{Score: dist, Label: face.LabelNoMatch}
}

// scan expects records in canonical gallery order, so keeping the first of
// equal scores picks the earliest registration.
func (m *Matcher) scan(query face.Embedding, records []*gallery.Record) (*gallery.Record, float64) {
	var best *gallery.Record
	bestDist := 0.0
	for _, rec := range records {
		d, ok := m.identityDistance(query, rec)
		if !ok {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = rec, d
		}
	}
	return best, bestDist
}

func (m *Matcher) identityDistance(query face.Embedding, rec *gallery.Record) (float64, bool) {
	found := false
	best := 0.0
	for _, e := range rec.Entries {
		if e.Vector.Dim() != query.Dim() {
			continue
		}
		d := m.metric.exact(query, e.Vector)
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// shortlist returns the identities owning the nearest indexed embeddings, in
// canonical order.
func (m *Matcher) shortlist(query face.Embedding, snap *gallery.Snapshot) []*gallery.Record {
	keys := m.indexFor(snap).Candidates(query, m.shortlistSize)
	out := make([]*gallery.Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := snap.Get(k); ok {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, gallery.CompareRecords)
	return out
}

// indexFor returns the HNSW index of snap, building it on first use. Only
// the index of the latest queried snapshot is kept.
func (m *Matcher) indexFor(snap *gallery.Snapshot) *gallery.Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap != snap {
		m.index = gallery.BuildIndex(snap, m.metric.graph, m.shortlistSize)
		m.snap = snap
	}
	return m.index
}
