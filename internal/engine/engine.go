// Package engine composes detection, encoding, the gallery and the matcher
// into the operations exposed to callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/constants"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/facematch"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/matcher"
	"github.com/kozaktomas/faceid/internal/model"
)

// Gallery is the identity store the engine reads snapshots from and writes to.
type Gallery interface {
	Snapshot() *gallery.Snapshot
	Put(ctx context.Context, key string, emb face.Embedding) (*gallery.Record, error)
	Remove(ctx context.Context, key string) error
	Purge(ctx context.Context) (int, error)
	Close() error
}

// Health states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// IdentityStatus describes one identity. Registered is false for unknown keys.
type IdentityStatus struct {
	IdentityKey      string
	Registered       bool
	EmbeddingCount   int
	RegisteredAt     time.Time
	LastRegisteredAt time.Time
}

// Health is a point-in-time summary of the engine.
type Health struct {
	Status                   string
	GallerySize              int
	EmbeddingCount           int
	ModelVersion             string
	Dim                      int
	ConsecutiveModelFailures int
}

// RecognizeOptions tune a single recognition.
type RecognizeOptions struct {
	// Threshold overrides the configured match threshold. It must lie within
	// the configured bounds.
	Threshold *float64
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg     config.EngineConfig
	model   *model.Model
	gallery Gallery
	matcher *matcher.Matcher
	logger  *zap.Logger

	modelFailures atomic.Int64
}

// New builds an engine. Every embedding already in the gallery must have the
// encoder's dimensionality; a mismatch is ErrDimensionMismatch.
func New(cfg config.EngineConfig, m *model.Model, g Gallery, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = constants.DefaultDegradedAfter
	}
	if cfg.MinThreshold <= 0 {
		cfg.MinThreshold = constants.MinDistanceThreshold
	}
	if cfg.MaxThreshold <= 0 {
		cfg.MaxThreshold = constants.MaxDistanceThreshold
	}
	if cfg.MatchThreshold == 0 {
		cfg.MatchThreshold = constants.DefaultDistanceThreshold
	}
	if cfg.MatchThreshold < cfg.MinThreshold || cfg.MatchThreshold > cfg.MaxThreshold {
		return nil, fmt.Errorf("match threshold %g outside [%g, %g]: %w", cfg.MatchThreshold, cfg.MinThreshold, cfg.MaxThreshold, face.ErrInvalidInput)
	}

	mt, err := matcher.New(cfg)
	if err != nil {
		return nil, err
	}

	for _, rec := range g.Snapshot().Records() {
		if rec.Dim() != m.Dim() {
			return nil, fmt.Errorf("identity %q has %d-dim embeddings, model %s produces %d: %w",
				rec.Key, rec.Dim(), m.Version, m.Dim(), face.ErrDimensionMismatch)
		}
	}

	return &Engine{
		cfg:     cfg,
		model:   m,
		gallery: g,
		matcher: mt,
		logger:  logger,
	}, nil
}

// Register adds the single face in image to identity key. Nothing is stored
// unless detection, encoding and the durable write all succeed.
func (e *Engine) Register(ctx context.Context, key string, image []byte) (IdentityStatus, error) {
	const op = "register"
	key, err := facematch.NormalizeIdentityKey(key)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}
	img, err := face.DecodeImage(image)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}

	regions, err := e.detect(ctx, img)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}
	switch {
	case len(regions) == 0:
		return IdentityStatus{}, face.WrapError(op, fmt.Errorf("no face detected: %w", face.ErrInvalidInput))
	case len(regions) > 1:
		return IdentityStatus{}, face.WrapError(op, fmt.Errorf("%d faces detected: %w", len(regions), face.ErrMultipleFaces))
	}

	emb, err := e.encode(ctx, img, regions[0])
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}

	rec, err := e.gallery.Put(ctx, key, emb)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}
	e.logger.Info("identity registered", zap.String("identity", key), zap.Int("embeddings", len(rec.Entries)))
	return statusOf(key, rec), nil
}

// RegisterEmbedding adds a precomputed embedding to identity key.
func (e *Engine) RegisterEmbedding(ctx context.Context, key string, emb face.Embedding) (IdentityStatus, error) {
	const op = "register_embedding"
	key, err := facematch.NormalizeIdentityKey(key)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}
	if err := e.checkEmbedding(emb); err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}

	rec, err := e.gallery.Put(ctx, key, emb)
	if err != nil {
		return IdentityStatus{}, face.WrapError(op, err)
	}
	e.logger.Info("identity registered from embedding", zap.String("identity", key), zap.Int("embeddings", len(rec.Entries)))
	return statusOf(key, rec), nil
}

// Recognize identifies the largest face in image. An image without a face
// yields the no-face label, not an error.
func (e *Engine) Recognize(ctx context.Context, image []byte, opts RecognizeOptions) (matcher.Result, error) {
	const op = "recognize"
	threshold, err := e.threshold(opts)
	if err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}
	img, err := face.DecodeImage(image)
	if err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}

	regions, err := e.detect(ctx, img)
	if err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}
	region, ok := facematch.LargestRegion(regions)
	if !ok {
		return matcher.Result{Label: face.LabelNoFace}, nil
	}

	emb, err := e.encode(ctx, img, region)
	if err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}
	return e.matcher.Query(emb, e.gallery.Snapshot(), threshold), nil
}

// RecognizeEmbedding matches a precomputed embedding.
func (e *Engine) RecognizeEmbedding(_ context.Context, emb face.Embedding, opts RecognizeOptions) (matcher.Result, error) {
	const op = "recognize_embedding"
	threshold, err := e.threshold(opts)
	if err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}
	if err := e.checkEmbedding(emb); err != nil {
		return matcher.Result{}, face.WrapError(op, err)
	}
	return e.matcher.Query(emb, e.gallery.Snapshot(), threshold), nil
}

// Delete removes identity key. Deleting an unknown identity is ErrNotFound.
func (e *Engine) Delete(ctx context.Context, key string) error {
	const op = "delete"
	key, err := facematch.NormalizeIdentityKey(key)
	if err != nil {
		return face.WrapError(op, err)
	}
	if err := e.gallery.Remove(ctx, key); err != nil {
		return face.WrapError(op, err)
	}
	e.logger.Info("identity deleted", zap.String("identity", key))
	return nil
}

// Status reports whether key is registered and with how many embeddings.
func (e *Engine) Status(key string) (IdentityStatus, error) {
	key, err := facematch.NormalizeIdentityKey(key)
	if err != nil {
		return IdentityStatus{}, face.WrapError("status", err)
	}
	rec, ok := e.gallery.Snapshot().Get(key)
	if !ok {
		return IdentityStatus{IdentityKey: key}, nil
	}
	return statusOf(key, rec), nil
}

// List returns every identity ordered by registration time.
func (e *Engine) List() []IdentityStatus {
	records := e.gallery.Snapshot().Records()
	out := make([]IdentityStatus, len(records))
	for i, rec := range records {
		out[i] = statusOf(rec.Key, rec)
	}
	return out
}

// Purge removes every identity and returns how many were removed.
func (e *Engine) Purge(ctx context.Context) (int, error) {
	n, err := e.gallery.Purge(ctx)
	if err != nil {
		return 0, face.WrapError("purge", err)
	}
	return n, nil
}

// Health reports degraded once DegradedAfter model calls in a row have failed.
func (e *Engine) Health() Health {
	snap := e.gallery.Snapshot()
	failures := int(e.modelFailures.Load())
	status := StatusOK
	if failures >= e.cfg.DegradedAfter {
		status = StatusDegraded
	}
	return Health{
		Status:                   status,
		GallerySize:              snap.Len(),
		EmbeddingCount:           snap.EmbeddingCount(),
		ModelVersion:             e.model.Version,
		Dim:                      e.model.Dim(),
		ConsecutiveModelFailures: failures,
	}
}

// ModelVersion returns the loaded model version.
func (e *Engine) ModelVersion() string {
	return e.model.Version
}

// Close releases the gallery.
func (e *Engine) Close() error {
	return e.gallery.Close()
}

func (e *Engine) threshold(opts RecognizeOptions) (float64, error) {
	if opts.Threshold == nil {
		return e.cfg.MatchThreshold, nil
	}
	t := *opts.Threshold
	if t < e.cfg.MinThreshold || t > e.cfg.MaxThreshold {
		return 0, fmt.Errorf("threshold %g outside [%g, %g]: %w", t, e.cfg.MinThreshold, e.cfg.MaxThreshold, face.ErrInvalidInput)
	}
	return t, nil
}

func (e *Engine) checkEmbedding(emb face.Embedding) error {
	if emb.Dim() != e.model.Dim() {
		return fmt.Errorf("embedding has %d components, model %s uses %d: %w", emb.Dim(), e.model.Version, e.model.Dim(), face.ErrDimensionMismatch)
	}
	return emb.Validate()
}

func (e *Engine) detect(ctx context.Context, img *face.Image) ([]face.Region, error) {
	regions, err := e.model.Detector.Detect(ctx, img)
	if err != nil {
		e.modelFailed(ctx, err)
		return nil, err
	}
	// Keep confidence order; drop boxes the encoder could not use.
	valid := regions[:0:0]
	for _, r := range regions {
		if facematch.ValidRegion(r, img.Bounds()) {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		e.modelSucceeded()
	}
	return valid, nil
}

func (e *Engine) encode(ctx context.Context, img *face.Image, region face.Region) (face.Embedding, error) {
	emb, err := e.model.Encoder.Encode(ctx, img, region)
	if err == nil {
		err = e.checkEmbedding(emb)
		if err != nil {
			err = fmt.Errorf("%w: encoder output rejected: %v", face.ErrEncodingFailed, err)
		}
	}
	if err != nil {
		e.modelFailed(ctx, err)
		return nil, err
	}
	e.modelSucceeded()
	return emb, nil
}

// modelFailed counts err towards degraded health. A caller that gave up is
// not a model failure.
func (e *Engine) modelFailed(ctx context.Context, err error) {
	if !errors.Is(err, face.ErrModel) && !errors.Is(err, face.ErrEncodingFailed) {
		return
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	n := e.modelFailures.Add(1)
	e.logger.Error("face model call failed", zap.Int64("consecutive_failures", n), zap.Error(err))
	if n == int64(e.cfg.DegradedAfter) {
		e.logger.Warn("engine health degraded", zap.Int64("consecutive_failures", n))
	}
}

func (e *Engine) modelSucceeded() {
	if prev := e.modelFailures.Swap(0); prev >= int64(e.cfg.DegradedAfter) {
		e.logger.Info("engine health recovered", zap.Int64("previous_failures", prev))
	}
}

func statusOf(key string, rec *gallery.Record) IdentityStatus {
	return IdentityStatus{
		IdentityKey:      key,
		Registered:       true,
		EmbeddingCount:   len(rec.Entries),
		RegisteredAt:     rec.RegisteredAt,
		LastRegisteredAt: rec.LastRegisteredAt(),
	}
}
