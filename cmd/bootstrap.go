package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/gallery/sqlstore"
	"github.com/kozaktomas/faceid/internal/logging"
	"github.com/kozaktomas/faceid/internal/model"
)

// app is a fully wired engine with its configuration and logger.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *engine.Engine
}

// loadConfig loads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openApp loads the model and the gallery and builds the engine.
func openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAppWith(ctx, cfg, logger)
}

func openAppWith(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	m, err := model.Open(cfg.Model)
	if err != nil {
		return nil, err
	}
	logger.Info("face model loaded", zap.String("version", m.Version), zap.Int("dim", m.Dim()))

	backend, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	store, err := gallery.Open(ctx, backend, gallery.Options{
		ModelVersion:  m.Version,
		Dim:           m.Dim(),
		MaxEmbeddings: cfg.Storage.MaxEmbeddingsPerIdentity,
		CorruptPolicy: cfg.Storage.CorruptPolicy,
		WriteRetries:  cfg.Storage.WriteRetries,
	}, logger.Named("gallery"))
	if err != nil {
		backend.Close()
		return nil, err
	}

	eng, err := engine.New(cfg.Engine, m, store, logger.Named("engine"))
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, engine: eng}, nil
}

// openBackend opens the durable gallery storage named by cfg.Backend.
func openBackend(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (gallery.Backend, error) {
	if cfg.Backend == config.BackendFile {
		backend, err := gallery.NewFileBackend(cfg.Path, logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("opening gallery directory: %w", err)
		}
		return backend, nil
	}
	store, err := sqlstore.Open(ctx, cfg, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("opening %s gallery: %w", cfg.Backend, err)
	}
	return store, nil
}

func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.logger.Error("closing gallery", zap.Error(err))
	}
	_ = a.logger.Sync()
}
