package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Metric names.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// Matching strategy names.
const (
	StrategyExact = "exact"
	StrategyHNSW  = "hnsw"
)

// Storage backend names.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Corrupt record policies.
const (
	CorruptFail    = "fail"
	CorruptDiscard = "discard"
)

type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Web     WebConfig     `yaml:"web"`
	Log     LogConfig     `yaml:"log"`
}

type ModelConfig struct {
	Version         string        `yaml:"version"`           // detector/encoder pair, e.g. gray16-v1
	URL             string        `yaml:"url"`               // embedding service for remote models
	Timeout         time.Duration `yaml:"timeout"`           // per-request timeout for remote models
	EncodeRateLimit float64       `yaml:"encode_rate_limit"` // encode calls per second, 0 = unlimited
	EncodeBurst     int           `yaml:"encode_burst"`
}

type EngineConfig struct {
	MatchThreshold    float64 `yaml:"match_threshold"`
	MinThreshold      float64 `yaml:"min_threshold"` // lowest accepted per-request override
	MaxThreshold      float64 `yaml:"max_threshold"` // highest accepted per-request override
	Metric            string  `yaml:"metric"`
	Strategy          string  `yaml:"strategy"`
	ShortlistSize     int     `yaml:"shortlist_size"`
	HNSWMinEmbeddings int     `yaml:"hnsw_min_embeddings"`
	DegradedAfter     int     `yaml:"degraded_after"`
}

type StorageConfig struct {
	Backend                  string `yaml:"backend"`
	Path                     string `yaml:"path"`         // directory (file) or database file (sqlite)
	DatabaseURL              string `yaml:"database_url"` // DSN for postgres and mysql
	MaxEmbeddingsPerIdentity int    `yaml:"max_embeddings_per_identity"`
	CorruptPolicy            string `yaml:"corrupt_policy"`
	WriteRetries             int    `yaml:"write_retries"`
	MaxOpenConns             int    `yaml:"max_open_conns"`
	MaxIdleConns             int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxUploadSize  int64    `yaml:"max_upload_size"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt for settings where zero is meaningful, such as
// disabling retries.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Default returns the embedded defaults without file or environment overrides.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, the YAML file
// named by FACEID_CONFIG (if any) and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("FACEID_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Model.Version = envString("FACEID_MODEL_VERSION", c.Model.Version)
	c.Model.URL = envString("FACEID_MODEL_URL", c.Model.URL)
	c.Model.Timeout = envDuration("FACEID_MODEL_TIMEOUT", c.Model.Timeout)
	c.Model.EncodeRateLimit = envFloat("FACEID_ENCODE_RATE_LIMIT", c.Model.EncodeRateLimit)
	c.Model.EncodeBurst = envInt("FACEID_ENCODE_BURST", c.Model.EncodeBurst)

	c.Engine.MatchThreshold = envFloat("FACEID_MATCH_THRESHOLD", c.Engine.MatchThreshold)
	c.Engine.Metric = envString("FACEID_METRIC", c.Engine.Metric)
	c.Engine.Strategy = envString("FACEID_MATCH_STRATEGY", c.Engine.Strategy)

	c.Storage.Backend = envString("FACEID_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Path = envString("FACEID_STORAGE_PATH", c.Storage.Path)
	c.Storage.DatabaseURL = envString("DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.MaxEmbeddingsPerIdentity = envInt("FACEID_MAX_EMBEDDINGS", c.Storage.MaxEmbeddingsPerIdentity)
	c.Storage.CorruptPolicy = envString("FACEID_CORRUPT_POLICY", c.Storage.CorruptPolicy)
	c.Storage.WriteRetries = envNonNegInt("FACEID_WRITE_RETRIES", c.Storage.WriteRetries)
	c.Storage.MaxOpenConns = envNonNegInt("DATABASE_MAX_OPEN_CONNS", c.Storage.MaxOpenConns)
	c.Storage.MaxIdleConns = envNonNegInt("DATABASE_MAX_IDLE_CONNS", c.Storage.MaxIdleConns)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		c.Web.AllowedOrigins = nil
		for o := range strings.SplitSeq(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}

	c.Log.Level = envString("FACEID_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("FACEID_LOG_FORMAT", c.Log.Format)
}

// Validate checks option values and their combinations.
func (c *Config) Validate() error {
	var errs []error

	if c.Model.Version == "" {
		errs = append(errs, errors.New("model.version is required"))
	}
	if c.Model.EncodeRateLimit < 0 {
		errs = append(errs, errors.New("model.encode_rate_limit must not be negative"))
	}

	e := c.Engine
	if e.MinThreshold <= 0 || e.MinThreshold > e.MaxThreshold {
		errs = append(errs, fmt.Errorf("engine threshold bounds [%g, %g] are invalid", e.MinThreshold, e.MaxThreshold))
	} else if e.MatchThreshold < e.MinThreshold || e.MatchThreshold > e.MaxThreshold {
		errs = append(errs, fmt.Errorf("engine.match_threshold %g outside [%g, %g]", e.MatchThreshold, e.MinThreshold, e.MaxThreshold))
	}
	switch e.Metric {
	case MetricCosine, MetricEuclidean:
	default:
		errs = append(errs, fmt.Errorf("unknown engine.metric %q", e.Metric))
	}
	switch e.Strategy {
	case StrategyExact, StrategyHNSW:
	default:
		errs = append(errs, fmt.Errorf("unknown engine.strategy %q", e.Strategy))
	}
	if e.ShortlistSize < 1 {
		errs = append(errs, errors.New("engine.shortlist_size must be positive"))
	}
	if e.DegradedAfter < 1 {
		errs = append(errs, errors.New("engine.degraded_after must be positive"))
	}

	s := c.Storage
	switch s.Backend {
	case BackendFile, BackendSQLite:
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", s.Backend))
		}
	case BackendPostgres, BackendMySQL:
		if s.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.database_url is required for the %s backend", s.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", s.Backend))
	}
	if s.MaxEmbeddingsPerIdentity < 1 {
		errs = append(errs, errors.New("storage.max_embeddings_per_identity must be positive"))
	}
	switch s.CorruptPolicy {
	case CorruptFail, CorruptDiscard:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.corrupt_policy %q", s.CorruptPolicy))
	}
	if s.WriteRetries < 0 {
		errs = append(errs, errors.New("storage.write_retries must not be negative"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
