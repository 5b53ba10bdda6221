package newsagg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v2"
)

const (
	appName = "news-aggregator"

	defaultSimulationIntervalSeconds = 10

	PersistentStoreSQLite  = "sqlite"
	PersistentStoreMongoDB = "mongodb"
)

// Config is the configuration of the aggregation engine.
type Config struct {
	CacheBackend string `json:"cacheBackend" yaml:"cacheBackend"`
	TTLSeconds   int    `json:"ttlSeconds" yaml:"ttlSeconds"`

	LiveFeedSimulationEnabled bool   `json:"liveFeedSimulationEnabled" yaml:"liveFeedSimulationEnabled"`
	SimulationIntervalSeconds int    `json:"simulationIntervalSeconds" yaml:"simulationIntervalSeconds"`
	SimulationKeyword         string `json:"simulationKeyword" yaml:"simulationKeyword"`
	LiveFeedBatchSize         int    `json:"liveFeedBatchSize" yaml:"liveFeedBatchSize"`

	PersistentStore string `json:"persistentStore" yaml:"persistentStore"` // `sqlite` or `mongodb`
	SQLitePath      string `json:"sqlitePath,omitempty" yaml:"sqlitePath,omitempty"`
	MongoURI        string `json:"mongoURI,omitempty" yaml:"mongoURI,omitempty"`
	MongoDatabase   string `json:"mongoDatabase,omitempty" yaml:"mongoDatabase,omitempty"`
	MongoCollection string `json:"mongoCollection,omitempty" yaml:"mongoCollection,omitempty"`

	GNewsAPIKey           string `json:"gnewsAPIKey,omitempty" yaml:"gnewsAPIKey,omitempty"`
	NewsAPIKey            string `json:"newsAPIKey,omitempty" yaml:"newsAPIKey,omitempty"`
	RSSSearchURL          string `json:"rssSearchURL,omitempty" yaml:"rssSearchURL,omitempty"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		CacheBackend: string(CacheTypeEphemeral),
		TTLSeconds:   defaultTTLSeconds,

		SimulationIntervalSeconds: defaultSimulationIntervalSeconds,
		SimulationKeyword:         DefaultKeyword,
		LiveFeedBatchSize:         defaultLiveFeedBatchSize,

		PersistentStore: PersistentStoreSQLite,

		RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
	}
}

// DefaultConfigPath returns the default config file's path.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultSQLitePath returns the default SQLite database file's path.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, appName, "news.db")
}

// LoadConfig reads config from given file over the defaults.
//
// `.yaml` and `.yml` files are parsed as YAML, others as JSON (comments and
// trailing commas allowed).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config file '%s': %w", path, err)
		}
	default:
		if b, err = StandardizeJSON(b); err != nil {
			return nil, fmt.Errorf("failed to standardize config file '%s': %w", path, err)
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json config file '%s': %w", path, err)
		}
	}

	return cfg, nil
}

// ApplyEnv overrides config values with environment variables looked up with `lookup`
// (eg. `os.LookupEnv`).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	errs := []error{}

	str := func(target *string, keys ...string) {
		for _, key := range keys {
			if value, exists := lookup(key); exists && value != "" {
				*target = value
				return
			}
		}
	}
	integer := func(target *int, key string) {
		if value, exists := lookup(key); exists && value != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				*target = n
			} else {
				errs = append(errs, fmt.Errorf("invalid integer value for %s: '%s'", key, value))
			}
		}
	}
	boolean := func(target *bool, key string) {
		if value, exists := lookup(key); exists && value != "" {
			if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				*target = b
			} else {
				errs = append(errs, fmt.Errorf("invalid boolean value for %s: '%s'", key, value))
			}
		}
	}

	str(&c.CacheBackend, "NEWS_CACHE_TYPE", "CACHE_TYPE")
	integer(&c.TTLSeconds, "NEWS_TTL_SECONDS")
	boolean(&c.LiveFeedSimulationEnabled, "SIMULATE_LIVE_FEED")
	str(&c.GNewsAPIKey, "GNEWS_API_KEY")
	str(&c.NewsAPIKey, "NEWS_API_ORG")
	str(&c.MongoURI, "DB_CON_STR")
	str(&c.PersistentStore, "NEWS_PERSISTENT_STORE")
	str(&c.SQLitePath, "NEWS_SQLITE_PATH")
	str(&c.RSSSearchURL, "NEWS_RSS_SEARCH_URL")
	boolean(&c.Verbose, "NEWS_VERBOSE")

	return errors.Join(errs...)
}

// Validate checks the config, failing with `ErrUnsupportedCacheBackend`
// for unknown cache backends.
func (c *Config) Validate() error {
	if _, err := ParseCacheType(c.CacheBackend); err != nil {
		return err
	}

	errs := []error{}
	if c.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ttlSeconds must be positive: %d", c.TTLSeconds))
	}
	if c.LiveFeedSimulationEnabled && c.SimulationIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("simulationIntervalSeconds must be positive: %d", c.SimulationIntervalSeconds))
	}
	if c.LiveFeedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("liveFeedBatchSize must be positive: %d", c.LiveFeedBatchSize))
	}
	if c.RequestTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("requestTimeoutSeconds must not be negative: %d", c.RequestTimeoutSeconds))
	}
	if cacheType, _ := ParseCacheType(c.CacheBackend); cacheType == CacheTypePersistent {
		switch c.PersistentStore {
		case PersistentStoreSQLite, "":
		case PersistentStoreMongoDB:
			if c.MongoURI == "" {
				errs = append(errs, fmt.Errorf("mongoURI is required for persistent store '%s'", c.PersistentStore))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown persistent store: '%s'", c.PersistentStore))
		}
	}

	return errors.Join(errs...)
}

// CacheType returns the parsed cache backend type.
func (c *Config) CacheType() (CacheType, error) {
	return ParseCacheType(c.CacheBackend)
}

// TTL returns the cache TTL.
func (c *Config) TTL() time.Duration {
	return ttlDuration(c.TTLSeconds)
}

// SimulationInterval returns the interval of live feed simulation.
func (c *Config) SimulationInterval() time.Duration {
	if c.SimulationIntervalSeconds <= 0 {
		return defaultSimulationIntervalSeconds * time.Second
	}
	return time.Duration(c.SimulationIntervalSeconds) * time.Second
}

// Providers returns the upstream providers which have credentials configured.
func (c *Config) Providers() ([]Provider, error) {
	timeout := c.RequestTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultRequestTimeoutSeconds
	}
	httpClient := &http.Client{
		Timeout: time.Duration(timeout) * time.Second,
	}

	providers := []Provider{}
	if c.GNewsAPIKey != "" {
		p := NewGNewsProvider(c.GNewsAPIKey)
		p.SetHTTPClient(httpClient)
		providers = append(providers, p)
	}
	if c.NewsAPIKey != "" {
		p := NewNewsAPIProvider(c.NewsAPIKey)
		p.SetHTTPClient(httpClient)
		providers = append(providers, p)
	}
	if c.RSSSearchURL != "" {
		p := NewRSSProvider(c.RSSSearchURL)
		p.SetHTTPClient(httpClient)
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no news provider configured: set gnewsAPIKey, newsAPIKey or rssSearchURL")
	}
	return providers, nil
}

// NewCacheBackend returns the cache backend selected by given config.
func NewCacheBackend(ctx context.Context, cfg *Config) (CacheBackend, error) {
	cacheType, err := cfg.CacheType()
	if err != nil {
		return nil, err
	}

	switch cacheType {
	case CacheTypeEphemeral:
		return newMemCache(cfg.TTL()), nil
	case CacheTypePersistent:
		var store DocumentStore
		switch cfg.PersistentStore {
		case PersistentStoreMongoDB:
			if store, err = NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection); err != nil {
				return nil, err
			}
		default:
			path := cfg.SQLitePath
			if path == "" {
				path = DefaultSQLitePath()
			}
			if store, err = NewSQLiteStore(path); err != nil {
				return nil, err
			}
		}
		return newDBCache(store, cfg.TTL()), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, cfg.CacheBackend)
	}
}
