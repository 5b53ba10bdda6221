package newsagg

import (
	"context"
	"fmt"
	"strings"
)

// CacheType is the kind of a cache backend.
type CacheType string

const (
	CacheTypeEphemeral  CacheType = "ephemeral"  // process-local, TTL from last write
	CacheTypePersistent CacheType = "persistent" // durable rows, TTL from `CachedAt`
)

// ParseCacheType parses given cache backend name.
//
// Names used by older deployments (`node_cache`, `mongo_db`) are accepted too.
func ParseCacheType(name string) (CacheType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(CacheTypeEphemeral), "memory", "node_cache":
		return CacheTypeEphemeral, nil
	case string(CacheTypePersistent), "db", "mongo_db":
		return CacheTypePersistent, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, name)
	}
}

// Supported tells if the cache type is one of the known variants.
func (t CacheType) Supported() bool {
	return t == CacheTypeEphemeral || t == CacheTypePersistent
}

// CacheBackend is an interface of news articles' cache, keyed by query keyword.
type CacheBackend interface {
	Type() CacheType

	// Get returns the articles cached under `keyword`, in delivery order.
	// An empty result means absent.
	Get(ctx context.Context, keyword string) ([]Article, error)

	// Put writes `articles` under `keyword` and returns them as stored.
	Put(ctx context.Context, keyword string, articles []Article) ([]Article, error)

	// PurgeExpired deletes expired entries and returns how many were deleted.
	PurgeExpired(ctx context.Context) (int64, error)

	MarkArticle(ctx context.Context, id string, flag ArticleFlag) (*Article, error)
	ListMarked(ctx context.Context, flag ArticleFlag) ([]Article, error)

	Close() error
	SetVerbose(v bool)
}
