package newsagg

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

////////////////
//
// (DB cache)
//

// DocumentStore is the durable store behind the persistent cache.
type DocumentStore interface {
	// Insert appends given rows as-is and returns them as inserted.
	Insert(ctx context.Context, articles []Article) ([]Article, error)

	// FindByKeyword returns all rows with given keyword in write order.
	FindByKeyword(ctx context.Context, keyword string) ([]Article, error)

	// DeleteCachedBefore deletes rows cached before `cutoff`.
	DeleteCachedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SetFlag sets `flag` on the row with given id; ErrArticleNotFound if none.
	SetFlag(ctx context.Context, id string, flag ArticleFlag) (*Article, error)

	// FindFlagged returns rows with `flag` set in write order.
	FindFlagged(ctx context.Context, flag ArticleFlag) ([]Article, error)

	Close() error
}

// db cache
type dbCache struct {
	store DocumentStore
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	lastSeq int64

	verbose bool
}

// Type returns the cache type.
func (c *dbCache) Type() CacheType {
	return CacheTypePersistent
}

// Get returns every durable row of `keyword`, regardless of its age.
func (c *dbCache) Get(ctx context.Context, keyword string) ([]Article, error) {
	v(c.verbose, "dbCache - fetching cached articles for keyword: %s", keyword)

	articles, err := c.store.FindByKeyword(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cached articles for keyword '%s': %w", keyword, err)
	}
	return articles, nil
}

// Put appends `articles` as new rows under `keyword` and returns the inserted rows.
func (c *dbCache) Put(ctx context.Context, keyword string, articles []Article) ([]Article, error) {
	v(c.verbose, "dbCache - inserting %d article(s) for keyword: %s", len(articles), keyword)

	if len(articles) == 0 {
		return []Article{}, nil
	}

	now := c.clock().UTC()
	rows := stampArticles(articles, keyword, now)

	c.mu.Lock()
	seq := max(now.UnixNano(), c.lastSeq+1)
	for i := range rows {
		rows[i].Seq = seq + int64(i)
	}
	c.lastSeq = seq + int64(len(rows)-1)
	c.mu.Unlock()

	inserted, err := c.store.Insert(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cached articles for keyword '%s': %w", keyword, err)
	}
	return inserted, nil
}

// PurgeExpired deletes rows whose `CachedAt` is older than the TTL.
func (c *dbCache) PurgeExpired(ctx context.Context) (int64, error) {
	v(c.verbose, "dbCache - deleting cached articles older than %s", c.ttl)

	deleted, err := c.store.DeleteCachedBefore(ctx, c.clock().UTC().Add(-c.ttl))
	if err != nil {
		log.Printf("failed to delete cached articles older than %s: %s", c.ttl, err)
		return 0, fmt.Errorf("failed to delete expired articles: %w", err)
	}
	if deleted > 0 {
		v(c.verbose, "dbCache - deleted %d cached article(s)", deleted)
	}
	return deleted, nil
}

// MarkArticle sets `flag` on the row with given `id`.
func (c *dbCache) MarkArticle(ctx context.Context, id string, flag ArticleFlag) (*Article, error) {
	v(c.verbose, "dbCache - marking cached article with id: %s as %s", id, flag)

	return c.store.SetFlag(ctx, id, flag)
}

// ListMarked lists rows which have `flag` set.
func (c *dbCache) ListMarked(ctx context.Context, flag ArticleFlag) ([]Article, error) {
	v(c.verbose, "dbCache - listing cached articles marked as %s", flag)

	return c.store.FindFlagged(ctx, flag)
}

// Close closes the underlying store.
func (c *dbCache) Close() error {
	return c.store.Close()
}

// SetVerbose sets the verbosity of cache.
func (c *dbCache) SetVerbose(v bool) {
	c.verbose = v
}

// return a new db cache over given store
func newDBCache(store DocumentStore, ttl time.Duration) *dbCache {
	return &dbCache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
	}
}
