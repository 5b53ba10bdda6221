package newsagg

import (
	"context"
	"slices"
	"strings"
	"time"
)

////////////////
//
// (memory cache)
//

const (
	articlesKeyPrefix = "news:"
	countKeyPrefix    = "count:"
)

// memory cache
type memCache struct {
	store *ttlStore

	verbose bool
}

// Type returns the cache type.
func (c *memCache) Type() CacheType {
	return CacheTypeEphemeral
}

// Get returns the live articles cached under `keyword`.
func (c *memCache) Get(_ context.Context, keyword string) ([]Article, error) {
	v(c.verbose, "memCache - fetching cached articles for keyword: %s", keyword)

	if value, exists := c.store.get(articlesKey(keyword)); exists {
		return slices.Clone(value.([]Article)), nil
	}
	return nil, nil
}

// Put prepends `articles` to the ones already cached under `keyword`
// (newest first) and restarts the entry's TTL.
func (c *memCache) Put(_ context.Context, keyword string, articles []Article) ([]Article, error) {
	v(c.verbose, "memCache - caching %d article(s) for keyword: %s", len(articles), keyword)

	stamped := stampArticles(articles, "", c.store.clock().UTC())

	c.store.update(articlesKey(keyword), func(old any, exists bool) any {
		merged := slices.Clone(stamped)
		if exists {
			merged = append(merged, old.([]Article)...)
		}
		return merged
	})

	return slices.Clone(stamped), nil
}

// PurgeExpired does nothing: entries expire lazily.
func (c *memCache) PurgeExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// MarkArticle sets `flag` on the cached article with given `id`.
func (c *memCache) MarkArticle(_ context.Context, id string, flag ArticleFlag) (*Article, error) {
	v(c.verbose, "memCache - marking cached article with id: %s as %s", id, flag)

	for _, key := range c.store.keys() {
		if !strings.HasPrefix(key, articlesKeyPrefix) {
			continue
		}

		var marked *Article
		c.store.modify(key, func(old any) any {
			articles := slices.Clone(old.([]Article))
			for i := range articles {
				if articles[i].ID == id {
					articles[i].setFlag(flag)
					found := articles[i]
					marked = &found
				}
			}
			return articles
		})
		if marked != nil {
			return marked, nil
		}
	}

	return nil, ErrArticleNotFound
}

// ListMarked lists cached articles which have `flag` set.
func (c *memCache) ListMarked(_ context.Context, flag ArticleFlag) ([]Article, error) {
	v(c.verbose, "memCache - listing cached articles marked as %s", flag)

	marked := []Article{}
	for _, key := range c.store.keys() {
		if !strings.HasPrefix(key, articlesKeyPrefix) {
			continue
		}
		if value, exists := c.store.get(key); exists {
			for _, article := range value.([]Article) {
				if article.hasFlag(flag) {
					marked = append(marked, article)
				}
			}
		}
	}

	return marked, nil
}

// Close does nothing for memory cache.
func (c *memCache) Close() error {
	return nil
}

// SetVerbose sets the verbosity of cache.
func (c *memCache) SetVerbose(v bool) {
	c.verbose = v
}

// return a new memory cache
func newMemCache(ttl time.Duration) *memCache {
	return &memCache{
		store: newTTLStore(ttl),
	}
}

func articlesKey(keyword string) string {
	return articlesKeyPrefix + keyword
}

func countKey(keyword string) string {
	return countKeyPrefix + keyword
}
