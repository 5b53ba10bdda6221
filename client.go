// Package newsagg for aggregating and caching news articles
package newsagg

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
)

const (
	defaultTTLSeconds        = 600 // 10 minutes
	defaultLiveFeedBatchSize = 5

	// DefaultKeyword is used when no query is given.
	DefaultKeyword = "Global"
)

const (
	PublishContentType = `application/rss+xml`
)

// Mode is the query mode of `FetchNews`.
type Mode string

const (
	// ModeSearch always queries upstream and accumulates results in the cache.
	ModeSearch Mode = "search"
	// ModeLiveFeed serves fixed-size batches from the cache, falling back to upstream.
	ModeLiveFeed Mode = "live-feed"
)

// ParseMode parses given mode name.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case ModeSearch, "":
		return ModeSearch, nil
	case ModeLiveFeed, "live", "livefeed", "live_feed":
		return ModeLiveFeed, nil
	default:
		return "", &CustomError{
			Message: fmt.Sprintf("Unknown mode: '%s'", name),
			Status:  http.StatusBadRequest,
		}
	}
}

// Client struct
type Client struct {
	providers []Provider
	cache     CacheBackend
	cursors   *cursorStore
	locks     keyedMutex

	batchSize int
	verbose   bool
}

// NewClient returns a new client with memory cache.
func NewClient(
	ttlSeconds int,
	providers ...Provider,
) *Client {
	return NewClientWithCache(newMemCache(ttlDuration(ttlSeconds)), ttlSeconds, providers...)
}

// NewClientWithStore returns a new client with DB cache over given document store.
func NewClientWithStore(
	store DocumentStore,
	ttlSeconds int,
	providers ...Provider,
) *Client {
	return NewClientWithCache(newDBCache(store, ttlDuration(ttlSeconds)), ttlSeconds, providers...)
}

// NewClientWithCache returns a new client with given cache backend.
//
// Cursors share the memory cache's store, so that they expire together with
// the cached articles. Other backends get a dedicated store with the same TTL.
func NewClientWithCache(
	cache CacheBackend,
	ttlSeconds int,
	providers ...Provider,
) *Client {
	var cursors *cursorStore
	if mem, ok := cache.(*memCache); ok {
		cursors = newCursorStore(mem.store)
	} else {
		cursors = newCursorStore(newTTLStore(ttlDuration(ttlSeconds)))
	}

	return &Client{
		providers: providers,
		cache:     cache,
		cursors:   cursors,

		batchSize: defaultLiveFeedBatchSize,
	}
}

// NewClientFromConfig returns a new client built from given config.
//
// It fails fast with `ErrUnsupportedCacheBackend` for unknown cache backends.
func NewClientFromConfig(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	providers, err := cfg.Providers()
	if err != nil {
		return nil, err
	}

	cache, err := NewCacheBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create a client with %s cache: %w", cfg.CacheBackend, err)
	}

	client := NewClientWithCache(cache, cfg.TTLSeconds, providers...)
	client.SetLiveFeedBatchSize(cfg.LiveFeedBatchSize)
	client.SetVerbose(cfg.Verbose)

	return client, nil
}

// SetLiveFeedBatchSize sets the number of articles served per live-feed request.
func (c *Client) SetLiveFeedBatchSize(size int) {
	if size > 0 {
		c.batchSize = size
	}
}

// SetVerbose sets the client's verbose mode.
func (c *Client) SetVerbose(v bool) {
	c.verbose = v
	if c.cache != nil {
		c.cache.SetVerbose(v)
	}
}

// CacheType returns the type of the client's cache backend.
func (c *Client) CacheType() CacheType {
	if c.cache == nil {
		return ""
	}
	return c.cache.Type()
}

// FetchNews returns articles for `query` in given `mode`.
//
// Search mode always queries upstream providers, stores the winner's articles
// in the cache and advances the keyword's cursor. Live-feed mode serves the
// cached batch at the cursor (or every cached article once the cursor has
// reached their end), querying upstream (without caching) only on a cache miss.
//
// Calls for the same keyword are serialized. Returned errors are `*CustomError`s.
func (c *Client) FetchNews(ctx context.Context, query string, mode Mode) (articles []Article, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultKeyword
	}

	defer func() {
		if err != nil {
			log.Printf("failed to fetch news for '%s' (%s): %s", query, mode, err)

			err = toCustomError(err)
		}
	}()

	if mode != ModeSearch && mode != ModeLiveFeed {
		return nil, &CustomError{
			Message: fmt.Sprintf("Unknown mode: '%s'", mode),
			Status:  http.StatusBadRequest,
		}
	}
	if c.cache == nil || !c.cache.Type().Supported() {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, c.CacheType())
	}

	unlock := c.locks.Lock(query)
	defer unlock()

	if mode == ModeLiveFeed {
		cached, err := c.cache.Get(ctx, query)
		if err != nil {
			return nil, err
		}

		cursor := c.cursors.Count(query)
		if len(cached) > 0 {
			// rows swept since the cursor was advanced
			if cursor > len(cached) {
				v(c.verbose, "resetting stale cursor of '%s' (was %d, %d cached)", query, cursor, len(cached))

				c.cursors.Reset(query)
				cursor = 0
			}

			if cursor < len(cached) {
				v(c.verbose, "serving %d cached article(s) for '%s' from offset %d", len(cached), query, cursor)

				return window(cached, cursor, c.batchSize), nil
			}

			v(c.verbose, "serving all %d cached article(s) for '%s'", len(cached), query)

			return cached, nil
		}

		// nothing cached anymore: the cursor points into evicted articles
		if cursor > 0 {
			v(c.verbose, "resetting stale cursor of '%s' (was %d)", query, cursor)

			c.cursors.Reset(query)
		}
	}

	v(c.verbose, "fetching news for '%s' from %d provider(s)", query, len(c.providers))

	fetched, err := RaceFetch(ctx, c.providers, query)
	if err != nil {
		return nil, err
	}

	var slice []Article
	if mode == ModeLiveFeed {
		slice = window(fetched, c.cursors.Count(query), c.batchSize)
	} else {
		slice = fetched
	}

	if len(slice) == 0 || mode == ModeLiveFeed {
		v(c.verbose, "returning %d uncached article(s) for '%s'", len(slice), query)

		return slice, nil
	}

	stored, err := c.cache.Put(ctx, query, slice)
	if err != nil {
		return nil, err
	}
	count := c.cursors.Advance(query, len(stored))

	v(c.verbose, "cached %d article(s) for '%s' (cursor: %d)", len(stored), query, count)

	return stored, nil
}

// CachedArticles returns the articles cached under `keyword`.
func (c *Client) CachedArticles(ctx context.Context, keyword string) ([]Article, error) {
	if c.cache == nil || !c.cache.Type().Supported() {
		return nil, toCustomError(fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, c.CacheType()))
	}

	articles, err := c.cache.Get(ctx, keyword)
	if err != nil {
		return nil, toCustomError(err)
	}
	if articles == nil {
		articles = []Article{}
	}
	return articles, nil
}

// MarkAsRead marks the cached article with given id as read.
func (c *Client) MarkAsRead(ctx context.Context, id string) (*Article, error) {
	return c.mark(ctx, id, FlagRead)
}

// MarkAsFavorite marks the cached article with given id as favorite.
func (c *Client) MarkAsFavorite(ctx context.Context, id string) (*Article, error) {
	return c.mark(ctx, id, FlagFavorite)
}

func (c *Client) mark(ctx context.Context, id string, flag ArticleFlag) (*Article, error) {
	if c.cache == nil || !c.cache.Type().Supported() {
		return nil, toCustomError(fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, c.CacheType()))
	}

	article, err := c.cache.MarkArticle(ctx, id, flag)
	if err != nil {
		if !errors.Is(err, ErrArticleNotFound) {
			log.Printf("failed to mark article '%s' as %s: %s", id, flag, err)
		}
		return nil, toCustomError(err)
	}
	return article, nil
}

// ListRead lists cached articles marked as read.
func (c *Client) ListRead(ctx context.Context) ([]Article, error) {
	return c.listMarked(ctx, FlagRead)
}

// ListFavorite lists cached articles marked as favorite.
func (c *Client) ListFavorite(ctx context.Context) ([]Article, error) {
	return c.listMarked(ctx, FlagFavorite)
}

func (c *Client) listMarked(ctx context.Context, flag ArticleFlag) ([]Article, error) {
	if c.cache == nil || !c.cache.Type().Supported() {
		return nil, toCustomError(fmt.Errorf("%w: '%s'", ErrUnsupportedCacheBackend, c.CacheType()))
	}

	articles, err := c.cache.ListMarked(ctx, flag)
	if err != nil {
		return nil, toCustomError(err)
	}
	return articles, nil
}

// PurgeExpired deletes expired cached articles and returns how many were deleted.
func (c *Client) PurgeExpired(ctx context.Context) (int64, error) {
	if c.cache == nil {
		return 0, toCustomError(ErrUnsupportedCacheBackend)
	}

	deleted, err := c.cache.PurgeExpired(ctx)
	if err != nil {
		return 0, toCustomError(err)
	}
	return deleted, nil
}

// Close closes the client's cache backend.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// PublishXML returns XML bytes (application/rss+xml) of the articles cached under `keyword`.
func (c *Client) PublishXML(
	ctx context.Context,
	keyword, title, link, description string,
) (bytes []byte, err error) {
	articles, err := c.CachedArticles(ctx, keyword)
	if err != nil {
		return nil, err
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: description,
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, article := range articles {
		content := html.EscapeString(article.Description)
		if article.Image != "" {
			content = fmt.Sprintf(`<img src="%s"><br><br>`, html.EscapeString(article.Image)) + content
		}
		if article.Source != "" {
			content += `<br><br>` + fmt.Sprintf(`Source: %s`, html.EscapeString(article.Source))
		}

		feedItem := feeds.Item{
			Id:    article.ID,
			Title: article.Title,
			Link: &feeds.Link{
				Href: article.URL,
			},
			Description: article.Description,
			Content:     content,
			Created:     article.PublishedAt,
			Updated:     article.CachedAt,
		}

		feedItems = append(feedItems, &feedItem)
	}
	feed.Items = feedItems

	rssFeed := (&feeds.Rss{
		Feed: feed,
	}).RssFeed()

	return xml.MarshalIndent(rssFeed.FeedXml(), "", "  ")
}

// set the clock of the client's TTL stores (for testing)
func (c *Client) setClock(clock func() time.Time) {
	switch cache := c.cache.(type) {
	case *memCache:
		cache.store.clock = clock
	case *dbCache:
		cache.clock = clock
	}
	c.cursors.store.clock = clock
}

// convert ttl seconds to duration, falling back to the default
func ttlDuration(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	return time.Duration(ttlSeconds) * time.Second
}
