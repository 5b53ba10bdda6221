package newsagg

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// return a new client with SQLite DB cache on a temporary file
func newTestDBClient(t *testing.T, ttlSeconds int, providers ...Provider) *Client {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %s", err)
	}
	client := NewClientWithStore(store, ttlSeconds, providers...)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// check that `err` is a `*CustomError` with given status
func expectStatus(t *testing.T, err error, status int) *CustomError {
	t.Helper()

	var custom *CustomError
	if !errors.As(err, &custom) {
		t.Fatalf("expected *CustomError, got: %T (%v)", err, err)
	}
	if custom.Status != status {
		t.Errorf("expected status %d, got: %d (%s)", status, custom.Status, custom.Message)
	}
	return custom
}

// test search with a cold cache
func TestFetchNewsSearchColdCache(t *testing.T) {
	ctx := context.Background()

	for name, client := range map[string]*Client{
		"ephemeral":  NewClient(600, succeeding("gnews", 8, 0), succeeding("newsapi", 8, 0)),
		"persistent": newTestDBClient(t, 600, succeeding("gnews", 8, 0), succeeding("newsapi", 8, 0)),
	} {
		articles, err := client.FetchNews(ctx, "Tech", ModeSearch)
		if err != nil {
			t.Fatalf("%s: failed to fetch news: %s", name, err)
		}
		if len(articles) != 8 {
			t.Errorf("%s: expected 8 articles of the winning provider, got: %d", name, len(articles))
		}
		winner := strings.SplitN(articles[0].Title, "-", 2)[0]
		for _, article := range articles {
			if !strings.HasPrefix(article.Title, winner+"-") {
				t.Errorf("%s: expected articles of a single provider, got: '%s'", name, article.Title)
			}
			if article.ID == "" {
				t.Errorf("%s: expected stored article to have an id", name)
			}
		}

		cached, _ := client.CachedArticles(ctx, "Tech")
		if len(cached) != 8 {
			t.Errorf("%s: expected 8 cached articles, got: %d", name, len(cached))
		}
		if count := client.cursors.Count("Tech"); count != 8 {
			t.Errorf("%s: expected cursor 8, got: %d", name, count)
		}
	}
}

// test that repeated searches accumulate batches
func TestFetchNewsSearchAccumulates(t *testing.T) {
	ctx := context.Background()

	batch := 0
	provider := &stubProvider{
		name: "counting",
		fetch: func(query string) ([]Article, error) {
			batch++
			return sampleArticles(strings.Repeat("b", batch), 2), nil
		},
	}

	for name, tc := range map[string]struct {
		client     *Client
		firstTitle string
	}{
		"ephemeral (newest first)": {
			client:     NewClient(600, provider),
			firstTitle: "bb #0",
		},
		"persistent (write order)": {
			client:     newTestDBClient(t, 600, provider),
			firstTitle: "b #0",
		},
	} {
		batch = 0

		for j := 0; j < 2; j++ {
			if _, err := tc.client.FetchNews(ctx, "Tech", ModeSearch); err != nil {
				t.Fatalf("%s: failed to fetch news: %s", name, err)
			}
		}

		cached, _ := tc.client.CachedArticles(ctx, "Tech")
		if len(cached) != 4 {
			t.Errorf("%s: expected 4 cached articles, got: %d", name, len(cached))
		} else if cached[0].Title != tc.firstTitle {
			t.Errorf("%s: expected first cached article '%s', got: '%s'", name, tc.firstTitle, cached[0].Title)
		}
		if count := tc.client.cursors.Count("Tech"); count != 4 {
			t.Errorf("%s: expected cursor 4, got: %d", name, count)
		}
	}
}

// test live feed served from a warm cache
func TestFetchNewsLiveFeedWarmCache(t *testing.T) {
	ctx := context.Background()
	provider := succeeding("gnews", 20, 0)
	client := NewClient(600, provider)

	cached, _ := client.cache.Put(ctx, "Global", sampleArticles("global", 12))
	client.cursors.Advance("Global", 3)

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if len(articles) != 5 {
		t.Fatalf("expected 5 articles, got: %d", len(articles))
	}
	for i, article := range articles {
		if article.ID != cached[3+i].ID {
			t.Errorf("#%d: expected cached article at offset %d, got: '%s'", i, 3+i, article.Title)
		}
	}
	if calls := provider.calls.Load(); calls != 0 {
		t.Errorf("expected no upstream call on a live feed cache hit, got: %d", calls)
	}
	if count := client.cursors.Count("Global"); count != 3 {
		t.Errorf("expected cursor to stay at 3, got: %d", count)
	}
}

// test live feed once the cursor has reached the end of the cached articles
func TestFetchNewsLiveFeedFullySurfaced(t *testing.T) {
	ctx := context.Background()
	provider := succeeding("gnews", 20, 0)
	client := NewClient(600, provider)

	cached, _ := client.cache.Put(ctx, "Global", sampleArticles("global", 12))
	client.cursors.Advance("Global", 12)

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if len(articles) != 12 {
		t.Fatalf("expected all 12 cached articles, got: %d", len(articles))
	}
	if articles[0].ID != cached[0].ID {
		t.Errorf("expected cached articles in delivery order, got: '%s' first", articles[0].Title)
	}
	if count := client.cursors.Count("Global"); count != 12 {
		t.Errorf("expected cursor to stay at 12, got: %d", count)
	}
	if calls := provider.calls.Load(); calls != 0 {
		t.Errorf("expected no upstream call, got: %d", calls)
	}
}

// test live feed following searches, through `FetchNews` only
func TestFetchNewsLiveFeedAfterSearch(t *testing.T) {
	ctx := context.Background()

	memProvider, dbProvider := succeeding("gnews", 10, 0), succeeding("gnews", 10, 0)

	for name, tc := range map[string]struct {
		client   *Client
		provider *stubProvider
	}{
		"ephemeral":  {client: NewClient(600, memProvider), provider: memProvider},
		"persistent": {client: newTestDBClient(t, 600, dbProvider), provider: dbProvider},
	} {
		searched, err := tc.client.FetchNews(ctx, "Tech", ModeSearch)
		if err != nil {
			t.Fatalf("%s: failed to search: %s", name, err)
		}

		for i := 0; i < 3; i++ {
			articles, err := tc.client.FetchNews(ctx, "Tech", ModeLiveFeed)
			if err != nil {
				t.Fatalf("%s: #%d: failed to fetch live feed: %s", name, i, err)
			}
			if len(articles) != len(searched) {
				t.Fatalf("%s: #%d: expected %d cached articles, got: %d", name, i, len(searched), len(articles))
			}
			for j := range articles {
				if articles[j].ID != searched[j].ID {
					t.Errorf("%s: #%d: expected cached article '%s' at %d, got: '%s'", name, i, searched[j].Title, j, articles[j].Title)
				}
			}
		}
		if calls := tc.provider.calls.Load(); calls != 1 {
			t.Errorf("%s: expected only the search to go upstream, got: %d call(s)", name, calls)
		}
	}
}

// test live feed with an empty upstream result
func TestFetchNewsLiveFeedEmptySlice(t *testing.T) {
	ctx := context.Background()
	client := NewClient(600, succeeding("empty", 0, 0))

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if articles == nil || len(articles) != 0 {
		t.Errorf("expected an empty (non-nil) result, got: %v", articles)
	}
	if cached, _ := client.CachedArticles(ctx, "Global"); len(cached) != 0 {
		t.Errorf("expected no cache write, got: %d cached article(s)", len(cached))
	}
	if count := client.cursors.Count("Global"); count != 0 {
		t.Errorf("expected no cursor change, got: %d", count)
	}
}

// test live feed with a cold cache
func TestFetchNewsLiveFeedColdCache(t *testing.T) {
	ctx := context.Background()
	provider := succeeding("gnews", 8, 0)
	client := NewClient(600, provider)

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if len(articles) != 5 || articles[0].Title != "gnews-Global #0" {
		t.Errorf("expected the first batch of upstream articles, got: %+v", articles)
	}
	if calls := provider.calls.Load(); calls != 1 {
		t.Errorf("expected 1 upstream call, got: %d", calls)
	}
	if cached, _ := client.CachedArticles(ctx, "Global"); len(cached) != 0 {
		t.Errorf("expected live feed not to write to cache, got: %d", len(cached))
	}
	if count := client.cursors.Count("Global"); count != 0 {
		t.Errorf("expected cursor to stay at 0, got: %d", count)
	}

	// upstream without any article
	empty := NewClient(600, succeeding("empty", 0, 0))
	if articles, err := empty.FetchNews(ctx, "Global", ModeSearch); err != nil || len(articles) != 0 {
		t.Errorf("expected empty search result, got: %d, err: %v", len(articles), err)
	}
	if count := empty.cursors.Count("Global"); count != 0 {
		t.Errorf("expected no cursor advance for an empty result, got: %d", count)
	}
}

// test that a cursor pointing into purged articles is reset
func TestFetchNewsLiveFeedResetsStaleCursor(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := succeeding("gnews", 8, 0)
	client := newTestDBClient(t, 600, provider)
	client.setClock(clock.Now)

	if _, err := client.FetchNews(ctx, "Global", ModeSearch); err != nil {
		t.Fatalf("failed to search: %s", err)
	}

	// rows purged while the cursor is still alive
	clock.Advance(601 * time.Second)
	if deleted, err := client.PurgeExpired(ctx); err != nil || deleted != 8 {
		t.Fatalf("expected 8 purged rows, got: %d, err: %v", deleted, err)
	}
	client.cursors.Advance("Global", 4)

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if len(articles) != 5 || articles[0].Title != "gnews-Global #0" {
		t.Errorf("expected the first upstream batch after cursor reset, got: %+v", articles)
	}
	if count := client.cursors.Count("Global"); count != 0 {
		t.Errorf("expected reset cursor, got: %d", count)
	}
}

// test that a cursor beyond the rows left by a partial sweep is reset
func TestFetchNewsLiveFeedAfterPartialPurge(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := succeeding("gnews", 8, 0)
	client := newTestDBClient(t, 600, provider)
	client.setClock(clock.Now)

	if _, err := client.FetchNews(ctx, "Global", ModeSearch); err != nil {
		t.Fatalf("failed to search: %s", err)
	}
	clock.Advance(400 * time.Second)
	second, err := client.FetchNews(ctx, "Global", ModeSearch)
	if err != nil {
		t.Fatalf("failed to search: %s", err)
	}

	// only the first batch is older than the ttl
	clock.Advance(201 * time.Second)
	if deleted, err := client.PurgeExpired(ctx); err != nil || deleted != 8 {
		t.Fatalf("expected 8 purged rows, got: %d, err: %v", deleted, err)
	}
	if count := client.cursors.Count("Global"); count != 16 {
		t.Fatalf("expected cursor 16 before live feed, got: %d", count)
	}

	articles, err := client.FetchNews(ctx, "Global", ModeLiveFeed)
	if err != nil {
		t.Fatalf("failed to fetch live feed: %s", err)
	}
	if len(articles) != 5 {
		t.Fatalf("expected the first batch of surviving rows, got: %d", len(articles))
	}
	for i, article := range articles {
		if article.ID != second[i].ID {
			t.Errorf("#%d: expected surviving row '%s', got: '%s'", i, second[i].Title, article.Title)
		}
	}
	if count := client.cursors.Count("Global"); count != 0 {
		t.Errorf("expected reset cursor, got: %d", count)
	}
	if calls := provider.calls.Load(); calls != 2 {
		t.Errorf("expected no upstream call for live feed, got: %d search call(s)", calls)
	}
}

// test that memory cache entries and cursors expire together
func TestFetchNewsEphemeralExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := succeeding("gnews", 8, 0)
	client := NewClient(60, provider)
	client.setClock(clock.Now)

	_, _ = client.FetchNews(ctx, "Tech", ModeSearch)
	clock.Advance(time.Minute)

	if cached, _ := client.CachedArticles(ctx, "Tech"); len(cached) != 0 {
		t.Errorf("expected expired cache entry, got: %d", len(cached))
	}
	if count := client.cursors.Count("Tech"); count != 0 {
		t.Errorf("expected expired cursor, got: %d", count)
	}

	if _, err := client.FetchNews(ctx, "Tech", ModeLiveFeed); err != nil {
		t.Errorf("failed to fetch live feed: %s", err)
	}
	if calls := provider.calls.Load(); calls != 2 {
		t.Errorf("expected live feed to go upstream after expiry, got: %d call(s)", calls)
	}
}

// test that an unsupported cache backend fails before any network call
func TestFetchNewsUnsupportedCacheBackend(t *testing.T) {
	ctx := context.Background()
	provider := succeeding("gnews", 8, 0)
	client := NewClientWithCache(&unknownCache{memCache: *newMemCache(time.Minute)}, 60, provider)

	for _, mode := range []Mode{ModeLiveFeed, ModeSearch} {
		_, err := client.FetchNews(ctx, "Tech", mode)
		expectStatus(t, err, http.StatusInternalServerError)
		if !errors.Is(err, ErrUnsupportedCacheBackend) {
			t.Errorf("%s: expected ErrUnsupportedCacheBackend, got: %v", mode, err)
		}
	}
	if calls := provider.calls.Load(); calls != 0 {
		t.Errorf("expected no upstream call, got: %d", calls)
	}
}

// test translation of upstream failures
func TestFetchNewsUpstreamFailures(t *testing.T) {
	ctx := context.Background()

	for name, tc := range map[string]struct {
		providers []Provider
		status    int
	}{
		"unreachable": {
			providers: []Provider{failing("a", ErrUpstreamRejected, 0), failing("b", ErrUpstreamUnreachable, 0)},
			status:    http.StatusServiceUnavailable,
		},
		"rejected": {
			providers: []Provider{failing("a", ErrUpstreamRejected, 0), failing("b", ErrUpstreamRejected, 0)},
			status:    http.StatusBadGateway,
		},
		"no providers": {
			providers: nil,
			status:    http.StatusInternalServerError,
		},
	} {
		client := NewClient(600, tc.providers...)

		_, err := client.FetchNews(ctx, "Tech", ModeSearch)
		custom := expectStatus(t, err, tc.status)
		if len(custom.Messages()) != max(len(tc.providers), 1) {
			t.Errorf("%s: expected one message per provider, got: %v", name, custom.Messages())
		}
		if count := client.cursors.Count("Tech"); count != 0 {
			t.Errorf("%s: expected no cursor advance on failure, got: %d", name, count)
		}
	}
}

// test that concurrent searches for the same keyword are serialized
func TestFetchNewsConcurrentSearches(t *testing.T) {
	ctx := context.Background()

	var inFlight, maxInFlight atomic.Int32
	provider := &stubProvider{
		name: "tracking",
		fetch: func(query string) ([]Article, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return sampleArticles(query, 3), nil
		},
	}
	client := NewClient(600, provider)

	var wg sync.WaitGroup
	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.FetchNews(ctx, "Tech", ModeSearch); err != nil {
				t.Errorf("failed to fetch news: %s", err)
			}
		}()
	}
	wg.Wait()

	if m := maxInFlight.Load(); m != 1 {
		t.Errorf("expected searches for the same keyword to be serialized, max in flight: %d", m)
	}
	if count := client.cursors.Count("Tech"); count != 30 {
		t.Errorf("expected cursor 30, got: %d", count)
	}
	if cached, _ := client.CachedArticles(ctx, "Tech"); len(cached) != 30 {
		t.Errorf("expected 30 cached articles, got: %d", len(cached))
	}
}

// test defaults and validation of queries and modes
func TestFetchNewsQueryAndMode(t *testing.T) {
	ctx := context.Background()
	client := NewClient(600, succeeding("gnews", 2, 0))

	if articles, err := client.FetchNews(ctx, "  ", ModeSearch); err != nil || articles[0].Title != "gnews-Global #0" {
		t.Errorf("expected empty query to default to '%s', got: %+v, err: %v", DefaultKeyword, articles, err)
	}

	_, err := client.FetchNews(ctx, "Tech", Mode("archive"))
	expectStatus(t, err, http.StatusBadRequest)

	for name, expected := range map[string]Mode{
		"":          ModeSearch,
		"search":    ModeSearch,
		"live-feed": ModeLiveFeed,
		"LIVE":      ModeLiveFeed,
	} {
		if mode, err := ParseMode(name); err != nil || mode != expected {
			t.Errorf("expected mode '%s' for '%s', got: '%s', err: %v", expected, name, mode, err)
		}
	}
	if _, err := ParseMode("archive"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}

// test marking articles through the client
func TestClientMarkArticles(t *testing.T) {
	ctx := context.Background()

	for name, client := range map[string]*Client{
		"ephemeral":  NewClient(600, succeeding("gnews", 3, 0)),
		"persistent": newTestDBClient(t, 600, succeeding("gnews", 3, 0)),
	} {
		articles, err := client.FetchNews(ctx, "Tech", ModeSearch)
		if err != nil {
			t.Fatalf("%s: failed to fetch news: %s", name, err)
		}

		if read, err := client.MarkAsRead(ctx, articles[0].ID); err != nil || !read.Read {
			t.Errorf("%s: failed to mark as read: %+v, err: %v", name, read, err)
		}
		if favorite, err := client.MarkAsFavorite(ctx, articles[1].ID); err != nil || !favorite.Favorite {
			t.Errorf("%s: failed to mark as favorite: %+v, err: %v", name, favorite, err)
		}
		_, err = client.MarkAsRead(ctx, "no-such-id")
		expectStatus(t, err, http.StatusNotFound)

		if read, _ := client.ListRead(ctx); len(read) != 1 || read[0].ID != articles[0].ID {
			t.Errorf("%s: unexpected read articles: %+v", name, read)
		}
		if favorite, _ := client.ListFavorite(ctx); len(favorite) != 1 || favorite[0].ID != articles[1].ID {
			t.Errorf("%s: unexpected favorite articles: %+v", name, favorite)
		}
	}
}

// test publishing cached articles as RSS
func TestPublishXML(t *testing.T) {
	ctx := context.Background()
	client := NewClient(600, succeeding("gnews", 2, 0))

	articles, _ := client.FetchNews(ctx, "Tech", ModeSearch)

	bytes, err := client.PublishXML(ctx, "Tech", "Tech news", "https://example.com/news/rss/Tech", "cached tech news")
	if err != nil {
		t.Fatalf("failed to publish xml: %s", err)
	}

	feeds, err := ParseXML(bytes)
	if err != nil {
		t.Fatalf("failed to parse published xml: %s", err)
	}
	if feeds.Channel.Title != "Tech news" {
		t.Errorf("expected channel title 'Tech news', got: '%s'", feeds.Channel.Title)
	}
	if len(feeds.Channel.Items) != 2 {
		t.Fatalf("expected 2 items, got: %d", len(feeds.Channel.Items))
	}
	item := feeds.Channel.Items[0]
	if item.ID != articles[0].ID || item.Link != articles[0].URL || item.Title != articles[0].Title {
		t.Errorf("unexpected item: %+v", item)
	}
	if !item.PublishedAt().Equal(articles[0].PublishedAt) {
		t.Errorf("expected pubDate %s, got: '%s'", articles[0].PublishedAt, item.PubDate)
	}
	if !strings.Contains(item.Content, "Source: Example") {
		t.Errorf("expected source in item content, got: '%s'", item.Content)
	}
}
