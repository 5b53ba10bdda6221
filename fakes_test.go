package newsagg

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// provider which returns canned results
type stubProvider struct {
	name  string
	delay time.Duration
	fetch func(query string) ([]Article, error)

	calls atomic.Int32
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Fetch(ctx context.Context, query string) ([]Article, error) {
	p.calls.Add(1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, &UpstreamError{Provider: p.name, Kind: ErrUpstreamUnreachable, Err: ctx.Err()}
		}
	}
	return p.fetch(query)
}

// provider which returns `n` articles for any query
func succeeding(name string, n int, delay time.Duration) *stubProvider {
	return &stubProvider{
		name:  name,
		delay: delay,
		fetch: func(query string) ([]Article, error) {
			return sampleArticles(name+"-"+query, n), nil
		},
	}
}

// provider which always fails with given kind
func failing(name string, kind error, delay time.Duration) *stubProvider {
	return &stubProvider{
		name:  name,
		delay: delay,
		fetch: func(query string) ([]Article, error) {
			if kind == ErrUpstreamRejected {
				return nil, &UpstreamError{Provider: name, Kind: kind, StatusCode: 429, Body: "too many requests"}
			}
			return nil, &UpstreamError{Provider: name, Kind: kind, Err: fmt.Errorf("dial tcp: connection refused")}
		},
	}
}

// generate `n` distinct articles
func sampleArticles(prefix string, n int) []Article {
	articles := make([]Article, 0, n)
	for i := 0; i < n; i++ {
		articles = append(articles, Article{
			URL:         fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Title:       fmt.Sprintf("%s #%d", prefix, i),
			Source:      "Example",
			Description: fmt.Sprintf("description of %s #%d", prefix, i),
			PublishedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}
	return articles
}

// cache backend with an unknown type
type unknownCache struct {
	memCache
}

func (c *unknownCache) Type() CacheType {
	return CacheType("redis")
}
