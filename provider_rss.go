package newsagg

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	rssProviderName = "RSS"
)

// RSSProvider fetches articles from an RSS/Atom search endpoint.
//
// The search url format must contain one `%s`, which is replaced with the
// escaped query (eg. `https://news.google.com/rss/search?q=%s`).
type RSSProvider struct {
	searchURLFormat string
	httpClient      *http.Client
}

// NewRSSProvider returns a new RSS provider with given search url format.
func NewRSSProvider(searchURLFormat string) *RSSProvider {
	return &RSSProvider{
		searchURLFormat: searchURLFormat,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeoutSeconds * time.Second,
		},
	}
}

// SetHTTPClient sets the http client used for requests.
func (p *RSSProvider) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// Name returns the provider's name.
func (p *RSSProvider) Name() string {
	return rssProviderName
}

// Fetch fetches the feed for `query` and converts its items.
func (p *RSSProvider) Fetch(ctx context.Context, query string) ([]Article, error) {
	if strings.Count(p.searchURLFormat, "%s") != 1 {
		return nil, &UpstreamError{
			Provider: rssProviderName,
			Kind:     ErrRequestSetupFailed,
			Err:      fmt.Errorf("search url format '%s' needs exactly one %%s", p.searchURLFormat),
		}
	}
	endpoint := fmt.Sprintf(p.searchURLFormat, url.QueryEscape(query))

	status, body, err := fetchBody(ctx, p.httpClient, rssProviderName, endpoint, "application/rss+xml, application/atom+xml, text/xml;q=0.9")
	if err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(body))
	if err != nil {
		return nil, &UpstreamError{
			Provider:   rssProviderName,
			Kind:       ErrUpstreamRejected,
			StatusCode: status,
			Body:       "malformed response",
			Err:        err,
		}
	}

	articles := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		article := Article{
			URL:         item.Link,
			Image:       itemImage(item),
			Title:       plainText(item.Title),
			Source:      feed.Title,
			Description: plainText(item.Description),
		}
		if item.Author != nil && item.Author.Name != "" {
			article.Source = item.Author.Name
		}
		if item.PublishedParsed != nil {
			article.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			article.PublishedAt = *item.UpdatedParsed
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// image url of given feed item, if any
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enclosure := range item.Enclosures {
		if strings.HasPrefix(enclosure.Type, "image/") {
			return enclosure.URL
		}
	}
	return ""
}
