package newsagg

import (
	"context"
	"net/http"
)

const (
	gnewsProviderName   = "GNews"
	gnewsDefaultBaseURL = "https://gnews.io/api/v4/search"
)

// GNewsProvider fetches articles from the GNews search API.
type GNewsProvider struct {
	endpoint httpEndpoint
}

// NewGNewsProvider returns a new GNews provider with given api key.
func NewGNewsProvider(apiKey string) *GNewsProvider {
	return &GNewsProvider{
		endpoint: newHTTPEndpoint(gnewsProviderName, gnewsDefaultBaseURL, "apikey", apiKey),
	}
}

// SetBaseURL overrides the search endpoint.
func (p *GNewsProvider) SetBaseURL(baseURL string) {
	p.endpoint.baseURL = baseURL
}

// SetHTTPClient sets the http client used for requests.
func (p *GNewsProvider) SetHTTPClient(client *http.Client) {
	p.endpoint.httpClient = client
}

// Name returns the provider's name.
func (p *GNewsProvider) Name() string {
	return gnewsProviderName
}

type gnewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Image       string `json:"image"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Fetch searches GNews for `query`.
func (p *GNewsProvider) Fetch(ctx context.Context, query string) ([]Article, error) {
	var resp gnewsResponse
	if err := p.endpoint.searchJSON(ctx, query, &resp); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, Article{
			URL:         a.URL,
			Image:       a.Image,
			Title:       plainText(a.Title),
			Source:      a.Source.Name,
			Description: plainText(a.Description),
			PublishedAt: parseTimestamp(a.PublishedAt),
		})
	}
	return articles, nil
}
