package newsagg

import (
	"context"
	"net/http"
)

const (
	newsAPIProviderName   = "NewsAPI"
	newsAPIDefaultBaseURL = "https://newsapi.org/v2/everything"
)

// NewsAPIProvider fetches articles from the NewsAPI `everything` endpoint.
type NewsAPIProvider struct {
	endpoint httpEndpoint
}

// NewNewsAPIProvider returns a new NewsAPI provider with given api key.
func NewNewsAPIProvider(apiKey string) *NewsAPIProvider {
	return &NewsAPIProvider{
		endpoint: newHTTPEndpoint(newsAPIProviderName, newsAPIDefaultBaseURL, "apiKey", apiKey),
	}
}

// SetBaseURL overrides the search endpoint.
func (p *NewsAPIProvider) SetBaseURL(baseURL string) {
	p.endpoint.baseURL = baseURL
}

// SetHTTPClient sets the http client used for requests.
func (p *NewsAPIProvider) SetHTTPClient(client *http.Client) {
	p.endpoint.httpClient = client
}

// Name returns the provider's name.
func (p *NewsAPIProvider) Name() string {
	return newsAPIProviderName
}

type newsAPIResponse struct {
	Status       string `json:"status"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch searches NewsAPI for `query`.
func (p *NewsAPIProvider) Fetch(ctx context.Context, query string) ([]Article, error) {
	var resp newsAPIResponse
	if err := p.endpoint.searchJSON(ctx, query, &resp); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, Article{
			URL:         a.URL,
			Image:       a.URLToImage,
			Title:       plainText(a.Title),
			Source:      a.Source.Name,
			Description: plainText(a.Description),
			PublishedAt: parseTimestamp(a.PublishedAt),
		})
	}
	return articles, nil
}
