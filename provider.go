package newsagg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRequestTimeoutSeconds = 10

	maxResponseBytes = 8 << 20
)

// Provider is an upstream news source queried by keyword.
//
// Adapters normalize their upstream's response into `Article`s and classify
// failures as `*UpstreamError`. They never retry.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]Article, error)
}

// upstream endpoint shared by the JSON search APIs
type httpEndpoint struct {
	name       string
	baseURL    string
	apiKey     string
	keyParam   string
	httpClient *http.Client
}

func newHTTPEndpoint(name, baseURL, keyParam, apiKey string) httpEndpoint {
	return httpEndpoint{
		name:     name,
		baseURL:  baseURL,
		apiKey:   apiKey,
		keyParam: keyParam,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeoutSeconds * time.Second,
		},
	}
}

// build the search url for `query`
func (e httpEndpoint) searchURL(query string) (string, error) {
	if e.apiKey == "" {
		return "", fmt.Errorf("no api key configured")
	}

	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url '%s': %w", e.baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url '%s'", e.baseURL)
	}

	params := u.Query()
	params.Set("q", query)
	params.Set(e.keyParam, e.apiKey)
	u.RawQuery = params.Encode()

	return u.String(), nil
}

// search `query` and decode the JSON response into `out`
func (e httpEndpoint) searchJSON(ctx context.Context, query string, out any) error {
	endpoint, err := e.searchURL(query)
	if err != nil {
		return &UpstreamError{Provider: e.name, Kind: ErrRequestSetupFailed, Err: err}
	}

	status, body, err := fetchBody(ctx, e.httpClient, e.name, endpoint, "application/json")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{
			Provider:   e.name,
			Kind:       ErrUpstreamRejected,
			StatusCode: status,
			Body:       "malformed response",
			Err:        err,
		}
	}
	return nil
}

// fetch the body of `endpoint`, classifying failures
func fetchBody(ctx context.Context, client *http.Client, provider, endpoint, accept string) (status int, body []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, &UpstreamError{Provider: provider, Kind: ErrRequestSetupFailed, Err: err}
	}
	req.Header.Set("User-Agent", fakeUserAgent)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &UpstreamError{Provider: provider, Kind: ErrUpstreamUnreachable, Err: redactURLError(err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return resp.StatusCode, nil, &UpstreamError{
			Provider: provider,
			Kind:     ErrUpstreamUnreachable,
			Err:      fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &UpstreamError{
			Provider:   provider,
			Kind:       ErrUpstreamRejected,
			StatusCode: resp.StatusCode,
			Body:       upstreamMessage(body),
		}
	}

	return resp.StatusCode, body, nil
}

// extract a readable message from an upstream error body
//
// GNews answers `{"errors": [...]}`, NewsAPI `{"message": "..."}`.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Errors) > 0 {
			return strings.Join(parsed.Errors, ", ")
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxUpstreamBodyLength)
}

// strip the request url (which carries api keys) from transport errors
func redactURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
