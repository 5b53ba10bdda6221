package newsagg

import (
	"context"
	"fmt"
)

type raceResult struct {
	provider string
	articles []Article
	err      error
}

// RaceFetch queries all `providers` concurrently and returns the articles of
// the first one which succeeds.
//
// Calls still in flight when a winner is found are cancelled and their
// outcomes discarded. If every provider fails, it returns
// `*AllProvidersFailedError` with one error per provider.
func RaceFetch(ctx context.Context, providers []Provider, query string) ([]Article, error) {
	if len(providers) == 0 {
		return nil, &AllProvidersFailedError{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered, so that losers never block after the race is over
	results := make(chan raceResult, len(providers))
	for _, provider := range providers {
		go func(p Provider) {
			defer func() {
				if r := recover(); r != nil {
					results <- raceResult{
						provider: p.Name(),
						err:      fmt.Errorf("%s API Error: panic: %v", p.Name(), r),
					}
				}
			}()

			articles, err := p.Fetch(ctx, query)
			results <- raceResult{provider: p.Name(), articles: articles, err: err}
		}(provider)
	}

	errs := make([]error, 0, len(providers))
	for range providers {
		result := <-results
		if result.err == nil {
			if result.articles == nil {
				result.articles = []Article{}
			}
			return result.articles, nil
		}
		errs = append(errs, result.err)
	}

	return nil, &AllProvidersFailedError{Errors: errs}
}
