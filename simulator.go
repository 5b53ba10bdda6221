package newsagg

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Simulator periodically polls the live feed of a fixed keyword, and sweeps
// expired articles of the persistent cache.
type Simulator struct {
	client *Client

	keyword       string
	pollInterval  time.Duration
	sweepInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	verbose bool
}

// NewSimulator returns a new simulator for given client.
//
// `ttlSeconds` is used as the sweep interval.
func NewSimulator(client *Client, ttlSeconds int) *Simulator {
	return &Simulator{
		client: client,

		keyword:       DefaultKeyword,
		pollInterval:  defaultSimulationIntervalSeconds * time.Second,
		sweepInterval: ttlDuration(ttlSeconds),
	}
}

// NewSimulatorFromConfig returns a new simulator built from given config,
// or nil if live feed simulation is disabled.
func NewSimulatorFromConfig(client *Client, cfg *Config) *Simulator {
	if !cfg.LiveFeedSimulationEnabled {
		return nil
	}

	s := NewSimulator(client, cfg.TTLSeconds)
	s.SetKeyword(cfg.SimulationKeyword)
	s.SetPollInterval(cfg.SimulationInterval())
	s.SetVerbose(cfg.Verbose)

	return s
}

// SetKeyword sets the keyword of polled live feed.
func (s *Simulator) SetKeyword(keyword string) {
	if keyword != "" {
		s.keyword = keyword
	}
}

// SetPollInterval sets the interval between live feed polls.
func (s *Simulator) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		s.pollInterval = interval
	}
}

// SetSweepInterval sets the interval between sweeps of expired articles.
func (s *Simulator) SetSweepInterval(interval time.Duration) {
	if interval > 0 {
		s.sweepInterval = interval
	}
}

// SetVerbose sets the simulator's verbose mode.
func (s *Simulator) SetVerbose(v bool) {
	s.verbose = v
}

// Start starts polling (and sweeping, for persistent cache) in background.
//
// It does nothing if already started.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.run(ctx, s.pollInterval, "live feed poll", s.poll)
	if s.client.CacheType() == CacheTypePersistent {
		s.run(ctx, s.sweepInterval, "expired articles sweep", s.sweep)
	}
}

// Stop stops background tasks and waits for them to finish.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// run `task` every `interval` until `ctx` is done
func (s *Simulator) run(ctx context.Context, interval time.Duration, scope string, task func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := runSafely(scope, func() error { return task(ctx) }); err != nil {
					log.Printf("simulator tick failed: %s", err)
				}
			}
		}
	}()
}

// poll the live feed once
func (s *Simulator) poll(ctx context.Context) error {
	articles, err := s.client.FetchNews(ctx, s.keyword, ModeLiveFeed)
	if err != nil {
		return err
	}

	log.Printf("live feed of '%s': %d article(s)", s.keyword, len(articles))

	return nil
}

// sweep expired articles once
func (s *Simulator) sweep(ctx context.Context) error {
	deleted, err := s.client.PurgeExpired(ctx)
	if err != nil {
		return err
	}

	v(s.verbose, "swept %d expired article(s)", deleted)

	return nil
}

// run `fn`, converting a panic into an error
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}
	return nil
}
