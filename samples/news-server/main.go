package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	newsagg "github.com/airtribe-projects/news-aggregator-api-souzaavi"
)

const (
	defaultPort = "3000"

	shutdownTimeoutSeconds = 10
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("# failed to load config: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newsagg.NewClientFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("# failed to create a client: %s", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close client", "error", err)
		}
	}()

	if simulator := newsagg.NewSimulatorFromConfig(client, cfg); simulator != nil {
		simulator.Start(ctx)
		defer simulator.Stop()

		slog.Info("live feed simulation started", "keyword", cfg.SimulationKeyword, "interval", cfg.SimulationInterval().String())
	}

	r := gin.New()
	r.Use(gin.Recovery())
	NewNewsHandler(client, tokenAuthorizer(os.Getenv("NEWS_API_TOKEN"))).Register(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("server running", "addr", srv.Addr, "cache", string(client.CacheType()))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
}

// load config from `NEWS_CONFIG` (or the default path, if it exists) and environment variables
func loadConfig() (cfg *newsagg.Config, err error) {
	path := os.Getenv("NEWS_CONFIG")
	if path == "" {
		if _, err := os.Stat(newsagg.DefaultConfigPath()); err == nil {
			path = newsagg.DefaultConfigPath()
		}
	}

	if path != "" {
		if cfg, err = newsagg.LoadConfig(path); err != nil {
			return nil, err
		}
	} else {
		cfg = newsagg.DefaultConfig()
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment variables: %w", err)
	}
	return cfg, nil
}

// return an authorizer which accepts only given static token, or nil if it is empty
func tokenAuthorizer(expected string) Authorizer {
	if expected == "" {
		return nil
	}

	return func(token string) (string, error) {
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return "", errors.New("token mismatch")
		}
		return "api", nil
	}
}
