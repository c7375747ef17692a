package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/graphrag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// loadConfig reads --config when given and applies the global flags on top.
func loadConfig(c *cli.Context) (*graphrag.Config, error) {
	cfg := graphrag.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = graphrag.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if c.IsSet("db") {
		cfg.Path = c.String("db")
	}
	if c.IsSet("llm-host") {
		cfg.AI.EmbeddingHost = c.String("llm-host")
		cfg.AI.ExtractorHost = c.String("llm-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("extractor-model") {
		cfg.AI.ExtractorModel = c.String("extractor-model")
	}
	if c.IsSet("api-key") {
		cfg.AI.APIKey = c.String("api-key")
	}
	if c.IsSet("postgres-dsn") {
		cfg.PostgresDSN = c.String("postgres-dsn")
	}
	return cfg, nil
}

func openEngine(ctx context.Context, c *cli.Context) (*graphrag.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts := []graphrag.Option{
		graphrag.WithConfig(cfg),
		graphrag.WithLogger(slog.Default()),
	}
	if c.String("metrics-addr") != "" {
		opts = append(opts, graphrag.WithRegisterer(prometheus.DefaultRegisterer))
	}
	engine, err := graphrag.Open(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

// parseKeyValues turns "key=value" pairs into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
