// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "graphrag",
		Usage: "Hybrid graph and vector retrieval over agricultural documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"GRAPHRAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"GRAPHRAG_DB"},
			},
			&cli.StringFlag{
				Name:    "llm-host",
				Usage:   "OpenAI-compatible host for embeddings and extraction",
				EnvVars: []string{"GRAPHRAG_LLM_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"GRAPHRAG_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "extractor-model",
				Usage:   "Chat model used for entity extraction",
				EnvVars: []string{"GRAPHRAG_EXTRACTOR_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for the LLM host",
				EnvVars: []string{"GRAPHRAG_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Usage:   "Store chunks and embeddings in Postgres with pgvector",
				EnvVars: []string{"GRAPHRAG_POSTGRES_DSN"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address (e.g. :9090)",
				EnvVars: []string{"GRAPHRAG_METRICS_ADDR"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			ingestCommand(),
			queryCommand(),
			entitiesCommand(),
			statsCommand(),
			reembedCommand(),
			rebuildCommand(),
		},
	}
}

// setup loads .env, installs the logger and starts the metrics endpoint.
func setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := setupLogger(c); err != nil {
		return err
	}
	if addr := c.String("metrics-addr"); addr != "" {
		go serveMetrics(addr)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))
	level, err := log.ParseLevel(levelStr)
	if err != nil || level == log.FatalLevel {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	handler := log.NewWithOptions(c.App.ErrWriter, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}
