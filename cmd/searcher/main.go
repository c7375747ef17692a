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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/poiesic/graphrag"
	"github.com/poiesic/graphrag/search"
)

func init() {
	slog.SetDefault(slog.New(log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})))
}

func main() {
	cfg := graphrag.DefaultConfig()
	cfg.Path = "./graphrag_db"
	if host := os.Getenv("GRAPHRAG_LLM_HOST"); host != "" {
		cfg.AI.EmbeddingHost = host
		cfg.AI.ExtractorHost = host
	}

	ctx := context.Background()
	engine, err := graphrag.Open(ctx, graphrag.WithConfig(cfg))
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	question := "How is stem rust on wheat treated?"
	if len(os.Args) > 1 {
		question = strings.Join(os.Args[1:], " ")
	}
	resp, err := engine.Query(ctx, search.QueryRequest{Text: question})
	if err != nil {
		panic(err)
	}

	fmt.Printf("%s query, %d items", resp.Classification.Type, resp.Context.Len())
	if resp.Context.Partial {
		fmt.Printf(" (missing %v)", resp.Context.MissingSources)
	}
	fmt.Println()
	for _, item := range resp.Context.Items {
		fmt.Printf("%d: '%s' [%0.4f]\n", item.Rank, item.Result.Content, item.Score)
	}
}
