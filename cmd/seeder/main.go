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
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/poiesic/graphrag"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/urfave/cli/v2"
)

// document is one seed document.
type document struct {
	id       string
	text     string
	metadata map[string]string
}

var bulletins = []document{
	{
		id: "wheat-rust-advisory",
		text: `Stem rust, also called black rust, is a fungal disease caused by Puccinia graminis that affects wheat.
Infections spread quickly in cool, humid weather during the rabi season. Growers in Punjab should scout fields
from tillering onward. Stem rust is treated by propiconazole applied at the first sign of pustules; a second
spray after fifteen days protects the flag leaf.`,
		metadata: map[string]string{"region": "punjab", "crop": "wheat"},
	},
	{
		id: "leaf-rust-note",
		text: `Leaf rust (brown rust) affects wheat across northern India. Resistant varieties prevent most losses.
Where susceptible varieties are grown, mancozeb applied to the crop reduces spore load. Crop rotation with
mustard prevents carry-over of inoculum.`,
		metadata: map[string]string{"region": "punjab", "crop": "wheat"},
	},
	{
		id: "rice-blight-bulletin",
		text: `Bacterial leaf blight affects rice during the kharif season, especially after heavy monsoon rain.
Excess urea increases the severity of leaf blight. Balanced fertiliser and drained fields prevent outbreaks.
The disease occurs in Punjab and Haryana.`,
		metadata: map[string]string{"region": "haryana", "crop": "rice"},
	},
	{
		id: "armyworm-alert",
		text: `Fall armyworm (Spodoptera frugiperda) is a pest that affects maize in Karnataka and Maharashtra.
Larvae feed inside the whorl. Neem oil is applied to young maize to deter egg laying, and integrated pest
management with pheromone traps prevents heavy infestation.`,
		metadata: map[string]string{"region": "karnataka", "crop": "maize"},
	},
	{
		id: "late-blight-potato",
		text: `Late blight caused by Phytophthora infestans affects potato and tomato. Cool nights and fog favour
the disease in the rabi season. Mancozeb treats late blight when sprayed before symptoms appear. Potatoes
are grown in Uttar Pradesh, where late blight occurs most years.`,
		metadata: map[string]string{"region": "uttar-pradesh", "crop": "potato"},
	},
	{
		id: "drip-irrigation-guide",
		text: `Drip irrigation saves water in dry regions such as Rajasthan. It is applied to tomato, cotton and
vegetables. Fertiliser delivered through drip lines reduces urea losses. Drip irrigation prevents water
stress during the hot season.`,
		metadata: map[string]string{"region": "rajasthan"},
	},
	{
		id: "aphid-mustard",
		text: `Aphids affect mustard in the rabi season, with peak populations in January. Aphids cause leaf curl and
reduce seed yield. Neem oil treats light infestations; integrated pest management keeps predators alive.`,
		metadata: map[string]string{"region": "rajasthan", "crop": "mustard"},
	},
	{
		id: "soybean-rust",
		text: `Soybean rust affects soybean grown in Madhya Pradesh during the kharif season. Propiconazole treats
soybean rust. Early sowing and crop rotation prevent severe epidemics.`,
		metadata: map[string]string{"region": "madhya-pradesh", "crop": "soybean"},
	},
}

func main() {
	app := &cli.App{
		Name:  "seeder",
		Usage: "Load a demo agricultural corpus into a graphrag database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./graphrag_db",
				EnvVars: []string{"GRAPHRAG_DB"},
			},
			&cli.StringFlag{
				Name:    "llm-host",
				Usage:   "OpenAI-compatible host for embeddings and extraction",
				EnvVars: []string{"GRAPHRAG_LLM_HOST"},
			},
			&cli.StringFlag{
				Name:  "src",
				Usage: "Directory of .txt files to ingest instead of the built-in corpus",
			},
		},
		Before: func(c *cli.Context) error {
			_ = godotenv.Load()
			slog.SetDefault(slog.New(log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				Level:           log.InfoLevel,
			})))
			return nil
		},
		Action: seed,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

// documentsFromDir returns an iterator over the .txt files in dir.
func documentsFromDir(dir string) (iter.Seq2[document, error], error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	return func(yield func(document, error) bool) {
		for _, path := range paths {
			data, err := os.ReadFile(path)
			base := filepath.Base(path)
			doc := document{id: strings.TrimSuffix(base, filepath.Ext(base)), text: string(data)}
			if !yield(doc, err) {
				return
			}
		}
	}, nil
}

// documentsFromSlice returns an iterator over a slice of documents.
func documentsFromSlice(docs []document) iter.Seq2[document, error] {
	return func(yield func(document, error) bool) {
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func seed(c *cli.Context) error {
	cfg := graphrag.DefaultConfig()
	cfg.Path = c.String("db")
	if host := c.String("llm-host"); host != "" {
		cfg.AI.EmbeddingHost = host
		cfg.AI.ExtractorHost = host
	}

	ctx := c.Context
	engine, err := graphrag.Open(ctx, graphrag.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer engine.Close()

	source := documentsFromSlice(bulletins)
	if dir := c.String("src"); dir != "" {
		if source, err = documentsFromDir(dir); err != nil {
			return err
		}
	}
	return ingestAll(ctx, engine, source)
}

func ingestAll(ctx context.Context, engine *graphrag.Engine, source iter.Seq2[document, error]) error {
	chunker := ingestion.NewChunker()
	for doc, err := range source {
		if err != nil {
			return err
		}
		chunks := chunker.Split(doc.id, doc.text)
		for i := range chunks {
			chunks[i].Metadata = doc.metadata
		}
		report, err := engine.IngestDocument(ctx, doc.id, chunks)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", doc.id, err)
		}
		slog.Info("ingested document",
			"document", doc.id,
			"chunks", report.ChunksProcessed,
			"entities_created", report.EntitiesCreated,
			"edges_created", report.EdgesCreated,
			"failures", len(report.Failures))
	}
	return nil
}
