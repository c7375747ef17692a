package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/graphrag/ai/openai"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/poiesic/graphrag/reembed"
	"github.com/poiesic/graphrag/search"
	"github.com/urfave/cli/v2"
)

func maintenanceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of chunks to process in each batch",
			Value: 100,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N chunks",
			Value: 100,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum retry attempts for failed operations",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 1 * time.Second,
		},
	}
}

func maintenanceConfig(c *cli.Context) (*reembed.Config, error) {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("max-retries must be greater than 0")
	}
	return cfg, nil
}

func interruptible(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk text files and add them to the knowledge graph",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "doc-id",
				Usage: "Document id (single file only; default is the file name)",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Chunk size in characters",
				Value: ingestion.DefaultChunkSize,
			},
			&cli.IntFlag{
				Name:  "overlap",
				Usage: "Characters shared by consecutive chunks",
				Value: ingestion.DefaultChunkOverlap,
			},
			&cli.StringSliceFlag{
				Name:    "meta",
				Aliases: []string{"m"},
				Usage:   "Metadata attached to every chunk, as key=value",
			},
		},
		Action: func(c *cli.Context) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return errors.New("at least one file is required")
			}
			if c.IsSet("doc-id") && len(files) > 1 {
				return errors.New("--doc-id needs exactly one file")
			}
			meta, err := parseKeyValues(c.StringSlice("meta"))
			if err != nil {
				return err
			}

			ctx, cancel := interruptible(c)
			defer cancel()
			engine, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer engine.Close()

			chunker := &ingestion.Chunker{Size: c.Int("chunk-size"), Overlap: c.Int("overlap")}
			out := c.App.Writer
			failed := 0
			for _, file := range files {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				docID := c.String("doc-id")
				if docID == "" {
					docID = documentID(file)
				}
				chunks := chunker.Split(docID, string(data))
				for i := range chunks {
					chunks[i].Metadata = meta
				}

				report, err := engine.IngestDocument(ctx, docID, chunks)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", file, err)
				}
				fmt.Fprintf(out, "%s: %d/%d chunks, %d entities (+%d), %d edges (+%d), %d relations dropped in %s\n",
					docID, report.ChunksProcessed, len(chunks),
					report.EntitiesCreated+report.EntitiesUpdated, report.EntitiesCreated,
					report.EdgesCreated+report.EdgesUpdated, report.EdgesCreated,
					report.RelationsDropped, report.Duration.Round(time.Millisecond))
				for _, f := range report.Failures {
					fmt.Fprintf(c.App.ErrWriter, "  failed: %v\n", f)
				}
				failed += len(report.Failures)
			}
			if failed > 0 {
				return fmt.Errorf("%d chunks failed", failed)
			}
			return nil
		},
	}
}

// documentID derives a document id from a file name.
func documentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Answer a question with fused vector and graph context",
		ArgsUsage: "QUESTION",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "top-k-vector", Usage: "Chunks to retrieve (0 uses the configured value)"},
			&cli.IntFlag{Name: "top-k-graph", Usage: "Graph paths to retrieve (0 uses the configured value)"},
			&cli.IntFlag{Name: "max-context", Aliases: []string{"n"}, Usage: "Items in the fused context (0 uses the configured value)"},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "Restrict chunks to metadata key=value",
			},
			&cli.StringSliceFlag{
				Name:  "history",
				Usage: "Earlier question in the conversation, oldest first",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show classification and per-source results",
			},
		},
		Action: func(c *cli.Context) error {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return errors.New("a question is required")
			}
			filter, err := parseKeyValues(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			ctx, cancel := interruptible(c)
			defer cancel()
			engine, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer engine.Close()

			req := search.QueryRequest{
				Text:           text,
				History:        c.StringSlice("history"),
				TopKVector:     c.Int("top-k-vector"),
				TopKGraph:      c.Int("top-k-graph"),
				MaxContextSize: c.Int("max-context"),
				Filter:         core.MetadataFilter(filter),
			}
			var monitor search.QueryMonitor
			if c.Bool("verbose") {
				monitor = &printMonitor{out: c.App.ErrWriter}
			}
			resp, err := engine.QueryWithMonitor(ctx, req, monitor)
			if err != nil {
				return err
			}
			printContext(c.App.Writer, resp)
			return nil
		},
	}
}

func entitiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "entities",
		Usage: "Explore the entity graph",
		Subcommands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Find entities whose name or alias contains TEXT",
				ArgsUsage: "TEXT",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Restrict to one entity type"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum entities to list"},
				},
				Action: func(c *cli.Context) error {
					text := strings.Join(c.Args().Slice(), " ")
					if strings.TrimSpace(text) == "" {
						return errors.New("search text is required")
					}
					var entityType *core.EntityType
					if raw := c.String("type"); raw != "" {
						et, ok := core.DefaultTaxonomy().ParseEntityType(raw)
						if !ok {
							return fmt.Errorf("%w: %q", core.ErrUnknownEntityType, raw)
						}
						entityType = &et
					}

					engine, err := openEngine(c.Context, c)
					if err != nil {
						return err
					}
					defer engine.Close()

					found, err := engine.SearchEntities(c.Context, text, entityType, c.Int("limit"))
					if err != nil {
						return err
					}
					printEntities(c.App.Writer, found)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show an entity with its direct relations",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "relation",
						Aliases: []string{"r"},
						Usage:   "Only show relations with this label",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("exactly one entity id is required")
					}
					id, err := core.ParseID(c.Args().First())
					if err != nil {
						return err
					}
					var labels []core.RelationLabel
					for _, raw := range c.StringSlice("relation") {
						label, ok := core.DefaultTaxonomy().ParseRelation(raw)
						if !ok {
							return fmt.Errorf("%w: %q", core.ErrUnknownRelation, raw)
						}
						labels = append(labels, label)
					}

					engine, err := openEngine(c.Context, c)
					if err != nil {
						return err
					}
					defer engine.Close()

					details, err := engine.GetEntityDetails(c.Context, id, labels...)
					if err != nil {
						return err
					}
					printDetails(c.App.Writer, details)
					return nil
				},
			},
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Count entities, edges and chunks",
		Action: func(c *cli.Context) error {
			engine, err := openEngine(c.Context, c)
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.Stats(c.Context)
			if err != nil {
				return err
			}
			printStats(c.App.Writer, stats)
			return nil
		},
	}
}

func reembedCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "new-model",
			Usage: "Embedding model to switch to (default: the configured one)",
		},
	}, maintenanceFlags()...)

	return &cli.Command{
		Name:  "reembed",
		Usage: "Recompute the embedding of every stored chunk",
		Flags: flags,
		Action: func(c *cli.Context) error {
			mcfg, err := maintenanceConfig(c)
			if err != nil {
				return err
			}
			ctx, cancel := interruptible(c)
			defer cancel()
			engine, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer engine.Close()

			aiCfg := engine.Config().AI
			if model := c.String("new-model"); model != "" {
				aiCfg.EmbeddingModel = model
			}
			embedder, err := openai.NewEmbedder(&aiCfg)
			if err != nil {
				return fmt.Errorf("failed to create embedder: %w", err)
			}

			fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", aiCfg.EmbeddingHost)
			fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", aiCfg.EmbeddingModel)
			if _, err := engine.Reembed(ctx, embedder, mcfg, c.App.ErrWriter); err != nil {
				return fmt.Errorf("reembedding failed: %w", err)
			}
			return nil
		},
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Re-run extraction and graph building over every stored chunk",
		Flags: maintenanceFlags(),
		Action: func(c *cli.Context) error {
			mcfg, err := maintenanceConfig(c)
			if err != nil {
				return err
			}
			ctx, cancel := interruptible(c)
			defer cancel()
			engine, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer engine.Close()

			report, err := engine.Rebuild(ctx, mcfg, c.App.ErrWriter)
			if report != nil {
				printRebuild(c.App.Writer, report)
			}
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			return nil
		},
	}
}
