// Copyright 2025 Marketlens Contributors
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
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/marketlens/marketlens/ai"
	"github.com/marketlens/marketlens/ai/openai"
	"github.com/marketlens/marketlens/analysis"
	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/marketlens/marketlens/ingest"
	"github.com/marketlens/marketlens/snapshot"
	"github.com/marketlens/marketlens/sources"
	"github.com/marketlens/marketlens/vector"
)

func main() {
	app := &cli.App{
		Name:  "marketlens",
		Usage: "Financial event aggregation and retrieval-augmented analysis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Run one ingestion cycle and print the refresh report",
				Action: refreshCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "events-file",
						Aliases: []string{"f"},
						Usage:   "JSON file of events served as a local source",
					},
					&cli.BoolFlag{
						Name:  "index",
						Usage: "Index the published snapshot into the vector store",
					},
				},
			},
			{
				Name:   "ask",
				Usage:  "Answer an analysis question against the configured model",
				Action: askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "question",
						Aliases:  []string{"q"},
						Usage:    "The question to analyze",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "context",
						Usage: "Additional free-form context",
					},
					&cli.StringSliceFlag{
						Name:  "source",
						Usage: "User-provided source (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "retrieve",
						Usage: "Retrieve evidence from the vector store",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of evidence excerpts to retrieve",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Index events from a JSON file into the vector store",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "events-file",
						Aliases:  []string{"f"},
						Usage:    "JSON file of events to index",
						Required: true,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func refreshCommand(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	registry := sources.NewRegistry()
	if file := c.String("events-file"); file != "" {
		source, err := fileSource(file)
		if err != nil {
			return err
		}
		registry.Add(source)
		cfg.EnableLiveSources = true
	}

	store := snapshot.NewStore()
	opts := []ingest.Option{}
	if c.Bool("index") && cfg.EnableVectorStore {
		vectorStore, err := openVectorStore(cfg)
		if err != nil {
			return err
		}
		defer vectorStore.Close()
		opts = append(opts, ingest.WithIndexer(vectorStore))
	}

	report, err := ingest.NewCoordinator(cfg, registry, store, opts...).Refresh(c.Context)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if lastErr := store.LastRefreshError(); lastErr != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", lastErr)
	}
	return printJSON(report)
}

func askCommand(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	aiConfig := ai.NewConfig(
		ai.WithAPIKey(cfg.LLMAPIKey),
		ai.WithChatHost(cfg.LLMBaseURL),
		ai.WithEmbeddingHost(cfg.EmbeddingBaseURL),
		ai.WithChatModel(cfg.LLMModel),
		ai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	provider, err := openai.NewProvider(aiConfig)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	defer provider.Close()

	engineOpts := []analysis.Option{}
	if c.Bool("retrieve") && cfg.EnableVectorStore {
		vectorStore, err := vector.New(cfg, provider.Embedder())
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
		defer vectorStore.Close()
		engineOpts = append(engineOpts, analysis.WithRetriever(vectorStore))
	}

	engine := analysis.NewEngine(cfg, provider.Completer(), engineOpts...)
	response, err := engine.Analyze(c.Context, core.AnalysisRequest{
		Question:     c.String("question"),
		Context:      c.String("context"),
		Sources:      c.StringSlice("source"),
		UseRetrieval: c.Bool("retrieve"),
		TopK:         c.Int("top-k"),
	})
	if err != nil {
		return err
	}

	fmt.Println(response.Answer)
	if response.Usage != nil {
		fmt.Fprintf(os.Stderr, "model=%s tokens=%d\n", response.Model, response.Usage.TotalTokens)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	events, err := loadEvents(c.String("events-file"))
	if err != nil {
		return err
	}

	vectorStore, err := openVectorStore(cfg)
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	if err := vectorStore.UpsertEvents(c.Context, events); err != nil {
		return fmt.Errorf("index events: %w", err)
	}
	fmt.Fprintf(os.Stderr, "indexed %d events\n", len(events))
	return nil
}

// openVectorStore builds the configured store, attaching an embedder only for
// the backends that need one.
func openVectorStore(cfg config.Config) (vector.Store, error) {
	var embedder ai.Embedder
	if cfg.VectorBackend != config.VectorBackendLexical {
		aiConfig := ai.NewConfig(
			ai.WithAPIKey(cfg.LLMAPIKey),
			ai.WithChatHost(cfg.LLMBaseURL),
			ai.WithEmbeddingHost(cfg.EmbeddingBaseURL),
			ai.WithChatModel(cfg.LLMModel),
			ai.WithEmbeddingModel(cfg.EmbeddingModel),
		)
		provider, err := openai.NewProvider(aiConfig)
		if err != nil {
			return nil, fmt.Errorf("create AI provider: %w", err)
		}
		embedder = provider.Embedder()
	}
	store, err := vector.New(cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return store, nil
}

// fileSource serves events from a local JSON file under the source name
// "file", which keeps the coordinator path exercisable without live feeds.
func fileSource(path string) (sources.Source, error) {
	return sources.New("file", func(ctx context.Context, cfg config.Config) ([]core.Event, error) {
		return loadEvents(path)
	})
}

func loadEvents(path string) ([]core.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var events []core.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events file: %w", err)
	}
	return events, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func setup(c *cli.Context) error {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	levelStr := strings.ToLower(c.String("log-level"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
