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


package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/marketlens/marketlens/snapshot"
	"github.com/marketlens/marketlens/sources"
)

// Indexer receives the published snapshot for similarity indexing. Indexing
// is a secondary step: its failure never invalidates the snapshot.
type Indexer interface {
	UpsertEvents(ctx context.Context, events []core.Event) error
}

// Coordinator runs one ingestion cycle: fan out to every enabled source,
// isolate per-source failures, merge with seed data under the fallback
// policy, dedupe, and publish the result atomically.
type Coordinator struct {
	cfg      config.Config
	registry *sources.Registry
	store    *snapshot.Store
	seed     sources.SeedFunc
	quotes   sources.QuoteFunc
	indexer  Indexer
	logger   *slog.Logger
}

// Option configures optional Coordinator collaborators.
type Option func(*Coordinator)

// WithSeed installs the seed event generator.
func WithSeed(seed sources.SeedFunc) Option {
	return func(c *Coordinator) {
		c.seed = seed
	}
}

// WithQuotes installs the market quote fetcher.
func WithQuotes(quotes sources.QuoteFunc) Option {
	return func(c *Coordinator) {
		c.quotes = quotes
	}
}

// WithIndexer installs the vector indexer fed after each publish.
func WithIndexer(indexer Indexer) Option {
	return func(c *Coordinator) {
		c.indexer = indexer
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates an ingestion coordinator publishing into store.
func NewCoordinator(cfg config.Config, registry *sources.Registry, store *snapshot.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "ingest")
	return c
}

type fetchResult struct {
	source string
	events []core.Event
	err    error
}

// Refresh executes one full ingestion cycle and returns its report. A source
// returning an error, or panicking, costs only its own events; the cycle
// still publishes whatever the remaining sources produced.
func (c *Coordinator) Refresh(ctx context.Context) (core.RefreshReport, error) {
	started := time.Now().UTC()
	enabled := c.registry.Enabled(c.cfg)
	c.logger.Info("refresh started", "sources", len(enabled))

	results := c.fetchAll(ctx, enabled)

	var live []core.Event
	var sourceErrors []string
	for _, result := range results {
		if result.err != nil {
			sourceErrors = append(sourceErrors, fmt.Sprintf("%s: %v", result.source, result.err))
			c.logger.Warn("source failed", "source", result.source, "error", result.err)
			continue
		}
		for _, event := range result.events {
			event.Origin = core.OriginLive
			if event.IngestTime.IsZero() {
				event.IngestTime = started
			}
			live = append(live, event)
		}
	}

	combined := live
	seeded := 0
	if c.includeSeed(len(live)) {
		for _, event := range c.seed() {
			event.Origin = core.OriginSeed
			if event.IngestTime.IsZero() {
				event.IngestTime = started
			}
			combined = append(combined, event)
			seeded++
		}
	}

	deduped := DedupeEvents(combined)
	c.store.ReplaceEvents(deduped)

	var nonFatal []string
	quoteAssets := 0
	if c.cfg.EnableMarketQuotes && c.quotes != nil {
		quotes, err := c.quotes(ctx, c.cfg)
		if err != nil {
			nonFatal = append(nonFatal, fmt.Sprintf("quotes: %v", err))
			c.logger.Warn("quote fetch failed", "error", err)
		} else {
			c.store.ReplaceQuotes(quotes)
			quoteAssets = len(quotes)
		}
	}

	if c.cfg.EnableVectorStore && c.indexer != nil {
		if err := c.indexer.UpsertEvents(ctx, deduped); err != nil {
			nonFatal = append(nonFatal, fmt.Sprintf("vector indexing: %v", err))
			c.logger.Warn("vector indexing failed", "error", err)
		}
	}

	// LiveEvents and SeedEvents count what was fetched and seeded, not what
	// survived dedupe; TotalEvents is the published snapshot size.
	finished := time.Now().UTC()
	report := core.RefreshReport{
		StartedAt:    started,
		FinishedAt:   finished,
		DurationMS:   finished.Sub(started).Milliseconds(),
		TotalEvents:  len(deduped),
		LiveEvents:   len(live),
		SeedEvents:   seeded,
		QuoteAssets:  quoteAssets,
		SourceErrors: sourceErrors,
	}
	c.store.SetRefreshReport(report)
	if len(nonFatal) > 0 {
		c.store.SetRefreshError(strings.Join(nonFatal, "; "))
	}

	c.logger.Info("refresh finished",
		"events", report.TotalEvents,
		"live", report.LiveEvents,
		"seed", report.SeedEvents,
		"source_errors", len(sourceErrors),
		"duration_ms", report.DurationMS)
	return report, nil
}

// fetchAll runs every source on a worker pool and collects per-source
// outcomes. A panicking source is converted into an error result.
func (c *Coordinator) fetchAll(ctx context.Context, enabled []sources.Source) []fetchResult {
	if len(enabled) == 0 {
		return nil
	}

	pool, err := ants.NewPool(len(enabled))
	if err != nil {
		// Pool creation only fails on invalid size; fall back to serial fetches.
		results := make([]fetchResult, 0, len(enabled))
		for _, source := range enabled {
			results = append(results, c.fetchOne(ctx, source))
		}
		return results
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]fetchResult, 0, len(enabled))
	)
	for _, source := range enabled {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			result := c.fetchOne(ctx, source)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			results = append(results, fetchResult{source: source.Name(), err: submitErr})
			mu.Unlock()
		}
	}
	wg.Wait()
	return results
}

func (c *Coordinator) fetchOne(ctx context.Context, source sources.Source) (result fetchResult) {
	result.source = source.Name()
	defer func() {
		if r := recover(); r != nil {
			result.events = nil
			result.err = fmt.Errorf("panic: %v", r)
		}
	}()
	result.events, result.err = source.Fetch(ctx, c.cfg)
	return result
}

// includeSeed applies the fallback policy: seed events participate when seed
// data is enabled and either seeds always run or no live event survived.
func (c *Coordinator) includeSeed(liveCount int) bool {
	if !c.cfg.EnableSeedData || c.seed == nil {
		return false
	}
	if !c.cfg.SeedOnlyWhenNoLive {
		return true
	}
	return liveCount == 0
}
