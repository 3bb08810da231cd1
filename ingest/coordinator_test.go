package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/marketlens/marketlens/snapshot"
	"github.com/marketlens/marketlens/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveSource(t *testing.T, name string, headlines ...string) sources.Source {
	t.Helper()
	source, err := sources.New(name, func(ctx context.Context, cfg config.Config) ([]core.Event, error) {
		events := make([]core.Event, 0, len(headlines))
		for _, headline := range headlines {
			events = append(events, core.Event{
				EventID:   headline,
				Headline:  headline,
				EventTime: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
			})
		}
		return events, nil
	})
	require.NoError(t, err)
	return source
}

func failingSource(t *testing.T, name string, err error) sources.Source {
	t.Helper()
	source, sErr := sources.New(name, func(ctx context.Context, cfg config.Config) ([]core.Event, error) {
		return nil, err
	})
	require.NoError(t, sErr)
	return source
}

func TestCoordinator_PartialFailureIsolation(t *testing.T) {
	cfg := config.Config{EnableLiveSources: true}
	registry := sources.NewRegistry(
		liveSource(t, "rss", "Fed holds rates"),
		failingSource(t, "edgar", errors.New("503 from upstream")),
		liveSource(t, "rates", "Treasury yields dip"),
	)
	store := snapshot.NewStore()

	report, err := NewCoordinator(cfg, registry, store).Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalEvents)
	assert.Equal(t, 2, report.LiveEvents)
	require.Len(t, report.SourceErrors, 1)
	assert.Contains(t, report.SourceErrors[0], "edgar")
	assert.Equal(t, 2, store.EventCount())

	published := store.LastRefreshReport()
	require.NotNil(t, published)
	assert.Equal(t, report.TotalEvents, published.TotalEvents)
}

func TestCoordinator_PanicIsolation(t *testing.T) {
	cfg := config.Config{EnableLiveSources: true}
	panicking, err := sources.New("flaky", func(ctx context.Context, cfg config.Config) ([]core.Event, error) {
		panic("nil map write")
	})
	require.NoError(t, err)
	registry := sources.NewRegistry(panicking, liveSource(t, "rss", "Oil rallies"))
	store := snapshot.NewStore()

	report, err := NewCoordinator(cfg, registry, store).Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalEvents)
	require.Len(t, report.SourceErrors, 1)
	assert.Contains(t, report.SourceErrors[0], "panic")
}

func TestCoordinator_SeedFallbackPolicy(t *testing.T) {
	seed := sources.SeedFunc(func() []core.Event {
		return []core.Event{
			{EventID: "seed-1", Headline: "Baseline macro backdrop"},
			{EventID: "seed-2", Headline: "Quarterly earnings season opens"},
		}
	})

	t.Run("seeds fill in when every source fails", func(t *testing.T) {
		cfg := config.Config{EnableLiveSources: true, EnableSeedData: true, SeedOnlyWhenNoLive: true}
		registry := sources.NewRegistry(failingSource(t, "rss", errors.New("down")))
		store := snapshot.NewStore()

		report, err := NewCoordinator(cfg, registry, store, WithSeed(seed)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.LiveEvents)
		assert.Equal(t, 2, report.SeedEvents)
		for _, event := range store.Events() {
			assert.Equal(t, core.OriginSeed, event.Origin)
		}
	})

	t.Run("seeds stay out once live data exists", func(t *testing.T) {
		cfg := config.Config{EnableLiveSources: true, EnableSeedData: true, SeedOnlyWhenNoLive: true}
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()

		report, err := NewCoordinator(cfg, registry, store, WithSeed(seed)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.LiveEvents)
		assert.Equal(t, 0, report.SeedEvents)
	})

	t.Run("always-include mixes seeds with live", func(t *testing.T) {
		cfg := config.Config{EnableLiveSources: true, EnableSeedData: true, SeedOnlyWhenNoLive: false}
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()

		report, err := NewCoordinator(cfg, registry, store, WithSeed(seed)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.LiveEvents)
		assert.Equal(t, 2, report.SeedEvents)
	})

	t.Run("seed disabled leaves snapshot empty", func(t *testing.T) {
		cfg := config.Config{EnableLiveSources: true, EnableSeedData: false}
		registry := sources.NewRegistry(failingSource(t, "rss", errors.New("down")))
		store := snapshot.NewStore()

		report, err := NewCoordinator(cfg, registry, store, WithSeed(seed)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.TotalEvents)
	})
}

func TestCoordinator_SeedDuplicateOfLiveDropped(t *testing.T) {
	cfg := config.Config{EnableLiveSources: true, EnableSeedData: true, SeedOnlyWhenNoLive: false}
	seed := sources.SeedFunc(func() []core.Event {
		return []core.Event{{EventID: "seed-1", Headline: "Fed Holds Rates"}}
	})
	registry := sources.NewRegistry(liveSource(t, "rss", "fed holds rates"))
	store := snapshot.NewStore()

	report, err := NewCoordinator(cfg, registry, store, WithSeed(seed)).Refresh(context.Background())
	require.NoError(t, err)

	// Counts report the inputs: one live fetched, one seed considered. The
	// published snapshot keeps only the live survivor.
	assert.Equal(t, 1, report.TotalEvents)
	assert.Equal(t, 1, report.LiveEvents)
	assert.Equal(t, 1, report.SeedEvents)
	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.OriginLive, events[0].Origin)
}

func TestCoordinator_ReportCountsFetchedEvents(t *testing.T) {
	cfg := config.Config{EnableLiveSources: true}
	registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates", "Fed Holds Rates"))
	store := snapshot.NewStore()

	report, err := NewCoordinator(cfg, registry, store).Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.LiveEvents)
	assert.Equal(t, 1, report.TotalEvents)
}

type recordingIndexer struct {
	events []core.Event
	err    error
}

func (r *recordingIndexer) UpsertEvents(ctx context.Context, events []core.Event) error {
	r.events = events
	return r.err
}

func TestCoordinator_SecondaryStepsBestEffort(t *testing.T) {
	cfg := config.Config{
		EnableLiveSources:  true,
		EnableMarketQuotes: true,
		EnableVectorStore:  true,
	}

	t.Run("quote failure recorded without failing refresh", func(t *testing.T) {
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()
		quotes := sources.QuoteFunc(func(ctx context.Context, cfg config.Config) (map[string]core.QuoteSnapshot, error) {
			return nil, errors.New("quote provider down")
		})

		report, err := NewCoordinator(cfg, registry, store, WithQuotes(quotes)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.TotalEvents)
		assert.Equal(t, 0, report.QuoteAssets)
		assert.Contains(t, store.LastRefreshError(), "quotes")
	})

	t.Run("quote failure keeps the previous quotes", func(t *testing.T) {
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()
		store.ReplaceQuotes(map[string]core.QuoteSnapshot{"sp500": {AssetID: "sp500", Value: 5180.0}})
		quotes := sources.QuoteFunc(func(ctx context.Context, cfg config.Config) (map[string]core.QuoteSnapshot, error) {
			return nil, errors.New("quote provider down")
		})

		_, err := NewCoordinator(cfg, registry, store, WithQuotes(quotes)).Refresh(context.Background())
		require.NoError(t, err)

		// Last known good quotes stay visible until the next successful fetch.
		retained := store.Quotes()
		require.Contains(t, retained, "sp500")
		assert.Equal(t, 5180.0, retained["sp500"].Value)
		assert.Contains(t, store.LastRefreshError(), "quotes")
	})

	t.Run("quotes published on success", func(t *testing.T) {
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()
		quotes := sources.QuoteFunc(func(ctx context.Context, cfg config.Config) (map[string]core.QuoteSnapshot, error) {
			return map[string]core.QuoteSnapshot{"sp500": {AssetID: "sp500", Value: 5230.5}}, nil
		})

		report, err := NewCoordinator(cfg, registry, store, WithQuotes(quotes)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.QuoteAssets)
		assert.Len(t, store.Quotes(), 1)
		assert.Empty(t, store.LastRefreshError())
	})

	t.Run("indexer failure recorded without failing refresh", func(t *testing.T) {
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates"))
		store := snapshot.NewStore()
		indexer := &recordingIndexer{err: errors.New("embedding host unreachable")}

		report, err := NewCoordinator(cfg, registry, store, WithIndexer(indexer)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.TotalEvents)
		assert.Contains(t, store.LastRefreshError(), "vector indexing")
	})

	t.Run("indexer receives the deduped snapshot", func(t *testing.T) {
		registry := sources.NewRegistry(liveSource(t, "rss", "Fed holds rates", "Fed Holds Rates"))
		store := snapshot.NewStore()
		indexer := &recordingIndexer{}

		_, err := NewCoordinator(cfg, registry, store, WithIndexer(indexer)).Refresh(context.Background())
		require.NoError(t, err)
		assert.Len(t, indexer.events, 1)
	})
}
