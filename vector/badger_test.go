package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marketlens/marketlens/ai/mock"
	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbedder maps each known topic onto its own axis so similarity
// ranking in tests is fully predictable.
func topicEmbedder() *mock.MockEmbedder {
	embed := func(text string) []float32 {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "rate"):
			return []float32{1, 0, 0}
		case strings.Contains(lower, "oil"):
			return []float32{0, 1, 0}
		default:
			return []float32{0, 0, 1}
		}
	}
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return embed(text), nil
	}
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = embed(text)
		}
		return out, nil
	}
	return embedder
}

func evidenceFixture() []core.Event {
	return []core.Event{
		{
			Headline: "Fed holds rates steady",
			Evidence: []core.EventEvidence{{QuoteID: "fomc-1", Title: "FOMC statement", Excerpt: "target range for the federal funds rate"}},
		},
		{
			Headline: "Oil rallies on supply cut",
			Evidence: []core.EventEvidence{{QuoteID: "oil-1", Title: "OPEC communique", Excerpt: "voluntary reduction in output"}},
		},
	}
}

func TestBadgerStore_UpsertAndQuery(t *testing.T) {
	store, err := openBadgerStore("", topicEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.True(t, store.Ready())

	ctx := context.Background()
	require.NoError(t, store.UpsertEvents(ctx, evidenceFixture()))

	t.Run("nearest topic wins", func(t *testing.T) {
		hits, err := store.Query(ctx, "what did the rate decision say", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "fomc-1", hits[0].QuoteID)

		hits, err = store.Query(ctx, "oil market reaction", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "oil-1", hits[0].QuoteID)
	})

	t.Run("respects topK", func(t *testing.T) {
		hits, err := store.Query(ctx, "rate", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("hit converts back to evidence", func(t *testing.T) {
		hits, err := store.Query(ctx, "rate", 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		evidence := hits[0].Evidence()
		assert.Equal(t, "fomc-1", evidence.QuoteID)
		assert.Equal(t, "FOMC statement", evidence.Title)
	})
}

func TestBadgerStore_EqualScoreOrdering(t *testing.T) {
	store, err := openBadgerStore("", topicEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	events := []core.Event{
		{Headline: "Rate path debated", Evidence: []core.EventEvidence{{QuoteID: "rate-b", Title: "Minutes", Excerpt: "rate trajectory"}}},
		{Headline: "Rate path debated", Evidence: []core.EventEvidence{{QuoteID: "rate-a", Title: "Statement", Excerpt: "rate trajectory"}}},
	}
	require.NoError(t, store.UpsertEvents(ctx, events))

	// Both documents score identically; order must not depend on map
	// iteration, so query repeatedly and expect the same DocID order.
	for i := 0; i < 10; i++ {
		hits, err := store.Query(ctx, "rate outlook", 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "evidence:rate-a", hits[0].DocID)
		assert.Equal(t, "evidence:rate-b", hits[1].DocID)
	}
}

func TestBadgerStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := openBadgerStore(dir, topicEmbedder())
	require.NoError(t, err)
	require.NoError(t, store.UpsertEvents(ctx, evidenceFixture()))
	require.NoError(t, store.Close())

	reopened, err := openBadgerStore(dir, topicEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	hits, err := reopened.Query(ctx, "rate outlook", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "fomc-1", hits[0].QuoteID)
}

func TestBadgerStore_EmbeddingFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}

	store, err := openBadgerStore("", embedder)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	err = store.UpsertEvents(ctx, evidenceFixture())
	assert.ErrorIs(t, err, ErrEmbeddingsUnavailable)

	_, err = store.Query(ctx, "rates", 3)
	assert.ErrorIs(t, err, ErrEmbeddingsUnavailable)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		EnableVectorStore: true,
		VectorBackend:     config.VectorBackendLexical,
		VectorPath:        t.TempDir(),
	}
}

func TestNew_BackendSelection(t *testing.T) {
	t.Run("disabled store", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EnableVectorStore = false
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrStoreDisabled)
	})

	t.Run("lexical needs no embedder", func(t *testing.T) {
		cfg := testConfig(t)
		store, err := New(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		assert.True(t, store.Ready())
	})

	t.Run("badger requires embedder", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.VectorBackend = "badger"
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.VectorBackend = "faiss"
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})
}
