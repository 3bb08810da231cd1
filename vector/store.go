package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketlens/marketlens/ai"
	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
)

var (
	// ErrStoreDisabled is returned when the vector store is turned off in
	// configuration but an operation is attempted anyway.
	ErrStoreDisabled = errors.New("vector: store disabled")

	// ErrEmbedderRequired is returned when an embedding-backed store is
	// configured without an embedder.
	ErrEmbedderRequired = errors.New("vector: embedder is required")

	// ErrEmbeddingsUnavailable is returned when the embedding service cannot
	// be reached; callers degrade to answering without retrieval.
	ErrEmbeddingsUnavailable = errors.New("vector: embeddings unavailable")
)

// RetrievedEvidence is one evidence excerpt returned by a similarity query,
// ranked by score descending.
type RetrievedEvidence struct {
	DocID       string
	QuoteID     string
	SourceURL   string
	Title       string
	PublishedAt time.Time
	Excerpt     string
	Score       float32
}

// Evidence converts the retrieval hit back into the domain evidence shape.
func (r RetrievedEvidence) Evidence() core.EventEvidence {
	return core.EventEvidence{
		QuoteID:     r.QuoteID,
		SourceURL:   r.SourceURL,
		Title:       r.Title,
		PublishedAt: r.PublishedAt,
		Excerpt:     r.Excerpt,
	}
}

// Store indexes evidence documents and answers similarity queries.
type Store interface {
	// Ready reports whether the store can serve queries right now.
	Ready() bool

	// UpsertEvents replaces the indexed documents for the given events.
	UpsertEvents(ctx context.Context, events []core.Event) error

	// Query returns up to topK evidence hits for the query text.
	Query(ctx context.Context, query string, topK int) ([]RetrievedEvidence, error)

	// Close releases backend resources.
	Close() error
}

// New builds the store selected by cfg.VectorBackend. The badger and sqlite
// backends require an embedder; the lexical backend ignores it.
func New(cfg config.Config, embedder ai.Embedder) (Store, error) {
	if !cfg.EnableVectorStore {
		return nil, ErrStoreDisabled
	}
	switch cfg.VectorBackend {
	case config.VectorBackendBadger:
		if embedder == nil {
			return nil, ErrEmbedderRequired
		}
		return openBadgerStore(cfg.VectorPath, embedder)
	case config.VectorBackendSQLite:
		if embedder == nil {
			return nil, ErrEmbedderRequired
		}
		return openSQLiteStore(cfg.SQLiteDSN, embedder)
	case config.VectorBackendLexical:
		return openLexicalStore(cfg.VectorPath)
	default:
		return nil, fmt.Errorf("vector: unsupported backend %q", cfg.VectorBackend)
	}
}
