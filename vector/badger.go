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


package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marketlens/marketlens/ai"
	"github.com/marketlens/marketlens/core"
)

const badgerDocPrefix = "vec:doc:"

// storedDoc is the persisted form of an indexed document.
type storedDoc struct {
	document
	Vector []float32 `json:"vector"`
}

// badgerStore persists embedded documents in BadgerDB and answers queries by
// brute-force dot product over an in-memory copy of the index. The corpus is
// one evidence excerpt per event source, small enough that a scan beats the
// bookkeeping of an approximate index.
type badgerStore struct {
	db       *badger.DB
	embedder ai.Embedder
	logger   *slog.Logger

	mu   sync.RWMutex
	docs map[string]storedDoc
}

// badgerLoggerAdapter routes badger's internal logging through slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// openBadgerStore opens (creating if needed) the index at path. An empty path
// opens an in-memory database, used by tests.
func openBadgerStore(path string, embedder ai.Embedder) (*badgerStore, error) {
	logger := slog.Default().With("component", "vector.badger")

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("vector: create index dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("vector: open badger index: %w", err)
	}

	s := &badgerStore{
		db:       db,
		embedder: embedder,
		logger:   logger,
		docs:     make(map[string]storedDoc),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load reads every persisted document into the in-memory index.
func (s *badgerStore) load() error {
	return s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerDocPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc storedDoc
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return fmt.Errorf("vector: decode stored document: %w", err)
			}
			s.docs[doc.DocID] = doc
		}
		return nil
	})
}

func (s *badgerStore) Ready() bool {
	return !s.db.IsClosed()
}

func (s *badgerStore) UpsertEvents(ctx context.Context, events []core.Event) error {
	docs := buildDocuments(events)
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingsUnavailable, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("vector: embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	stored := make([]storedDoc, len(docs))
	for i, doc := range docs {
		stored[i] = storedDoc{document: doc, Vector: vectors[i]}
		encoded, err := json.Marshal(stored[i])
		if err != nil {
			return fmt.Errorf("vector: encode document: %w", err)
		}
		if err := batch.Set([]byte(badgerDocPrefix+doc.DocID), encoded); err != nil {
			return fmt.Errorf("vector: stage document write: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("vector: flush index batch: %w", err)
	}

	s.mu.Lock()
	for _, doc := range stored {
		s.docs[doc.DocID] = doc
	}
	s.mu.Unlock()

	s.logger.Debug("index updated", "documents", len(stored))
	return nil
}

func (s *badgerStore) Query(ctx context.Context, query string, topK int) ([]RetrievedEvidence, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingsUnavailable, err)
	}

	s.mu.RLock()
	hits := make([]RetrievedEvidence, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(doc.Vector) == 0 {
			continue
		}
		hits = append(hits, hitFromDocument(doc.document, dotProduct(vector, doc.Vector)))
	}
	s.mu.RUnlock()

	// Equal scores fall back to DocID so results do not inherit map order.
	slices.SortFunc(hits, func(a, b RetrievedEvidence) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.DocID, b.DocID)
		}
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

// dotProduct scores two embeddings. Embedding services return unit vectors,
// so the dot product equals cosine similarity.
func dotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
