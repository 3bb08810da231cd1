package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/marketlens/marketlens/core"
)

const (
	lexicalIndexFile = "lexical.json"
	titleMatchBoost  = 0.15
)

// lexicalDoc is the persisted form of a lexically indexed document.
type lexicalDoc struct {
	document
	Tokens []string `json:"tokens"`
}

// lexicalStore ranks documents by token overlap with the query. It needs no
// embedding service, which makes it the default backend: retrieval quality is
// rougher but a refresh can never fail on an unreachable model host.
type lexicalStore struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	docs map[string]lexicalDoc
}

// openLexicalStore loads the index file at dir if present. An empty dir keeps
// the index purely in memory.
func openLexicalStore(dir string) (*lexicalStore, error) {
	s := &lexicalStore{
		logger: slog.Default().With("component", "vector.lexical"),
		docs:   make(map[string]lexicalDoc),
	}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("vector: create index dir: %w", err)
	}
	s.path = filepath.Join(dir, lexicalIndexFile)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("vector: read lexical index: %w", err)
	}
	var docs []lexicalDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("vector: decode lexical index: %w", err)
	}
	for _, doc := range docs {
		s.docs[doc.DocID] = doc
	}
	return s, nil
}

func (s *lexicalStore) Ready() bool { return true }

func (s *lexicalStore) UpsertEvents(ctx context.Context, events []core.Event) error {
	docs := buildDocuments(events)
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.DocID] = lexicalDoc{document: doc, Tokens: tokenize(doc.Text)}
	}
	return s.persistLocked()
}

// persistLocked rewrites the index file wholesale. Caller holds s.mu.
func (s *lexicalStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	docs := make([]lexicalDoc, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b lexicalDoc) int {
		return strings.Compare(a.DocID, b.DocID)
	})

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("vector: encode lexical index: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("vector: write lexical index: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("vector: replace lexical index: %w", err)
	}
	return nil
}

func (s *lexicalStore) Query(ctx context.Context, query string, topK int) ([]RetrievedEvidence, error) {
	if topK <= 0 {
		topK = 5
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, token := range queryTokens {
		querySet[token] = struct{}{}
	}

	s.mu.RLock()
	var hits []RetrievedEvidence
	for _, doc := range s.docs {
		score := overlapScore(querySet, doc.Tokens)
		if score <= 0 {
			continue
		}
		if titleMatches(querySet, doc.Title) {
			score += titleMatchBoost
		}
		hits = append(hits, hitFromDocument(doc.document, score))
	}
	s.mu.RUnlock()

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

func (s *lexicalStore) Close() error { return nil }

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return strings.Fields(sb.String())
}

// overlapScore is the fraction of query tokens present in the document.
func overlapScore(querySet map[string]struct{}, tokens []string) float32 {
	if len(querySet) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		docSet[token] = struct{}{}
	}
	matched := 0
	for token := range querySet {
		if _, ok := docSet[token]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(querySet))
}

func titleMatches(querySet map[string]struct{}, title string) bool {
	for _, token := range tokenize(title) {
		if _, ok := querySet[token]; ok {
			return true
		}
	}
	return false
}
