package vector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marketlens/marketlens/ai"
	"github.com/marketlens/marketlens/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evidence (
	doc_id       TEXT PRIMARY KEY,
	quote_id     TEXT NOT NULL,
	source_url   TEXT NOT NULL,
	title        TEXT NOT NULL,
	published_at TIMESTAMP,
	excerpt      TEXT NOT NULL,
	embedding    BLOB NOT NULL
);
`

// sqliteStore keeps embedded documents in SQLite. When the sqlite-vec
// extension is compiled in (build tag sqlite_vec), distance ranking happens
// inside the database; otherwise embeddings are decoded and scored in Go.
type sqliteStore struct {
	db           *sql.DB
	embedder     ai.Embedder
	logger       *slog.Logger
	vecAvailable bool
}

func openSQLiteStore(dsn string, embedder ai.Embedder) (*sqliteStore, error) {
	logger := slog.Default().With("component", "vector.sqlite")

	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("vector: create index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("vector: open sqlite index: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: create schema: %w", err)
	}

	s := &sqliteStore{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.vecAvailable = true
		logger.Info("sqlite-vec extension active", "version", version)
	} else {
		logger.Info("sqlite-vec extension not available, scoring in process")
	}
	return s, nil
}

func (s *sqliteStore) Ready() bool {
	return s.db.Ping() == nil
}

func (s *sqliteStore) UpsertEvents(ctx context.Context, events []core.Event) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vector: begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO evidence
			(doc_id, quote_id, source_url, title, published_at, excerpt, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("vector: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		blob, err := encodeVectorBlob(vectors[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			doc.DocID, doc.QuoteID, doc.SourceURL, doc.Title, doc.PublishedAt, doc.Excerpt, blob); err != nil {
			return fmt.Errorf("vector: upsert %s: %w", doc.DocID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vector: commit upsert: %w", err)
	}

	s.logger.Debug("index updated", "documents", len(docs))
	return nil
}

func (s *sqliteStore) Query(ctx context.Context, query string, topK int) ([]RetrievedEvidence, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingsUnavailable, err)
	}
	if s.vecAvailable {
		return s.queryWithExtension(ctx, vector, topK)
	}
	return s.queryInProcess(ctx, vector, topK)
}

// queryWithExtension ranks rows with vec_distance_cosine inside SQLite.
// Cosine distance is 1 - similarity.
func (s *sqliteStore) queryWithExtension(ctx context.Context, vector []float32, topK int) ([]RetrievedEvidence, error) {
	blob, err := encodeVectorBlob(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, quote_id, source_url, title, published_at, excerpt,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM evidence
		ORDER BY distance ASC
		LIMIT ?`, blob, topK)
	if err != nil {
		return nil, fmt.Errorf("vector: similarity query: %w", err)
	}
	defer rows.Close()

	var hits []RetrievedEvidence
	for rows.Next() {
		var hit RetrievedEvidence
		var distance float64
		if err := rows.Scan(&hit.DocID, &hit.QuoteID, &hit.SourceURL, &hit.Title,
			&hit.PublishedAt, &hit.Excerpt, &distance); err != nil {
			return nil, fmt.Errorf("vector: scan hit: %w", err)
		}
		hit.Score = float32(1.0 - distance)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// queryInProcess scans every stored embedding and scores it in Go.
func (s *sqliteStore) queryInProcess(ctx context.Context, vector []float32, topK int) ([]RetrievedEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, quote_id, source_url, title, published_at, excerpt, embedding
		FROM evidence`)
	if err != nil {
		return nil, fmt.Errorf("vector: scan index: %w", err)
	}
	defer rows.Close()

	var hits []RetrievedEvidence
	for rows.Next() {
		var hit RetrievedEvidence
		var blob []byte
		if err := rows.Scan(&hit.DocID, &hit.QuoteID, &hit.SourceURL, &hit.Title,
			&hit.PublishedAt, &hit.Excerpt, &blob); err != nil {
			return nil, fmt.Errorf("vector: scan hit: %w", err)
		}
		stored, err := decodeVectorBlob(blob)
		if err != nil {
			return nil, err
		}
		hit.Score = cosineSimilarity(vector, stored)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

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

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// encodeVectorBlob packs a float32 slice little-endian, the layout sqlite-vec
// expects for float[] columns and distance functions.
func encodeVectorBlob(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("vector: encode embedding: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVectorBlob(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector: malformed embedding blob of %d bytes", len(blob))
	}
	out := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("vector: decode embedding: %w", err)
	}
	return out, nil
}

// cosineSimilarity handles stored vectors that may not be normalized.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
