package vector

import (
	"fmt"
	"strings"
	"time"

	"github.com/marketlens/marketlens/core"
)

// maxDocumentRunes caps the text sent to the embedding service per document.
const maxDocumentRunes = 1200

// document is one indexable unit: a single evidence excerpt together with the
// classification text of the event that owns it.
type document struct {
	DocID       string    `json:"doc_id"`
	QuoteID     string    `json:"quote_id"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Excerpt     string    `json:"excerpt"`
	Text        string    `json:"text"`
}

// buildDocuments flattens events into evidence documents. Every evidence
// entry becomes one document whose text combines the event headline and
// summary with the evidence title and excerpt, so queries match on either
// the classification or the verbatim source.
func buildDocuments(events []core.Event) []document {
	var docs []document
	for _, event := range events {
		for _, evidence := range event.Evidence {
			quoteID := evidence.QuoteID
			if quoteID == "" {
				quoteID = fmt.Sprintf("%d", core.IDFromContent(evidence.SourceURL+evidence.Excerpt))
			}
			docs = append(docs, document{
				DocID:       "evidence:" + quoteID,
				QuoteID:     quoteID,
				SourceURL:   evidence.SourceURL,
				Title:       evidence.Title,
				PublishedAt: evidence.PublishedAt,
				Excerpt:     evidence.Excerpt,
				Text:        documentText(event, evidence),
			})
		}
	}
	return docs
}

func documentText(event core.Event, evidence core.EventEvidence) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{event.Headline, event.Summary, evidence.Title, evidence.Excerpt} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	text := strings.Join(parts, "\n")
	if runes := []rune(text); len(runes) > maxDocumentRunes {
		text = string(runes[:maxDocumentRunes])
	}
	return text
}

func hitFromDocument(doc document, score float32) RetrievedEvidence {
	return RetrievedEvidence{
		DocID:       doc.DocID,
		QuoteID:     doc.QuoteID,
		SourceURL:   doc.SourceURL,
		Title:       doc.Title,
		PublishedAt: doc.PublishedAt,
		Excerpt:     doc.Excerpt,
		Score:       score,
	}
}
