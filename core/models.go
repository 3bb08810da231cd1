package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities, generated by content-based
// hashing so identical content always produces the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceType classifies the kind of upstream feed an event came from.
type SourceType string

const (
	SourceNews      SourceType = "news"
	SourceFiling    SourceType = "filing"
	SourceEarnings  SourceType = "earnings"
	SourceResearch  SourceType = "research"
	SourceMacroData SourceType = "macro_data"
)

// EventType classifies what kind of market occurrence an event describes.
type EventType string

const (
	EventEarnings     EventType = "earnings"
	EventGuidance     EventType = "guidance"
	EventMNA          EventType = "mna"
	EventBuyback      EventType = "buyback"
	EventRateDecision EventType = "rate_decision"
	EventMacroRelease EventType = "macro_release"
	EventRegulation   EventType = "regulation"
	EventRisk         EventType = "risk"
)

// Stance is the directional read of an event.
type Stance string

const (
	StancePositive Stance = "positive"
	StanceNegative Stance = "negative"
	StanceNeutral  Stance = "neutral"
)

// Origin distinguishes live-fetched events from synthetic seed events.
type Origin string

const (
	OriginLive Origin = "live"
	OriginSeed Origin = "seed"
)

// EventNumber is a single named figure attached to an event (EPS, revenue, a
// macro print) with optional growth rates.
type EventNumber struct {
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Unit          string  `json:"unit,omitempty"`
	Period        string  `json:"period,omitempty"`
	YoY           float64 `json:"yoy,omitempty"`
	QoQ           float64 `json:"qoq,omitempty"`
	SourceQuoteID string  `json:"source_quote_id,omitempty"`
}

// EventEvidence is a verbatim excerpt backing an event. Evidence is always
// owned by an event; the analysis engine only references it.
type EventEvidence struct {
	QuoteID     string    `json:"quote_id"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Excerpt     string    `json:"excerpt"`
}

// Event is a single normalized market-relevant occurrence. Events are
// immutable values: once created by a source or the seed generator they are
// never mutated, only replaced wholesale by the next snapshot.
type Event struct {
	EventID     string          `json:"event_id"`
	EventTime   time.Time       `json:"event_time"`
	IngestTime  time.Time       `json:"ingest_time"`
	SourceType  SourceType      `json:"source_type"`
	Publisher   string          `json:"publisher"`
	Headline    string          `json:"headline"`
	Summary     string          `json:"summary"`
	EventType   EventType       `json:"event_type"`
	Markets     []string        `json:"markets"`
	Tickers     []string        `json:"tickers"`
	Sectors     []string        `json:"sectors"`
	Numbers     []EventNumber   `json:"numbers,omitempty"`
	Stance      Stance          `json:"stance"`
	Impact      int             `json:"impact"`     // 0-100
	Confidence  float64         `json:"confidence"` // 0-1
	ImpactChain []string        `json:"impact_chain,omitempty"`
	Evidence    []EventEvidence `json:"evidence"`
	Origin      Origin          `json:"origin"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Markets = append([]string(nil), e.Markets...)
	out.Tickers = append([]string(nil), e.Tickers...)
	out.Sectors = append([]string(nil), e.Sectors...)
	out.Numbers = append([]EventNumber(nil), e.Numbers...)
	out.ImpactChain = append([]string(nil), e.ImpactChain...)
	out.Evidence = append([]EventEvidence(nil), e.Evidence...)
	return out
}

// QuoteSnapshot is the latest observed quote for one tracked asset.
type QuoteSnapshot struct {
	AssetID   string    `json:"asset_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	ChangePct float64   `json:"change_pct"`
	AsOf      time.Time `json:"as_of"`
}

// RefreshReport summarizes one ingestion cycle. It is produced once per
// coordinator run and retained by the snapshot store as the last report.
// LiveEvents and SeedEvents are input counts; TotalEvents is post-dedupe.
type RefreshReport struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMS   int64     `json:"duration_ms"`
	TotalEvents  int       `json:"total_events"`
	LiveEvents   int       `json:"live_events"`
	SeedEvents   int       `json:"seed_events"`
	QuoteAssets  int       `json:"quote_assets"`
	SourceErrors []string  `json:"source_errors"`
}

// AnalysisRequest carries one analysis question plus its retrieval settings.
type AnalysisRequest struct {
	Question     string   `json:"question"`
	Context      string   `json:"context,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	UseRetrieval bool     `json:"use_retrieval"`
	TopK         int      `json:"top_k"`
}

// Clone returns a deep copy of the request.
func (r AnalysisRequest) Clone() AnalysisRequest {
	out := r
	out.Sources = append([]string(nil), r.Sources...)
	return out
}

// AnalysisUsage carries the token accounting reported by the model.
type AnalysisUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AnalysisResponse is the answer produced for one AnalysisRequest.
type AnalysisResponse struct {
	Answer  string          `json:"answer"`
	Model   string          `json:"model"`
	Usage   *AnalysisUsage  `json:"usage,omitempty"`
	Sources []EventEvidence `json:"sources,omitempty"`
}

// Clone returns a deep copy of the response.
func (r AnalysisResponse) Clone() AnalysisResponse {
	out := r
	if r.Usage != nil {
		usage := *r.Usage
		out.Usage = &usage
	}
	out.Sources = append([]EventEvidence(nil), r.Sources...)
	return out
}

// TaskStatus is the lifecycle state of a background analysis task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskInfo is the externally visible value copy of a task record.
type TaskInfo struct {
	TaskID    string            `json:"task_id"`
	Status    TaskStatus        `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Payload   AnalysisRequest   `json:"payload"`
	Result    *AnalysisResponse `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// TaskList is a page of task records plus the total retained count.
type TaskList struct {
	Items []TaskInfo `json:"items"`
	Total int        `json:"total"`
}
