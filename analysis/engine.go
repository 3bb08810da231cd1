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


package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marketlens/marketlens/ai"
	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/marketlens/marketlens/vector"
)

var (
	// ErrQuestionRequired is returned when the request carries an empty question.
	ErrQuestionRequired = errors.New("analysis: question is required")

	// ErrAPIKeyRequired is returned when no LLM credential is configured.
	ErrAPIKeyRequired = errors.New("analysis: LLM API key is required")
)

// Retriever is the slice of the vector store the engine needs.
type Retriever interface {
	Query(ctx context.Context, query string, topK int) ([]vector.RetrievedEvidence, error)
}

// Engine answers analysis questions: optional evidence retrieval, one chat
// completion, template enforcement, and response caching.
//
// The cache lock is never held across the completion call, so two identical
// requests racing a cold cache may both reach the model. The second write
// simply overwrites the first; strict single-flight is intentionally not
// promised here.
type Engine struct {
	cfg       config.Config
	completer ai.Completer
	retriever Retriever
	cache     *Cache
	logger    *slog.Logger
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithRetriever installs the evidence retriever.
func WithRetriever(retriever Retriever) Option {
	return func(e *Engine) {
		e.retriever = retriever
	}
}

// WithCache replaces the default response cache.
func WithCache(cache *Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an analysis engine.
func NewEngine(cfg config.Config, completer ai.Completer, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		completer: completer,
		cache:     NewCache(cfg.AnalysisCacheTTL),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "analysis")
	return e
}

// Analyze answers one request. Configuration problems (empty question,
// missing credential) are the only user-facing errors besides a failed
// completion call; retrieval trouble degrades to answering without evidence.
func (e *Engine) Analyze(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
	question := strings.TrimSpace(request.Question)
	if question == "" {
		return core.AnalysisResponse{}, ErrQuestionRequired
	}
	if e.cfg.LLMAPIKey == "" {
		return core.AnalysisResponse{}, ErrAPIKeyRequired
	}

	key := e.cacheKey(request)
	if cached, ok := e.cache.Get(key); ok {
		e.logger.Debug("cache hit", "key", key[:12])
		return cached, nil
	}

	retrieved := e.retrieve(ctx, question, request)

	messages := []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: e.systemPrompt(request.Sources, retrieved)},
		{Role: ai.RoleUser, Content: userPrompt(question, request.Context)},
	}
	result, err := e.completer.Complete(ctx, messages, ai.SamplingParams{
		Model:       e.cfg.LLMModel,
		Temperature: e.cfg.LLMTemperature,
		MaxTokens:   e.cfg.LLMMaxTokens,
	})
	if err != nil {
		return core.AnalysisResponse{}, fmt.Errorf("analysis: completion: %w", err)
	}

	sourceCount := len(request.Sources) + len(retrieved)
	response := core.AnalysisResponse{
		Answer:  enforceTemplate(result.Content, question, sourceCount, retrieved),
		Model:   e.cfg.LLMModel,
		Sources: retrieved,
	}
	if result.Usage != nil {
		response.Usage = &core.AnalysisUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}

	e.cache.Put(key, response)
	return response, nil
}

// retrieve runs the optional evidence lookup. Every failure path degrades to
// an empty list: retrieval is an optimization, not a precondition.
func (e *Engine) retrieve(ctx context.Context, question string, request core.AnalysisRequest) []core.EventEvidence {
	if !request.UseRetrieval || e.retriever == nil {
		return nil
	}
	topK := request.TopK
	if topK <= 0 {
		topK = e.cfg.AnalysisTopK
	}
	hits, err := e.retriever.Query(ctx, question, topK)
	if err != nil {
		e.logger.Warn("retrieval degraded to no evidence", "error", err)
		return nil
	}
	evidence := make([]core.EventEvidence, 0, len(hits))
	for _, hit := range hits {
		evidence = append(evidence, hit.Evidence())
	}
	return evidence
}

// cacheKey hashes the full request identity, including the sampling
// parameters that shape the answer.
func (e *Engine) cacheKey(request core.AnalysisRequest) string {
	return core.CanonicalHash(struct {
		Question     string   `json:"question"`
		Context      string   `json:"context"`
		Sources      []string `json:"sources"`
		UseRetrieval bool     `json:"use_retrieval"`
		TopK         int      `json:"top_k"`
		Model        string   `json:"model"`
		Temperature  float64  `json:"temperature"`
		MaxTokens    int      `json:"max_tokens"`
	}{
		Question:     strings.TrimSpace(request.Question),
		Context:      strings.TrimSpace(request.Context),
		Sources:      request.Sources,
		UseRetrieval: request.UseRetrieval,
		TopK:         request.TopK,
		Model:        e.cfg.LLMModel,
		Temperature:  e.cfg.LLMTemperature,
		MaxTokens:    e.cfg.LLMMaxTokens,
	})
}

func (e *Engine) systemPrompt(userSources []string, retrieved []core.EventEvidence) string {
	parts := []string{
		"You are a financial source analysis assistant.",
		"You must answer in the fixed template exactly, adding or removing no top-level sections.",
		"The fixed template is:",
		"Conclusion:",
		"Impact:",
		"Risk:",
		"Watchpoints:",
		"Cite sources with bracketed numbers (for example: [1], [2]).",
		"If the evidence is thin, say so explicitly under Risk: and still keep the template complete.",
	}

	if len(userSources) > 0 {
		numbered := make([]string, len(userSources))
		for i, source := range userSources {
			numbered[i] = fmt.Sprintf("[%d] %s", i+1, source)
		}
		parts = append(parts, "Sources provided by the user:\n"+strings.Join(numbered, "\n"))
	}

	if len(retrieved) > 0 {
		base := len(userSources)
		blocks := make([]string, len(retrieved))
		for i, evidence := range retrieved {
			blocks[i] = strings.Join([]string{
				fmt.Sprintf("[%d] %s", base+i+1, evidence.Title),
				"URL: " + evidence.SourceURL,
				"Published: " + evidence.PublishedAt.Format(time.RFC3339),
				"Excerpt: " + evidence.Excerpt,
			}, "\n")
		}
		parts = append(parts, "Evidence retrieved by the system:\n"+strings.Join(blocks, "\n\n"))
	}

	return strings.Join(parts, "\n")
}

func userPrompt(question, context string) string {
	parts := []string{question}
	if trimmed := strings.TrimSpace(context); trimmed != "" {
		parts = append(parts, "Context:\n"+trimmed)
	}
	return strings.Join(parts, "\n\n")
}
