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


package taskqueue

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/marketlens/marketlens/core"
)

const (
	defaultMaxTasks = 300
	minMaxTasks     = 50
	defaultWorkers  = 4
	maxListLimit    = 200
)

// Worker executes one analysis request in the background.
type Worker func(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error)

type taskRecord struct {
	core.TaskInfo
	dedupeKey string
}

// Queue runs analysis requests in the background with idempotent submission:
// an equivalent request already pending, running, or completed is returned
// as-is instead of scheduling duplicate work. Only a failed record frees its
// dedupe slot for resubmission.
//
// The internal lock guards only the maps; it is released around the worker
// call, so a failed-then-resubmitted race can in principle run the same
// request twice. Responsiveness is preferred over strict single-flight.
type Queue struct {
	worker   Worker
	pool     *ants.Pool
	maxTasks int
	logger   *slog.Logger

	mu          sync.Mutex
	tasks       map[string]*taskRecord
	dedupeIndex map[string]string
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxTasks bounds retention; values below the floor are raised to it.
func WithMaxTasks(maxTasks int) Option {
	return func(q *Queue) {
		q.maxTasks = maxTasks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue creates a queue executing on workers goroutines.
func NewQueue(worker Worker, workers int, opts ...Option) (*Queue, error) {
	if workers < 1 {
		workers = defaultWorkers
	}
	q := &Queue{
		worker:      worker,
		maxTasks:    defaultMaxTasks,
		logger:      slog.Default(),
		tasks:       make(map[string]*taskRecord),
		dedupeIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxTasks < minMaxTasks {
		q.maxTasks = minMaxTasks
	}
	q.logger = q.logger.With("component", "taskqueue")

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	q.pool = pool
	return q, nil
}

// Submit registers a request for background execution. An existing non-failed
// record with the same dedupe key is returned unchanged and no new work
// starts.
func (q *Queue) Submit(request core.AnalysisRequest) core.TaskInfo {
	dedupeKey := buildDedupeKey(request)

	q.mu.Lock()
	if existingID, ok := q.dedupeIndex[dedupeKey]; ok {
		if existing, ok := q.tasks[existingID]; ok && existing.Status != core.TaskFailed {
			info := snapshotRecord(existing)
			q.mu.Unlock()
			return info
		}
	}

	now := time.Now().UTC()
	record := &taskRecord{
		TaskInfo: core.TaskInfo{
			TaskID:    uuid.NewString(),
			Status:    core.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
			Payload:   request.Clone(),
		},
		dedupeKey: dedupeKey,
	}
	q.tasks[record.TaskID] = record
	q.dedupeIndex[dedupeKey] = record.TaskID
	q.trimLocked()
	info := snapshotRecord(record)
	q.mu.Unlock()

	// Scheduling happens off the submitter's goroutine: a full worker pool
	// blocks pool.Submit until a worker frees up, and that wait must not
	// stall Submit itself.
	taskID := record.TaskID
	go func() {
		if err := q.pool.Submit(func() { q.run(taskID) }); err != nil {
			q.logger.Error("failed to schedule task", "task_id", taskID, "error", err)
			q.mu.Lock()
			if record, ok := q.tasks[taskID]; ok && !record.Status.Terminal() {
				record.Status = core.TaskFailed
				record.Error = err.Error()
				record.UpdatedAt = time.Now().UTC()
			}
			q.mu.Unlock()
		}
	}()
	return info
}

// Get returns a value copy of the task record, if retained.
func (q *Queue) Get(taskID string) (core.TaskInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok := q.tasks[taskID]
	if !ok {
		return core.TaskInfo{}, false
	}
	return snapshotRecord(record), true
}

// List returns up to limit records newest-first by creation time, ties broken
// by id. The limit is clamped to [1, 200].
func (q *Queue) List(limit int) core.TaskList {
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := make([]*taskRecord, 0, len(q.tasks))
	for _, record := range q.tasks {
		ordered = append(ordered, record)
	}
	slices.SortFunc(ordered, func(a, b *taskRecord) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return -strings.Compare(a.TaskID, b.TaskID)
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	items := make([]core.TaskInfo, len(ordered))
	for i, record := range ordered {
		items[i] = snapshotRecord(record)
	}
	return core.TaskList{Items: items, Total: len(q.tasks)}
}

// Close drains in-flight tasks and releases the worker pool. Tasks still
// running after the drain window are abandoned.
func (q *Queue) Close() {
	if err := q.pool.ReleaseTimeout(5 * time.Second); err != nil {
		q.pool.Release()
	}
}

// run drives one task through the state machine. The lock is held only to
// mutate the maps, never across the analysis call itself.
func (q *Queue) run(taskID string) {
	q.mu.Lock()
	record, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return
	}
	record.Status = core.TaskRunning
	record.UpdatedAt = time.Now().UTC()
	payload := record.Payload.Clone()
	q.mu.Unlock()

	result, err := q.worker(context.Background(), payload)

	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok = q.tasks[taskID]
	if !ok {
		// Evicted while running; nothing left to record.
		return
	}
	if err != nil {
		record.Status = core.TaskFailed
		record.Error = err.Error()
		record.UpdatedAt = time.Now().UTC()
		q.logger.Warn("task failed", "task_id", taskID, "error", err)
		return
	}
	record.Status = core.TaskCompleted
	record.Result = &result
	record.Error = ""
	record.UpdatedAt = time.Now().UTC()
	q.trimLocked()
}

// trimLocked evicts the oldest records beyond the retention bound and purges
// dedupe entries left pointing at evicted ids. Caller holds q.mu.
func (q *Queue) trimLocked() {
	if len(q.tasks) <= q.maxTasks {
		return
	}

	ordered := make([]*taskRecord, 0, len(q.tasks))
	for _, record := range q.tasks {
		ordered = append(ordered, record)
	}
	slices.SortFunc(ordered, func(a, b *taskRecord) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return -strings.Compare(a.TaskID, b.TaskID)
	})
	for _, record := range ordered[q.maxTasks:] {
		delete(q.tasks, record.TaskID)
	}

	for key, taskID := range q.dedupeIndex {
		if _, ok := q.tasks[taskID]; !ok {
			delete(q.dedupeIndex, key)
		}
	}
}

// snapshotRecord produces the externally visible deep copy of a record.
func snapshotRecord(record *taskRecord) core.TaskInfo {
	info := record.TaskInfo
	info.Payload = record.Payload.Clone()
	if record.Result != nil {
		result := record.Result.Clone()
		info.Result = &result
	}
	return info
}

// buildDedupeKey hashes the request identity the same way the analysis cache
// does, minus the sampling parameters the queue does not know about.
func buildDedupeKey(request core.AnalysisRequest) string {
	return core.CanonicalHash(struct {
		Question     string   `json:"question"`
		Context      string   `json:"context"`
		Sources      []string `json:"sources"`
		UseRetrieval bool     `json:"use_retrieval"`
		TopK         int      `json:"top_k"`
	}{
		Question:     strings.TrimSpace(request.Question),
		Context:      strings.TrimSpace(request.Context),
		Sources:      request.Sources,
		UseRetrieval: request.UseRetrieval,
		TopK:         request.TopK,
	})
}
