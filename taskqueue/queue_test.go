package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marketlens/marketlens/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okWorker(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
	return core.AnalysisResponse{Answer: "Conclusion:\nok", Model: "qwen-plus"}, nil
}

func waitForStatus(t *testing.T, q *Queue, taskID string, status core.TaskStatus) core.TaskInfo {
	t.Helper()
	var info core.TaskInfo
	require.Eventually(t, func() bool {
		var ok bool
		info, ok = q.Get(taskID)
		return ok && info.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return info
}

func TestQueue_SubmitAndComplete(t *testing.T) {
	queue, err := NewQueue(okWorker, 2)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	info := queue.Submit(core.AnalysisRequest{Question: "why did rates move"})
	assert.NotEmpty(t, info.TaskID)
	assert.False(t, info.Status.Terminal())

	done := waitForStatus(t, queue, info.TaskID, core.TaskCompleted)
	require.NotNil(t, done.Result)
	assert.Equal(t, "Conclusion:\nok", done.Result.Answer)
	assert.Empty(t, done.Error)
	assert.False(t, done.UpdatedAt.Before(done.CreatedAt))
}

func TestQueue_DedupeOnSubmit(t *testing.T) {
	release := make(chan struct{})
	var executions int
	var mu sync.Mutex
	worker := func(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
		mu.Lock()
		executions++
		mu.Unlock()
		<-release
		return core.AnalysisResponse{Answer: "Conclusion:\nok"}, nil
	}

	queue, err := NewQueue(worker, 4)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	request := core.AnalysisRequest{Question: "why did rates move", TopK: 5}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = queue.Submit(request).TaskID
		}(i)
	}
	wg.Wait()
	close(release)

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	mu.Lock()
	assert.Equal(t, 1, executions)
	mu.Unlock()

	t.Run("equivalent after trim of whitespace", func(t *testing.T) {
		again := queue.Submit(core.AnalysisRequest{Question: "  why did rates move  ", TopK: 5})
		assert.Equal(t, ids[0], again.TaskID)
	})

	t.Run("different request gets a new task", func(t *testing.T) {
		other := queue.Submit(core.AnalysisRequest{Question: "why did rates move", TopK: 6})
		assert.NotEqual(t, ids[0], other.TaskID)
	})
}

func TestQueue_FailedTaskAllowsResubmit(t *testing.T) {
	var mu sync.Mutex
	shouldFail := true
	worker := func(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if shouldFail {
			return core.AnalysisResponse{}, errors.New("model host timeout")
		}
		return core.AnalysisResponse{Answer: "Conclusion:\nok"}, nil
	}

	queue, err := NewQueue(worker, 1)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	request := core.AnalysisRequest{Question: "why did rates move"}
	first := queue.Submit(request)
	failed := waitForStatus(t, queue, first.TaskID, core.TaskFailed)
	assert.Contains(t, failed.Error, "model host timeout")
	assert.Nil(t, failed.Result)

	mu.Lock()
	shouldFail = false
	mu.Unlock()

	second := queue.Submit(request)
	require.NotEqual(t, first.TaskID, second.TaskID)
	done := waitForStatus(t, queue, second.TaskID, core.TaskCompleted)
	require.NotNil(t, done.Result)
}

func TestQueue_BoundedRetention(t *testing.T) {
	block := make(chan struct{})
	worker := func(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
		<-block
		return core.AnalysisResponse{}, nil
	}

	queue, err := NewQueue(worker, 1, WithMaxTasks(10))
	require.NoError(t, err)
	t.Cleanup(func() {
		close(block)
		queue.Close()
	})

	var first core.TaskInfo
	for i := 0; i < minMaxTasks+5; i++ {
		info := queue.Submit(core.AnalysisRequest{Question: fmt.Sprintf("question %03d", i)})
		if i == 0 {
			first = info
		}
	}

	list := queue.List(maxListLimit)
	assert.Equal(t, minMaxTasks, list.Total)

	t.Run("floor raises undersized bound", func(t *testing.T) {
		assert.Equal(t, minMaxTasks, queue.maxTasks)
	})

	t.Run("oldest records evicted", func(t *testing.T) {
		_, ok := queue.Get(first.TaskID)
		assert.False(t, ok)
	})

	t.Run("stale dedupe entries purged", func(t *testing.T) {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		for key, taskID := range queue.dedupeIndex {
			_, ok := queue.tasks[taskID]
			assert.True(t, ok, "dedupe key %s points at evicted task", key)
		}
	})
}

func TestQueue_List(t *testing.T) {
	block := make(chan struct{})
	worker := func(ctx context.Context, request core.AnalysisRequest) (core.AnalysisResponse, error) {
		<-block
		return core.AnalysisResponse{}, nil
	}
	queue, err := NewQueue(worker, 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		close(block)
		queue.Close()
	})

	older := queue.Submit(core.AnalysisRequest{Question: "first question"})
	time.Sleep(2 * time.Millisecond)
	newer := queue.Submit(core.AnalysisRequest{Question: "second question"})

	t.Run("newest first", func(t *testing.T) {
		list := queue.List(10)
		require.Len(t, list.Items, 2)
		assert.Equal(t, newer.TaskID, list.Items[0].TaskID)
		assert.Equal(t, older.TaskID, list.Items[1].TaskID)
		assert.Equal(t, 2, list.Total)
	})

	t.Run("limit clamped low", func(t *testing.T) {
		list := queue.List(0)
		assert.Len(t, list.Items, 1)
		assert.Equal(t, 2, list.Total)
	})

	t.Run("limit clamped high", func(t *testing.T) {
		list := queue.List(5000)
		assert.Len(t, list.Items, 2)
	})
}

func TestQueue_CopySemantics(t *testing.T) {
	queue, err := NewQueue(okWorker, 1)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	request := core.AnalysisRequest{Question: "why did rates move", Sources: []string{"https://example.com/a"}}
	info := queue.Submit(request)

	t.Run("caller request not aliased", func(t *testing.T) {
		request.Sources[0] = "mutated"
		stored, ok := queue.Get(info.TaskID)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/a", stored.Payload.Sources[0])
	})

	t.Run("returned result not aliased", func(t *testing.T) {
		done := waitForStatus(t, queue, info.TaskID, core.TaskCompleted)
		done.Result.Answer = "mutated"
		stored, ok := queue.Get(info.TaskID)
		require.True(t, ok)
		assert.Equal(t, "Conclusion:\nok", stored.Result.Answer)
	})
}
