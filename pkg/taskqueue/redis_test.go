package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQueue 基于miniredis创建队列
func setupQueue(t *testing.T) *RedisQueue {
	mr := miniredis.RunT(t)

	queue, err := NewRedisQueue(&Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 1,
		RetryLimit:  1,
		RetryDelay:  time.Second,
		Logger:      logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestRedisQueueEnqueueAndStatus(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskIndexRebuild, &IndexRebuildPayload{Reason: "api"})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskIndexRebuild, task.Type)
	assert.Equal(t, StatusPending, task.Status)

	var payload IndexRebuildPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &payload))
	assert.Equal(t, "api", payload.Reason)

	second, err := queue.Enqueue(ctx, TaskIndexRebuild, nil)
	require.NoError(t, err)
	tasks, err := queue.ListTasks(ctx, TaskIndexRebuild)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	require.NoError(t, queue.DeleteTask(ctx, second))
	_, err = queue.GetTask(ctx, second)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRedisQueueEnqueueIn(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	before := time.Now()
	taskID, err := queue.EnqueueIn(ctx, TaskIndexRebuild, &IndexRebuildPayload{Reason: "nightly"}, time.Hour)
	require.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	require.NotNil(t, task.ProcessAt)
	assert.WithinDuration(t, before.Add(time.Hour), *task.ProcessAt, time.Minute)

	info, err := queue.inspector.GetTaskInfo(DefaultQueue, taskID)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStateScheduled, info.State)

	// 延迟不为正时立即入队
	immediate, err := queue.EnqueueIn(ctx, TaskIndexRebuild, nil, 0)
	require.NoError(t, err)
	task, err = queue.GetTask(ctx, immediate)
	require.NoError(t, err)
	assert.Nil(t, task.ProcessAt)
	info, err = queue.inspector.GetTaskInfo(DefaultQueue, immediate)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)

	tasks, err := queue.ListTasks(ctx, TaskIndexRebuild)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestRedisQueueWaitForTask(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskIndexRebuild, nil)
	require.NoError(t, err)

	_, err = queue.WaitForTask(ctx, taskID, 50*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTaskTimeout))

	go func() {
		time.Sleep(100 * time.Millisecond)
		queue.UpdateTaskStatus(context.Background(), taskID, StatusCompleted, &IndexRebuildResult{Chunks: 3}, "")
		queue.NotifyTaskUpdate(context.Background(), taskID)
	}()

	task, err := queue.WaitForTask(ctx, taskID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var result IndexRebuildResult
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.Equal(t, 3, result.Chunks)
}

// stubRebuilder 固定返回结果的重建服务
type stubRebuilder struct {
	stats vectordb.Stats
	err   error
	calls int
}

func (s *stubRebuilder) Rebuild(ctx context.Context) (vectordb.Stats, error) {
	s.calls++
	return s.stats, s.err
}

func TestWorkerRunsRebuildHandler(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()

	rebuilder := &stubRebuilder{stats: vectordb.Stats{Chunks: 7, Dimension: 512, Model: "local-hash", Backend: "memory"}}
	handler := NewIndexRebuildHandler(rebuilder, logger.Discard())
	assert.Equal(t, []TaskType{TaskIndexRebuild}, handler.GetTaskTypes())

	worker := NewRedisWorker(queue, nil)
	worker.RegisterHandler(TaskIndexRebuild, handler)

	taskID, err := queue.Enqueue(ctx, TaskIndexRebuild, &IndexRebuildPayload{Reason: "test"})
	require.NoError(t, err)

	process := worker.handle(handler)
	require.NoError(t, process(ctx, asynq.NewTask(string(TaskIndexRebuild), []byte(taskID))))
	assert.Equal(t, 1, rebuilder.calls)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	info := NewTaskInfo(task)
	var result IndexRebuildResult
	require.NoError(t, json.Unmarshal(info.Result, &result))
	assert.Equal(t, 7, result.Chunks)
	assert.Equal(t, "memory", result.Backend)

	rebuilder.err = vectordb.ErrIndexEmpty
	failedID, err := queue.Enqueue(ctx, TaskIndexRebuild, nil)
	require.NoError(t, err)
	err = process(ctx, asynq.NewTask(string(TaskIndexRebuild), []byte(failedID)))
	assert.True(t, errors.Is(err, vectordb.ErrIndexEmpty))

	task, err = queue.GetTask(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Error, "index rebuild failed")
}

func TestNewQueueFactory(t *testing.T) {
	_, err := NewQueue("kafka", DefaultConfig())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	q, err := NewQueue("redis", &Config{RedisAddr: mr.Addr(), Logger: logger.Discard()})
	require.NoError(t, err)
	assert.NoError(t, q.Close())
}
