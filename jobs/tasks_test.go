package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/inkpress/internal/media"
)

type fakeStorage struct {
	deleted []string
	err     error
}

func (s *fakeStorage) Store(context.Context, media.Upload) (string, error) { return "", nil }

func (s *fakeStorage) Delete(_ context.Context, ref string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *fakeStorage) URL(ref string) string { return ref }

type jobCounts map[string]int

func (c jobCounts) ObserveJob(task string, err error) {
	key := task + ":ok"
	if err != nil {
		key = task + ":err"
	}
	c[key]++
}

func TestMediaPurgeJob(t *testing.T) {
	t.Run("Should delete the referenced file", func(t *testing.T) {
		storage := &fakeStorage{}
		counts := jobCounts{}
		job := &MediaPurgeJob{Storage: storage, Observer: counts}
		task, err := NewMediaPurgeTask("posts/a.png")
		require.NoError(t, err)

		require.NoError(t, job.Handle(context.Background(), task))
		assert.Equal(t, []string{"posts/a.png"}, storage.deleted)
		assert.Equal(t, 1, counts["media:purge:ok"])
	})
	t.Run("Should skip retries for malformed payloads", func(t *testing.T) {
		job := &MediaPurgeJob{Storage: &fakeStorage{}}
		for _, payload := range [][]byte{[]byte("{"), []byte(`{"ref":""}`)} {
			err := job.Handle(context.Background(), asynq.NewTask(TaskMediaPurge, payload))
			assert.ErrorIs(t, err, asynq.SkipRetry)
		}
	})
	t.Run("Should surface storage errors for retry", func(t *testing.T) {
		storage := &fakeStorage{err: errors.New("bucket offline")}
		counts := jobCounts{}
		job := &MediaPurgeJob{Storage: storage, Observer: counts}
		task, err := NewMediaPurgeTask("posts/a.png")
		require.NoError(t, err)

		err = job.Handle(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
		assert.Equal(t, 1, counts["media:purge:err"])
	})
}

func TestNewMediaPurgeTaskRejectsBlankRef(t *testing.T) {
	_, err := NewMediaPurgeTask("  ")
	assert.Error(t, err)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *fakeEnqueuer) Close() error { return nil }

func TestClientEnqueueMediaPurge(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	require.NoError(t, client.EnqueueMediaPurge(context.Background(), "posts/b.png"))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskMediaPurge, enq.tasks[0].Type())
	var payload MediaPurgePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "posts/b.png", payload.Ref)
}

func TestSessionsPruneJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at < \\$1").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	job := &SessionsPruneJob{DB: mock, Now: func() time.Time { return now }}
	require.NoError(t, job.Handle(context.Background(), NewSessionsPruneTask()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthHandler(t *testing.T) {
	t.Run("Should report queue counters", func(t *testing.T) {
		h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}}, nil)
		rr := httptest.NewRecorder()
		h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body queueHealth
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Pending)
		assert.Equal(t, 1, body.Retry)
	})
	t.Run("Should report unavailable queues", func(t *testing.T) {
		h := NewHandler(fakeInspector{err: errors.New("redis down")}, nil)
		rr := httptest.NewRecorder()
		h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
