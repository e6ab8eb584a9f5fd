package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inkpress/inkpress/internal/media"
	"github.com/inkpress/inkpress/internal/platform/db"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMediaPurge deletes a stored file whose inline deletion failed.
	TaskMediaPurge = "media:purge"
	// TaskSessionsPrune removes expired login session rows.
	TaskSessionsPrune = "sessions:prune"
)

// Observer is told about every processed task.
type Observer interface {
	ObserveJob(task string, err error)
}

// MediaPurgePayload identifies the stored file to delete.
type MediaPurgePayload struct {
	Ref string `json:"ref"`
}

// NewMediaPurgeTask constructs an Asynq task.
func NewMediaPurgeTask(ref string) (*asynq.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("jobs: media purge needs a reference")
	}
	data, err := json.Marshal(MediaPurgePayload{Ref: ref})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMediaPurge, data), nil
}

// MediaPurgeJob processes TaskMediaPurge tasks.
type MediaPurgeJob struct {
	Storage  media.Storage
	Logger   *slog.Logger
	Observer Observer
}

// Handle deletes the referenced file. Malformed payloads are not retried.
func (j *MediaPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload MediaPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || strings.TrimSpace(payload.Ref) == "" {
		j.observe(asynq.SkipRetry)
		return fmt.Errorf("media purge: invalid payload: %w", asynq.SkipRetry)
	}
	err := j.Storage.Delete(ctx, payload.Ref)
	j.observe(err)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Warn("media purge failed", slog.String("ref", payload.Ref), slog.Any("error", err))
		}
		return err
	}
	return nil
}

func (j *MediaPurgeJob) observe(err error) {
	if j.Observer != nil {
		j.Observer.ObserveJob(TaskMediaPurge, err)
	}
}

// NewSessionsPruneTask constructs the periodic prune task.
func NewSessionsPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPrune, nil)
}

// SessionsPruneJob deletes session audit rows past their expiry.
type SessionsPruneJob struct {
	DB       db.DBTX
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Handle removes expired rows.
func (j *SessionsPruneJob) Handle(ctx context.Context, _ *asynq.Task) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	tag, err := j.DB.Exec(ctx, "DELETE FROM sessions WHERE expires_at < $1", now().UTC())
	if j.Observer != nil {
		j.Observer.ObserveJob(TaskSessionsPrune, err)
	}
	if err != nil {
		return fmt.Errorf("sessions prune: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("sessions pruned", slog.Int64("rows", tag.RowsAffected()))
	}
	return nil
}
