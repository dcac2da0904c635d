package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/clipflow/pkg/apperror"
)

// HandlePublishVideoTask runs one publish. Transient failures go back to asynq
// for retry. A poll that ran out of time is left to the status refresh job.
func (q *Queue) HandlePublishVideoTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishVideoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	result := q.ps.Publish(ctx, payload.Request)
	if result.Error == nil {
		slog.Info("publish task done", "task_id", payload.TaskID, "publish_id", result.PublishID, "status", result.FinalStatus)
		return nil
	}

	slog.Info("publish task failed",
		"task_id", payload.TaskID,
		"publish_id", result.PublishID,
		"kind", result.Error.Kind,
		"error", result.Error.Message,
	)

	switch {
	case result.Error.Kind == apperror.KindPoll:
		return nil
	case result.Error.Retryable:
		return fmt.Errorf("%s: %s", result.Error.Kind, result.Error.Message)
	default:
		return fmt.Errorf("%s: %s: %w", result.Error.Kind, result.Error.Message, asynq.SkipRetry)
	}
}
