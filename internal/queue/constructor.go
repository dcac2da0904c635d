package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/clipflow/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueuePublish schedules req to be published after delay and returns the
// task id.
func EnqueuePublish(ctx context.Context, client Enqueuer, req models.UploadRequest, delay, timeout time.Duration) (string, error) {
	taskID, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	taskPayload, err := json.Marshal(PublishVideoPayload{TaskID: taskID, Request: req})
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.MaxRetry(3),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}

	task := asynq.NewTask(TaskTypePublishVideo, taskPayload)
	if _, err := client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", err
	}

	slog.Info("publish task scheduled", "task_id", taskID, "video_path", req.VideoPath, "delay", delay)
	return taskID, nil
}
