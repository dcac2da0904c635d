package queue

import (
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/service"
)

type Queue struct {
	ps service.PublishService
}

func NewQueue(ps service.PublishService) *Queue {
	return &Queue{ps: ps}
}

const TaskTypePublishVideo = "publish:video"

type PublishVideoPayload struct {
	TaskID  string               `json:"task_id"`
	Request models.UploadRequest `json:"request"`
}
