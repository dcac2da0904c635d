package job

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
)

const concurrencyLimit = 4

// StatusRefreshJob re-polls publish jobs that were left PROCESSING and keeps
// the stored credential fresh between publishes.
type StatusRefreshJob struct {
	jr    repository.PublishJobRepository
	ps    service.PublishService
	batch int
}

func NewStatusRefreshJob(jr repository.PublishJobRepository, ps service.PublishService, batch int) *StatusRefreshJob {
	if batch <= 0 {
		batch = 20
	}
	return &StatusRefreshJob{
		jr:    jr,
		ps:    ps,
		batch: batch,
	}
}

func (c *StatusRefreshJob) RefreshStatuses() {
	ctx := context.Background()

	jobs, err := c.jr.ListByStatus(ctx, string(models.StatusProcessing), c.batch)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, j := range jobs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(j *models.PublishJob) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result := c.ps.Resume(ctx, j.PublishID)
			if result.Error != nil {
				slog.Info("status refresh failed", "publish_id", j.PublishID, "kind", result.Error.Kind, "error", result.Error.Message)
				return
			}
			slog.Info("status refreshed", "publish_id", j.PublishID, "status", result.FinalStatus)
		}(j)
	}

	wg.Wait()
}

func (c *StatusRefreshJob) RefreshCredential() {
	if _, err := c.ps.Credential(context.Background()); err != nil {
		slog.Info("Unable to refresh tokens for TikTok", "error", err)
	}
}
