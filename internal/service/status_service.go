package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/transfer"
	"github.com/maheshrc27/clipflow/pkg/apperror"
)

// PollOutcome is the terminal state of a publish job.
type PollOutcome struct {
	Status     models.PublishStatus
	FailReason string
	PostIDs    []int64
}

type StatusService interface {
	FetchStatus(ctx context.Context, cred *models.Credential, publishID string) (*transfer.TiktokStatusData, error)
	Poll(ctx context.Context, cred *models.Credential, publishID string, interval, timeout time.Duration) (models.PublishStatus, error)
	Await(ctx context.Context, cred *models.Credential, publishID string, interval, timeout time.Duration) (*PollOutcome, error)
}

type statusService struct {
	cfg    config.Config
	client *TiktokClient
}

func NewStatusService(cfg config.Config, client *TiktokClient) StatusService {
	return &statusService{
		cfg:    cfg,
		client: client,
	}
}

// FetchStatus returns transport failures as they are so the caller can retry
// them, including 5xx and 429 responses that carry an error envelope. Anything
// else TikTok answered with an error is a rejected PollError.
func (s *statusService) FetchStatus(ctx context.Context, cred *models.Credential, publishID string) (*transfer.TiktokStatusData, error) {
	var resp transfer.TikTokStatusResponse
	err := s.client.postJSON(ctx, cred, tiktokStatusPath, transfer.StatusFetchRequest{PublishID: publishID}, &resp)
	switch {
	case err == nil:
	case ctx.Err() != nil, apperror.IsTransient(err):
		return nil, err
	case errors.Is(err, errThrottled):
		return nil, &apperror.PollError{Kind: apperror.PollTimedOut, PublishID: publishID, Err: err}
	}

	if resp.Error.Failed() {
		return nil, &apperror.PollError{
			Kind:      apperror.PollRejected,
			PublishID: publishID,
			Err:       fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message),
		}
	}
	if err != nil {
		return nil, &apperror.PollError{Kind: apperror.PollRejected, PublishID: publishID, Err: err}
	}
	if resp.Data == nil {
		return nil, &apperror.PollError{Kind: apperror.PollRejected, PublishID: publishID, Err: errors.New("status response has no data")}
	}
	return resp.Data, nil
}

func (s *statusService) Poll(ctx context.Context, cred *models.Credential, publishID string, interval, timeout time.Duration) (models.PublishStatus, error) {
	outcome, err := s.Await(ctx, cred, publishID, interval, timeout)
	if err != nil {
		return "", err
	}
	return outcome.Status, nil
}

// Await polls every interval until the job reaches a terminal status. Running
// out of time is a timed-out PollError, never FAILED.
func (s *statusService) Await(ctx context.Context, cred *models.Credential, publishID string, interval, timeout time.Duration) (*PollOutcome, error) {
	if interval <= 0 {
		interval = s.cfg.Poll.Interval
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = s.cfg.Poll.Timeout
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	failures := 0
	for {
		data, err := s.FetchStatus(ctx, cred, publishID)

		var pollErr *apperror.PollError
		switch {
		case err == nil:
			failures = 0
			status, perr := models.ParsePublishStatus(data.Status)
			if perr != nil {
				slog.Info("unrecognized publish status, still waiting", "publish_id", publishID, "status", data.Status)
				break
			}
			slog.Info("publish status", "publish_id", publishID, "status", data.Status)
			if status.Terminal() {
				return &PollOutcome{Status: status, FailReason: data.FailReason, PostIDs: data.PublicalyAvailablePostID}, nil
			}
		case errors.As(err, &pollErr):
			return nil, pollErr
		case ctx.Err() != nil:
			return nil, s.contextDone(ctx, publishID)
		default:
			failures++
			slog.Info("status fetch failed", "publish_id", publishID, "consecutive_failures", failures, "error", err)
			if failures > s.cfg.Poll.MaxTransportRetries {
				return nil, &apperror.PollError{Kind: apperror.PollUnreachable, PublishID: publishID, Err: err}
			}
		}

		select {
		case <-ctx.Done():
			return nil, s.contextDone(ctx, publishID)
		case <-deadline.C:
			return nil, &apperror.PollError{Kind: apperror.PollTimedOut, PublishID: publishID}
		case <-ticker.C:
		}
	}
}

// contextDone maps an expired caller deadline onto a timed-out poll; plain
// cancellation is passed through.
func (s *statusService) contextDone(ctx context.Context, publishID string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperror.PollError{Kind: apperror.PollTimedOut, PublishID: publishID, Err: ctx.Err()}
	}
	return ctx.Err()
}
