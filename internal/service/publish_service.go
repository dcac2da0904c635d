package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/pkg/apperror"
)

// PublishService turns an UploadRequest into a PublishResult. Failures are
// reported on the result, never as a Go error.
type PublishService interface {
	Publish(ctx context.Context, req models.UploadRequest) models.PublishResult
	Resume(ctx context.Context, publishID string) models.PublishResult
	Credential(ctx context.Context) (*models.Credential, error)
}

type publishService struct {
	cfg    config.Config
	store  repository.CredentialStore
	auth   AuthService
	upload UploadService
	status StatusService
	videos VideoService
	jobs   repository.PublishJobRepository
}

// NewPublishService wires the pipeline. jobs may be nil, in which case
// nothing is recorded beyond the returned result.
func NewPublishService(
	cfg config.Config,
	store repository.CredentialStore,
	auth AuthService,
	upload UploadService,
	status StatusService,
	videos VideoService,
	jobs repository.PublishJobRepository) PublishService {
	return &publishService{
		cfg:    cfg,
		store:  store,
		auth:   auth,
		upload: upload,
		status: status,
		videos: videos,
		jobs:   jobs,
	}
}

func (s *publishService) Publish(ctx context.Context, req models.UploadRequest) models.PublishResult {
	result := models.PublishResult{Title: req.Title}

	if err := req.Validate(); err != nil {
		return s.fail(ctx, result, &apperror.UploadInitError{Message: "invalid upload request", Err: err})
	}

	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	video, err := s.videos.Open(ctx, req.VideoPath)
	if err != nil {
		return s.fail(ctx, result, &apperror.UploadInitError{Message: "video unavailable", Err: err})
	}
	defer video.Close()

	cred, err := s.Credential(ctx)
	if err != nil {
		return s.fail(ctx, result, err)
	}

	if s.cfg.Tiktok.PostMode != config.PostModeInbox {
		if err := s.checkPrivacy(ctx, cred, req); err != nil {
			return s.fail(ctx, result, err)
		}
	}

	state, err := s.upload.Init(ctx, cred, req, video.Size)
	if err != nil {
		return s.fail(ctx, result, err)
	}
	result.PublishID = state.PublishID
	s.recordJob(ctx, req, state.PublishID)

	if err := s.upload.UploadChunks(ctx, state, video.File); err != nil {
		return s.fail(ctx, result, err)
	}
	if err := s.upload.Finalize(ctx, state); err != nil {
		return s.fail(ctx, result, err)
	}
	result.UploadedAt = time.Now().UTC()
	result.FinalStatus = models.StatusProcessing

	return s.await(ctx, cred, result)
}

// Resume polls a job whose earlier poll ran out of time.
func (s *publishService) Resume(ctx context.Context, publishID string) models.PublishResult {
	result := models.PublishResult{PublishID: publishID, FinalStatus: models.StatusProcessing}

	if s.jobs != nil {
		job, err := s.jobs.GetByPublishID(ctx, publishID)
		switch {
		case err == nil:
			result.Title = job.Title
			if status, perr := models.ParsePublishStatus(job.Status); perr == nil && status.Terminal() {
				result.FinalStatus = status
				result.FailReason = job.FailReason
				return result
			}
		case errors.Is(err, repository.ErrPublishJobNotFound):
		default:
			slog.Info("could not load publish job", "publish_id", publishID, "error", err)
		}
	}

	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	cred, err := s.Credential(ctx)
	if err != nil {
		result.Error = errorDetail(err)
		return result
	}

	return s.await(ctx, cred, result)
}

func (s *publishService) await(ctx context.Context, cred *models.Credential, result models.PublishResult) models.PublishResult {
	outcome, err := s.status.Await(ctx, cred, result.PublishID, s.cfg.Poll.Interval, s.cfg.Poll.Timeout)
	if err != nil {
		return s.fail(ctx, result, err)
	}

	result.FinalStatus = outcome.Status
	result.FailReason = outcome.FailReason

	slog.Info("publish finished",
		"publish_id", result.PublishID,
		"status", outcome.Status,
		"fail_reason", outcome.FailReason,
	)
	s.updateJob(ctx, result)
	return result
}

// Credential returns a usable credential, refreshing or re-authorizing when
// the stored one is missing or stale. New credentials are persisted.
func (s *publishService) Credential(ctx context.Context) (*models.Credential, error) {
	now := time.Now()
	cred, ok := s.store.Load()
	if ok && !cred.Stale(now, s.cfg.CredentialMaxAge) {
		return cred, nil
	}

	var fresh *models.Credential
	var err error
	if ok && cred.CanRefresh(now) {
		fresh, err = s.auth.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			slog.Info("token refresh failed, re-authorizing", "error", err)
		}
	}
	if fresh == nil {
		fresh, err = s.auth.Authorize(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.Save(fresh); err != nil {
		slog.Info("could not persist credential", "error", err)
	}
	return fresh, nil
}

func (s *publishService) checkPrivacy(ctx context.Context, cred *models.Credential, req models.UploadRequest) error {
	info, err := s.upload.QueryCreatorInfo(ctx, cred)
	if err != nil {
		return err
	}

	privacy, err := models.ParsePrivacyLevel(string(req.PrivacyLevel))
	if err != nil {
		return &apperror.UploadInitError{Message: "invalid privacy level", Err: err}
	}
	if len(info.PrivacyLevelOptions) > 0 && !slices.Contains(info.PrivacyLevelOptions, string(privacy)) {
		return &apperror.UploadInitError{
			Code:    "privacy_level_option_mismatch",
			Message: fmt.Sprintf("privacy level %s is not offered to @%s (allowed: %v)", privacy, info.CreatorUsername, info.PrivacyLevelOptions),
		}
	}
	return nil
}

func errorDetail(err error) *models.ErrorDetail {
	return &models.ErrorDetail{
		Kind:      apperror.Kind(err),
		Message:   err.Error(),
		Retryable: apperror.Retryable(err),
	}
}

func (s *publishService) fail(ctx context.Context, result models.PublishResult, err error) models.PublishResult {
	result.Error = errorDetail(err)

	slog.Info("publish failed",
		"publish_id", result.PublishID,
		"kind", result.Error.Kind,
		"retryable", result.Error.Retryable,
		"error", err,
	)
	if result.PublishID != "" {
		s.updateJob(ctx, result)
	}
	return result
}

func (s *publishService) recordJob(ctx context.Context, req models.UploadRequest, publishID string) {
	if s.jobs == nil {
		return
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	_, err := s.jobs.Create(ctx, &models.PublishJob{
		PublishID: publishID,
		Title:     req.Title,
		VideoPath: req.VideoPath,
		Status:    string(models.StatusProcessing),
	})
	if err != nil {
		slog.Info("could not record publish job", "publish_id", publishID, "error", err)
	}
}

func (s *publishService) updateJob(ctx context.Context, result models.PublishResult) {
	if s.jobs == nil {
		return
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	status := result.FinalStatus
	if status == "" {
		status = models.StatusProcessing
	}

	// A poll error leaves the job PROCESSING so it can be resumed; anything
	// earlier in the pipeline means TikTok never got the whole video.
	var kind, message string
	if result.Error != nil {
		kind, message = result.Error.Kind, result.Error.Message
		if kind != apperror.KindPoll {
			status = models.StatusFailed
		}
	}

	err := s.jobs.UpdateStatus(ctx, result.PublishID, string(status), result.FailReason, kind, message)
	if err != nil {
		slog.Info("could not update publish job", "publish_id", result.PublishID, "error", err)
	}
}

// detached outlives the publish deadline so the outcome is still recorded
// after a timeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}
