package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/transfer"
	"github.com/maheshrc27/clipflow/pkg/apperror"
	"golang.org/x/sync/errgroup"
)

// Committer is called by Finalize once every chunk has been accepted. The
// FILE_UPLOAD protocol needs no explicit commit, so it is usually nil.
type Committer interface {
	Commit(ctx context.Context, state *models.UploadSessionState) error
}

type UploadService interface {
	Init(ctx context.Context, cred *models.Credential, req models.UploadRequest, size int64) (*models.UploadSessionState, error)
	QueryCreatorInfo(ctx context.Context, cred *models.Credential) (*transfer.TiktokCreatorInfo, error)
	SendChunk(ctx context.Context, state *models.UploadSessionState, index int, body io.ReaderAt) error
	UploadChunks(ctx context.Context, state *models.UploadSessionState, body io.ReaderAt) error
	Finalize(ctx context.Context, state *models.UploadSessionState) error
}

type uploadService struct {
	cfg       config.Config
	client    *TiktokClient
	committer Committer
}

func NewUploadService(cfg config.Config, client *TiktokClient, committer Committer) UploadService {
	return &uploadService{
		cfg:       cfg,
		client:    client,
		committer: committer,
	}
}

func (s *uploadService) initPath() string {
	if s.cfg.Tiktok.PostMode == config.PostModeInbox {
		return tiktokInboxInitPath
	}
	return tiktokDirectInitPath
}

func (s *uploadService) Init(ctx context.Context, cred *models.Credential, req models.UploadRequest, size int64) (*models.UploadSessionState, error) {
	plan, err := models.PlanChunks(size, s.cfg.Upload.MaxChunkSize)
	if err != nil {
		return nil, &apperror.UploadInitError{Message: "cannot plan chunks", Err: err}
	}

	privacy, err := models.ParsePrivacyLevel(string(req.PrivacyLevel))
	if err != nil {
		return nil, &apperror.UploadInitError{Message: "invalid privacy level", Err: err}
	}

	body := transfer.VideoUploadRequest{
		SourceInfo: transfer.VideoSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       plan.TotalSize,
			ChunkSize:       plan.ChunkSize,
			TotalChunkCount: plan.ChunkCount,
		},
	}
	if s.cfg.Tiktok.PostMode != config.PostModeInbox {
		body.PostInfo = &transfer.VideoPostInfo{
			Title:                 req.Title,
			Description:           req.Description,
			PrivacyLevel:          string(privacy),
			DisableDuet:           req.DisableDuet,
			DisableComment:        req.DisableComment,
			DisableStitch:         req.DisableStitch,
			VideoCoverTimestampMs: req.VideoCoverTimestampMs,
			IsAIGC:                req.IsAIGC,
		}
	}

	var resp transfer.TikTokUploadResponse
	err = s.client.postJSON(ctx, cred, s.initPath(), body, &resp)
	if resp.Error.Failed() {
		return nil, &apperror.UploadInitError{Code: resp.Error.Code, Message: resp.Error.Message, Err: err}
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, &apperror.UploadInitError{Message: "init request failed", Err: err}
	}
	if resp.Data == nil || resp.Data.PublishID == "" || resp.Data.UploadURL == "" {
		return nil, &apperror.UploadInitError{Message: "init response has no publish_id or upload_url"}
	}

	slog.Info("upload initialized",
		"publish_id", resp.Data.PublishID,
		"video_size", plan.TotalSize,
		"chunk_size", plan.ChunkSize,
		"chunks", plan.ChunkCount,
	)

	return models.NewUploadSessionState(resp.Data.PublishID, resp.Data.UploadURL, plan), nil
}

func (s *uploadService) QueryCreatorInfo(ctx context.Context, cred *models.Credential) (*transfer.TiktokCreatorInfo, error) {
	var resp transfer.TikTokCreatorInfoResponse
	err := s.client.postJSON(ctx, cred, tiktokCreatorInfoPath, nil, &resp)
	if resp.Error.Failed() {
		return nil, &apperror.UploadInitError{Code: resp.Error.Code, Message: resp.Error.Message, Err: err}
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, &apperror.UploadInitError{Message: "creator info request failed", Err: err}
	}
	if resp.Data == nil {
		return nil, &apperror.UploadInitError{Message: "creator info response has no data"}
	}
	return resp.Data, nil
}

// SendChunk uploads chunk index, retrying transport failures, 408, 429 and
// 5xx with exponential backoff. Other 4xx responses fail immediately.
func (s *uploadService) SendChunk(ctx context.Context, state *models.UploadSessionState, index int, body io.ReaderAt) error {
	if index < 0 || index >= state.Plan.ChunkCount {
		return &apperror.ChunkError{Index: index, Err: fmt.Errorf("chunk index out of range [0,%d)", state.Plan.ChunkCount)}
	}

	offset, length := state.Plan.Range(index)
	attempts := 0

	operation := func() (struct{}, error) {
		attempts++
		err := s.putChunk(ctx, state, index, io.NewSectionReader(body, offset, length), length)
		if err != nil && !apperror.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	notify := func(err error, next time.Duration) {
		slog.Info("chunk upload failed, retrying",
			"publish_id", state.PublishID,
			"chunk", index,
			"attempt", attempts,
			"retry_in", next,
			"error", err,
		)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.Upload.ChunkBackoffInitial
	bo.MaxInterval = s.cfg.Upload.ChunkBackoffMax

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(max(s.cfg.Upload.ChunkMaxAttempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return &apperror.ChunkError{Index: index, Attempts: attempts, Err: err}
	}

	sent := state.MarkChunkSent()
	slog.Info("chunk uploaded",
		"publish_id", state.PublishID,
		"chunk", index,
		"sent", sent,
		"total", state.Plan.ChunkCount,
	)
	return nil
}

func (s *uploadService) putChunk(ctx context.Context, state *models.UploadSessionState, index int, body io.Reader, length int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, state.UploadURL, body)
	if err != nil {
		return fmt.Errorf("create chunk request: %w", err)
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", state.Plan.ContentRange(index))

	resp, err := s.client.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperror.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// UploadChunks sends every chunk. With a concurrency of one the chunks go
// strictly in index order; otherwise the first failure cancels the rest and
// is the only error returned.
func (s *uploadService) UploadChunks(ctx context.Context, state *models.UploadSessionState, body io.ReaderAt) error {
	limit := clampConcurrency(s.cfg.Upload.ChunkConcurrency)

	if limit == 1 || state.Plan.ChunkCount == 1 {
		for i := 0; i < state.Plan.ChunkCount; i++ {
			if err := s.SendChunk(ctx, state, i, body); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < state.Plan.ChunkCount; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return s.SendChunk(gctx, state, i, body)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &apperror.ChunkError{Index: state.ChunksSent(), Err: err}
	}
	return nil
}

func (s *uploadService) Finalize(ctx context.Context, state *models.UploadSessionState) error {
	if !state.Complete() {
		return &apperror.ChunkError{
			Index: state.ChunksSent(),
			Err:   fmt.Errorf("only %d of %d chunks were accepted", state.ChunksSent(), state.Plan.ChunkCount),
		}
	}

	if s.committer != nil {
		if err := s.committer.Commit(ctx, state); err != nil {
			return fmt.Errorf("commit upload %s: %w", state.PublishID, err)
		}
	}

	slog.Info("upload finalized", "publish_id", state.PublishID, "chunks", state.Plan.ChunkCount)
	return nil
}
