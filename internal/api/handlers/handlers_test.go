package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
	"github.com/maheshrc27/clipflow/internal/transfer"
	"github.com/maheshrc27/clipflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	service.AuthService
	stateErr    error
	exchangeErr error
	codes       []string
	states      []string
}

func (s *stubAuth) BuildAuthorizationURL(scopes []string, redirectURI string) (string, string, error) {
	return "https://www.tiktok.com/v2/auth/authorize/?state=st&redirect_uri=" + redirectURI, "st", nil
}

func (s *stubAuth) CompleteAuthorization(_ context.Context, code, state string) (*models.Credential, error) {
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	s.codes = append(s.codes, code)
	s.states = append(s.states, state)
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return &models.Credential{AccessToken: "act.secret", OpenID: "open-1", Scope: "video.upload", ObtainedAt: time.Now()}, nil
}

type stubPublisher struct {
	result  models.PublishResult
	cred    *models.Credential
	credErr error
	got     []models.UploadRequest
	resumed []string
}

func (s *stubPublisher) Publish(_ context.Context, req models.UploadRequest) models.PublishResult {
	s.got = append(s.got, req)
	return s.result
}

func (s *stubPublisher) Resume(_ context.Context, publishID string) models.PublishResult {
	s.resumed = append(s.resumed, publishID)
	return s.result
}

func (s *stubPublisher) Credential(context.Context) (*models.Credential, error) {
	return s.cred, s.credErr
}

type stubStatus struct {
	service.StatusService
	data *transfer.TiktokStatusData
	err  error
}

func (s *stubStatus) FetchStatus(context.Context, *models.Credential, string) (*transfer.TiktokStatusData, error) {
	return s.data, s.err
}

type stubJobs struct {
	repository.PublishJobRepository
	jobs map[string]*models.PublishJob
}

func (s *stubJobs) GetByPublishID(_ context.Context, publishID string) (*models.PublishJob, error) {
	if job, ok := s.jobs[publishID]; ok {
		return job, nil
	}
	return nil, repository.ErrPublishJobNotFound
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
}

func testConfig() config.Config {
	return config.Config{
		Tiktok: config.Tiktok{
			RedirectURI: "http://localhost:3000/auth/tiktok/callback",
			Scopes:      []string{"video.upload"},
		},
		PublishTimeout: time.Minute,
	}
}

func newAuthApp(t *testing.T, auth *stubAuth) (*fiber.App, repository.CredentialStore) {
	t.Helper()
	store := repository.NewFileCredentialStore(filepath.Join(t.TempDir(), "tokens.json"), "")
	h := NewAuthHandler(testConfig(), auth, store)

	app := fiber.New()
	app.Get("/auth/tiktok", h.Login)
	app.Get("/auth/tiktok/callback", h.Callback)
	return app, store
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/health", Health)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRedirects(t *testing.T) {
	app, _ := newAuthApp(t, &stubAuth{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/tiktok", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://www.tiktok.com/v2/auth/authorize/"))
}

func TestCallbackStoresCredential(t *testing.T) {
	auth := &stubAuth{}
	app, store := newAuthApp(t, auth)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/tiktok/callback?code=c1&state=st", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "open-1", body["open_id"])
	assert.NotContains(t, body, "access_token")

	cred, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "act.secret", cred.AccessToken)
	assert.Equal(t, []string{"c1"}, auth.codes)
	assert.Equal(t, []string{"st"}, auth.states)
}

func TestCallbackRejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		auth   *stubAuth
		want   int
	}{
		{"denied", "/auth/tiktok/callback?error=access_denied", &stubAuth{}, http.StatusBadRequest},
		{"missing code", "/auth/tiktok/callback?state=st", &stubAuth{}, http.StatusBadRequest},
		{"bad state", "/auth/tiktok/callback?code=c1&state=x", &stubAuth{stateErr: &apperror.AuthError{Reason: "unknown state", Err: service.ErrStateMismatch}}, http.StatusBadRequest},
		{"missing state", "/auth/tiktok/callback?code=c1", &stubAuth{stateErr: &apperror.AuthError{Reason: "invalid state", Err: service.ErrStateMismatch}}, http.StatusBadRequest},
		{"exchange failed", "/auth/tiktok/callback?code=c1&state=st", &stubAuth{exchangeErr: &apperror.AuthError{Reason: "invalid_grant"}}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, store := newAuthApp(t, tt.auth)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)

			_, ok := store.Load()
			assert.False(t, ok)
		})
	}
}

func newPublishApp(h *PublishHandler) *fiber.App {
	app := fiber.New()
	app.Post("/api/publish", h.CreatePublish)
	app.Get("/api/publish/:publish_id", h.GetPublish)
	app.Post("/api/publish/:publish_id/resume", h.ResumePublish)
	return app
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreatePublishSync(t *testing.T) {
	ps := &stubPublisher{result: models.PublishResult{PublishID: "p1", FinalStatus: models.StatusPublishComplete, Title: "hi"}}
	enq := &stubEnqueuer{}
	app := newPublishApp(NewPublishHandler(testConfig(), ps, &stubStatus{}, nil, enq))

	resp, err := app.Test(postJSON("/api/publish?sync=true", `{"video_path":"/tmp/a.mp4","title":"hi","privacy_level":"SELF_ONLY"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.PublishResult
	decode(t, resp, &result)
	assert.Equal(t, "p1", result.PublishID)
	assert.Equal(t, models.StatusPublishComplete, result.FinalStatus)

	require.Len(t, ps.got, 1)
	assert.Equal(t, models.PrivacyPrivate, ps.got[0].PrivacyLevel)
	assert.Empty(t, enq.tasks)
}

func TestCreatePublishSyncFailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		result models.PublishResult
		want   int
	}{
		{"auth", models.PublishResult{Error: &models.ErrorDetail{Kind: apperror.KindAuth}}, http.StatusUnauthorized},
		{"init", models.PublishResult{Error: &models.ErrorDetail{Kind: apperror.KindUploadInit}}, http.StatusUnprocessableEntity},
		{"chunk", models.PublishResult{PublishID: "p1", Error: &models.ErrorDetail{Kind: apperror.KindChunk}}, http.StatusBadGateway},
		{"poll", models.PublishResult{PublishID: "p1", Error: &models.ErrorDetail{Kind: apperror.KindPoll}}, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newPublishApp(NewPublishHandler(testConfig(), &stubPublisher{result: tt.result}, &stubStatus{}, nil, nil))

			resp, err := app.Test(postJSON("/api/publish", `{"video_path":"/tmp/a.mp4"}`), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCreatePublishEnqueues(t *testing.T) {
	ps := &stubPublisher{}
	enq := &stubEnqueuer{}
	app := newPublishApp(NewPublishHandler(testConfig(), ps, &stubStatus{}, nil, enq))

	resp, err := app.Test(postJSON("/api/publish?delay_seconds=30", `{"video_path":"r2://clips/a.mp4","title":"later"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.NotEmpty(t, body["task_id"])

	require.Len(t, enq.tasks, 1)
	assert.Empty(t, ps.got)
}

func TestCreatePublishRejectsBadInput(t *testing.T) {
	app := newPublishApp(NewPublishHandler(testConfig(), &stubPublisher{}, &stubStatus{}, nil, &stubEnqueuer{}))

	for _, tt := range []struct {
		target, body string
	}{
		{"/api/publish", `{`},
		{"/api/publish", `{"title":"no path"}`},
		{"/api/publish", `{"video_path":"a.mp4","privacy_level":"EVERYONE"}`},
		{"/api/publish?delay_seconds=-5", `{"video_path":"a.mp4"}`},
	} {
		resp, err := app.Test(postJSON(tt.target, tt.body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tt.body)
	}
}

func TestCreatePublishQueueDown(t *testing.T) {
	app := newPublishApp(NewPublishHandler(testConfig(), &stubPublisher{}, &stubStatus{}, nil, &stubEnqueuer{err: errors.New("redis down")}))

	resp, err := app.Test(postJSON("/api/publish", `{"video_path":"a.mp4"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetPublishFromJobRow(t *testing.T) {
	jobs := &stubJobs{jobs: map[string]*models.PublishJob{
		"p1": {PublishID: "p1", Status: "FAILED", FailReason: "file_format_check_failed"},
	}}
	app := newPublishApp(NewPublishHandler(testConfig(), &stubPublisher{credErr: errors.New("unused")}, &stubStatus{}, jobs, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/publish/p1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job models.PublishJob
	decode(t, resp, &job)
	assert.Equal(t, "FAILED", job.Status)
	assert.Equal(t, "file_format_check_failed", job.FailReason)
}

func TestGetPublishLiveStatus(t *testing.T) {
	ps := &stubPublisher{cred: &models.Credential{AccessToken: "a", OpenID: "o"}}
	status := &stubStatus{data: &transfer.TiktokStatusData{Status: "PROCESSING_DOWNLOAD"}}
	app := newPublishApp(NewPublishHandler(testConfig(), ps, status, &stubJobs{}, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/publish/p9", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "p9", body["publish_id"])
	assert.Equal(t, "PROCESSING_DOWNLOAD", body["status"])
}

func TestGetPublishErrors(t *testing.T) {
	cred := &models.Credential{AccessToken: "a", OpenID: "o"}

	app := newPublishApp(NewPublishHandler(testConfig(),
		&stubPublisher{cred: cred},
		&stubStatus{err: &apperror.PollError{Kind: apperror.PollRejected, PublishID: "nope"}},
		nil, nil))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/publish/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	app = newPublishApp(NewPublishHandler(testConfig(),
		&stubPublisher{credErr: &apperror.AuthError{Reason: "no code provider"}},
		&stubStatus{}, nil, nil))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/publish/p1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestResumePublish(t *testing.T) {
	ps := &stubPublisher{result: models.PublishResult{PublishID: "p1", FinalStatus: models.StatusSentToInbox}}
	app := newPublishApp(NewPublishHandler(testConfig(), ps, &stubStatus{}, nil, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/publish/p1/resume", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"p1"}, ps.resumed)
}
