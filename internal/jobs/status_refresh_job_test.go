package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobs struct {
	jobs       []*models.PublishJob
	err        error
	lastStatus string
	lastLimit  int
}

func (s *stubJobs) Create(context.Context, *models.PublishJob) (int64, error) { return 0, nil }

func (s *stubJobs) GetByPublishID(context.Context, string) (*models.PublishJob, error) {
	return nil, errors.New("not used")
}

func (s *stubJobs) UpdateStatus(context.Context, string, string, string, string, string) error {
	return nil
}

func (s *stubJobs) ListByStatus(_ context.Context, status string, limit int) ([]*models.PublishJob, error) {
	s.lastStatus, s.lastLimit = status, limit
	return s.jobs, s.err
}

type stubPublisher struct {
	mu          sync.Mutex
	resumed     []string
	credentials int
	credErr     error
}

func (s *stubPublisher) Publish(context.Context, models.UploadRequest) models.PublishResult {
	return models.PublishResult{}
}

func (s *stubPublisher) Resume(_ context.Context, publishID string) models.PublishResult {
	s.mu.Lock()
	s.resumed = append(s.resumed, publishID)
	s.mu.Unlock()

	if publishID == "slow" {
		return models.PublishResult{PublishID: publishID, Error: &models.ErrorDetail{Kind: apperror.KindPoll}}
	}
	return models.PublishResult{PublishID: publishID, FinalStatus: models.StatusPublishComplete}
}

func (s *stubPublisher) Credential(context.Context) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials++
	return &models.Credential{AccessToken: "a", OpenID: "o"}, s.credErr
}

func TestRefreshStatusesResumesProcessingJobs(t *testing.T) {
	jr := &stubJobs{}
	for _, id := range []string{"p1", "p2", "slow", "p3", "p4", "p5"} {
		jr.jobs = append(jr.jobs, &models.PublishJob{PublishID: id, Status: "PROCESSING"})
	}
	ps := &stubPublisher{}

	NewStatusRefreshJob(jr, ps, 50).RefreshStatuses()

	assert.Equal(t, "PROCESSING", jr.lastStatus)
	assert.Equal(t, 50, jr.lastLimit)

	sort.Strings(ps.resumed)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5", "slow"}, ps.resumed)
}

func TestRefreshStatusesListError(t *testing.T) {
	jr := &stubJobs{err: errors.New("db down")}
	ps := &stubPublisher{}

	job := NewStatusRefreshJob(jr, ps, 0)
	job.RefreshStatuses()

	assert.Equal(t, 20, jr.lastLimit)
	assert.Empty(t, ps.resumed)
}

func TestRefreshCredential(t *testing.T) {
	ps := &stubPublisher{}
	job := NewStatusRefreshJob(&stubJobs{}, ps, 10)

	job.RefreshCredential()
	ps.credErr = errors.New("no provider")
	require.NotPanics(t, job.RefreshCredential)

	assert.Equal(t, 2, ps.credentials)
}
