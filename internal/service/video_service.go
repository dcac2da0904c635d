package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const r2Scheme = "r2://"

// Video is an opened upload source. Close releases the file and removes any
// temporary download.
type Video struct {
	File     *os.File
	Size     int64
	MIMEType string
	cleanup  func()
}

func (v *Video) Close() error {
	err := v.File.Close()
	if v.cleanup != nil {
		v.cleanup()
	}
	return err
}

type VideoService interface {
	// Open resolves a local path or an r2://<key> reference to a readable file.
	Open(ctx context.Context, path string) (*Video, error)
}

type videoService struct {
	r2     *R2Service
	tmpDir string
}

// NewVideoService resolves r2:// paths through r2 when it is non-nil.
func NewVideoService(r2 *R2Service) VideoService {
	return &videoService{r2: r2, tmpDir: os.TempDir()}
}

func (s *videoService) Open(ctx context.Context, path string) (*Video, error) {
	if key, ok := strings.CutPrefix(path, r2Scheme); ok {
		return s.openR2(ctx, key)
	}
	return openLocal(path, nil)
}

func (s *videoService) openR2(ctx context.Context, key string) (*Video, error) {
	if s.r2 == nil {
		return nil, errors.New("r2 storage is not configured")
	}
	if key == "" {
		return nil, errors.New("r2 path has no object key")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate temp name: %w", err)
	}
	tmpPath := filepath.Join(s.tmpDir, "clipflow-"+id+filepath.Ext(key))

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	remove := func() { os.Remove(tmpPath) }

	n, err := s.r2.DownloadFromR2(ctx, key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		remove()
		return nil, err
	}
	slog.Info("video downloaded from r2", "key", key, "bytes", n)

	return openLocal(tmpPath, remove)
}

func openLocal(path string, cleanup func()) (*Video, error) {
	fail := func(err error) (*Video, error) {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(fmt.Errorf("open video: %w", err))
	}

	info, err := f.Stat()
	switch {
	case err != nil:
		err = fmt.Errorf("stat video: %w", err)
	case info.IsDir():
		err = fmt.Errorf("video path %s is a directory", path)
	case info.Size() == 0:
		err = fmt.Errorf("video file %s is empty", path)
	}
	if err != nil {
		f.Close()
		return fail(err)
	}

	mime, err := checkVideoType(f)
	if err != nil {
		f.Close()
		return fail(err)
	}

	return &Video{File: f, Size: info.Size(), MIMEType: mime, cleanup: cleanup}, nil
}
