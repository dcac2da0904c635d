package service

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// GetExpiresAt converts a lifetime in seconds into an absolute time. A
// non-positive lifetime yields the zero time.
func GetExpiresAt(from time.Time, expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return from.Add(time.Duration(expiresIn) * time.Second)
}

// sniffLen is what filetype needs to recognise every container it knows.
const sniffLen = 262

var allowedVideoTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "webm": {},
}

// checkVideoType reads the container header and rejects anything TikTok
// will not accept as a file upload.
func checkVideoType(r io.ReaderAt) (string, error) {
	head := make([]byte, sniffLen)
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read video header: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return "", fmt.Errorf("detect file type: %w", err)
	}
	if kind == types.Unknown {
		return "", errors.New("unsupported file type")
	}
	if _, ok := allowedVideoTypes[kind.Extension]; !ok {
		return "", fmt.Errorf("file type %s is not allowed", kind.Extension)
	}
	return kind.MIME.Value, nil
}

func clampConcurrency(n int) int {
	switch {
	case n < 1:
		return 1
	case n > 4:
		return 4
	}
	return n
}
