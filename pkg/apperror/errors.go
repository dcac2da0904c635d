// Package apperror holds the error kinds surfaced by the publishing pipeline.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	KindConfig     = "config"
	KindAuth       = "auth"
	KindUploadInit = "upload_init"
	KindChunk      = "chunk"
	KindPoll       = "poll"
	KindCanceled   = "canceled"
	KindInternal   = "internal"
)

// ConfigError reports required configuration that is missing or invalid.
// It is fatal and never retried.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error: missing %s", strings.Join(e.Missing, ", "))
	}
	return "configuration error: " + e.Reason
}

// AuthError means the authorization code or stored credentials were rejected.
// Recovery requires restarting the authorization flow.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization failed: %s: %v", e.Reason, e.Err)
	}
	return "authorization failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// UploadInitError is a rejected or failed upload initialization.
type UploadInitError struct {
	Code    string
	Message string
	Err     error
}

func (e *UploadInitError) Error() string {
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("upload init failed: %s: %s: %v", e.Code, e.Message, e.Err)
	case e.Code != "":
		return fmt.Sprintf("upload init failed: %s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upload init failed: %s: %v", e.Message, e.Err)
	default:
		return "upload init failed: " + e.Message
	}
}

func (e *UploadInitError) Unwrap() error { return e.Err }

// ChunkError is a chunk transfer that could not be completed within the
// configured number of attempts.
type ChunkError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempt(s): %v", e.Index, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

type PollKind string

const (
	PollTimedOut    PollKind = "timed_out"
	PollUnreachable PollKind = "unreachable"
	PollRejected    PollKind = "rejected"
)

// PollError does not imply the upload failed. The same publish ID can be
// polled again later.
type PollError struct {
	Kind      PollKind
	PublishID string
	Err       error
}

func (e *PollError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status poll %s for %s: %v", e.Kind, e.PublishID, e.Err)
	}
	return fmt.Sprintf("status poll %s for %s", e.Kind, e.PublishID)
}

func (e *PollError) Unwrap() error { return e.Err }

// Kind maps err to one of the Kind* constants.
func Kind(err error) string {
	var (
		cfgErr   *ConfigError
		authErr  *AuthError
		initErr  *UploadInitError
		chunkErr *ChunkError
		pollErr  *PollError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &initErr):
		return KindUploadInit
	case errors.As(err, &chunkErr):
		return KindChunk
	case errors.As(err, &pollErr):
		return KindPoll
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may try the same operation again
// without changing its inputs.
func Retryable(err error) bool {
	var (
		chunkErr *ChunkError
		pollErr  *PollError
	)

	switch {
	case err == nil:
		return false
	case errors.As(err, &pollErr):
		return pollErr.Kind != PollRejected
	case errors.As(err, &chunkErr):
		return IsTransient(chunkErr.Err)
	default:
		return IsTransient(err)
	}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// IsTransient reports transport failures and throttling/server responses
// that are worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(urlErr.Err, context.Canceled)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func IsRetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
