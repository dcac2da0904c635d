package models

import (
	"fmt"
	"strings"
	"time"
)

type PrivacyLevel string

const (
	PrivacyPublic    PrivacyLevel = "PUBLIC_TO_EVERYONE"
	PrivacyFriends   PrivacyLevel = "MUTUAL_FOLLOW_FRIENDS"
	PrivacyFollowers PrivacyLevel = "FOLLOWER_OF_CREATOR"
	PrivacyPrivate   PrivacyLevel = "SELF_ONLY"
)

// ParsePrivacyLevel accepts the TikTok wire values and the short names
// PUBLIC, FRIENDS, FOLLOWERS and PRIVATE. Empty input means public.
func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PUBLIC", string(PrivacyPublic):
		return PrivacyPublic, nil
	case "FRIENDS", string(PrivacyFriends):
		return PrivacyFriends, nil
	case "FOLLOWERS", string(PrivacyFollowers):
		return PrivacyFollowers, nil
	case "PRIVATE", string(PrivacyPrivate):
		return PrivacyPrivate, nil
	}
	return "", fmt.Errorf("unknown privacy level %q", s)
}

// UploadRequest is produced by the content planner and read-only here.
type UploadRequest struct {
	VideoPath             string       `json:"video_path"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
	PrivacyLevel          PrivacyLevel `json:"privacy_level"`
	DisableDuet           bool         `json:"disable_duet"`
	DisableComment        bool         `json:"disable_comment"`
	DisableStitch         bool         `json:"disable_stitch"`
	VideoCoverTimestampMs int          `json:"video_cover_timestamp_ms,omitempty"`
	IsAIGC                bool         `json:"is_aigc,omitempty"`
}

func (r UploadRequest) Validate() error {
	if strings.TrimSpace(r.VideoPath) == "" {
		return fmt.Errorf("video_path is required")
	}
	if len([]rune(r.Title)) > 2200 {
		return fmt.Errorf("title exceeds 2200 characters")
	}
	if _, err := ParsePrivacyLevel(string(r.PrivacyLevel)); err != nil {
		return err
	}
	return nil
}

type PublishStatus string

const (
	StatusProcessing       PublishStatus = "PROCESSING"
	StatusPublishComplete  PublishStatus = "PUBLISH_COMPLETE"
	StatusFailed           PublishStatus = "FAILED"
	StatusPublishCancelled PublishStatus = "PUBLISH_CANCELLED"
	// StatusSentToInbox is the last state TikTok reports for inbox uploads.
	StatusSentToInbox PublishStatus = "SEND_TO_USER_INBOX"
)

// ParsePublishStatus folds TikTok's processing sub-states into PROCESSING.
func ParsePublishStatus(s string) (PublishStatus, error) {
	switch s {
	case "PROCESSING_UPLOAD", "PROCESSING_DOWNLOAD", string(StatusProcessing):
		return StatusProcessing, nil
	case string(StatusPublishComplete):
		return StatusPublishComplete, nil
	case string(StatusFailed):
		return StatusFailed, nil
	case string(StatusPublishCancelled):
		return StatusPublishCancelled, nil
	case string(StatusSentToInbox):
		return StatusSentToInbox, nil
	}
	return "", fmt.Errorf("unknown publish status %q", s)
}

func (s PublishStatus) Terminal() bool {
	switch s {
	case StatusPublishComplete, StatusFailed, StatusPublishCancelled, StatusSentToInbox:
		return true
	}
	return false
}

type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// PublishResult is what the content planner gets back for every request.
// PublishID is set whenever upload init succeeded, even if a later stage failed.
type PublishResult struct {
	PublishID   string        `json:"publish_id"`
	FinalStatus PublishStatus `json:"final_status"`
	Title       string        `json:"title"`
	UploadedAt  time.Time     `json:"uploaded_at"`
	FailReason  string        `json:"fail_reason,omitempty"`
	Error       *ErrorDetail  `json:"error,omitempty"`
}

func (r PublishResult) Succeeded() bool {
	return r.Error == nil && (r.FinalStatus == StatusPublishComplete || r.FinalStatus == StatusSentToInbox)
}
