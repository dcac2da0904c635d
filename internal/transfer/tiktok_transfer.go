package transfer

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// Failed reports whether the envelope carries a real error. TikTok sends
// {"code":"ok"} on success.
func (e *TiktokError) Failed() bool {
	return e != nil && e.Code != "" && e.Code != "ok"
}

type TiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
}

// TiktokTokenEnvelope is the token endpoint body. The token itself sits under
// data; OAuth errors come back as error/error_description.
type TiktokTokenEnvelope struct {
	Data             *TiktokTokenResponse `json:"data"`
	Error            string               `json:"error"`
	ErrorDescription string               `json:"error_description"`
	LogID            string               `json:"log_id"`
}

// Token returns the data body, or nil when it is missing or has no token.
// A token at the top level is not accepted.
func (e *TiktokTokenEnvelope) Token() *TiktokTokenResponse {
	if e.Data == nil || e.Data.AccessToken == "" {
		return nil
	}
	return e.Data
}

type VideoPostInfo struct {
	Title                 string `json:"title"`
	Description           string `json:"description,omitempty"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms,omitempty"`
	IsAIGC                bool   `json:"is_aigc,omitempty"`
}

type VideoSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

// VideoUploadRequest is the init body. Inbox uploads carry no post_info.
type VideoUploadRequest struct {
	PostInfo   *VideoPostInfo  `json:"post_info,omitempty"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type TiktokPublishData struct {
	PublishID string `json:"publish_id"`
	UploadURL string `json:"upload_url"`
}

type TikTokUploadResponse struct {
	Data  *TiktokPublishData `json:"data"`
	Error *TiktokError       `json:"error"`
}

type StatusFetchRequest struct {
	PublishID string `json:"publish_id"`
}

type TiktokStatusData struct {
	Status                   string  `json:"status"`
	FailReason               string  `json:"fail_reason"`
	PublicalyAvailablePostID []int64 `json:"publicaly_available_post_id"`
	UploadedBytes            int64   `json:"uploaded_bytes"`
	DownloadedBytes          int64   `json:"downloaded_bytes"`
}

type TikTokStatusResponse struct {
	Data  *TiktokStatusData `json:"data"`
	Error *TiktokError      `json:"error"`
}

type TiktokCreatorInfo struct {
	CreatorAvatarURL        string   `json:"creator_avatar_url"`
	CreatorUsername         string   `json:"creator_username"`
	CreatorNickname         string   `json:"creator_nickname"`
	PrivacyLevelOptions     []string `json:"privacy_level_options"`
	CommentDisabled         bool     `json:"comment_disabled"`
	DuetDisabled            bool     `json:"duet_disabled"`
	StitchDisabled          bool     `json:"stitch_disabled"`
	MaxVideoPostDurationSec int32    `json:"max_video_post_duration_sec"`
}

type TikTokCreatorInfoResponse struct {
	Data  *TiktokCreatorInfo `json:"data"`
	Error *TiktokError       `json:"error"`
}

type TiktokRevokeResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
