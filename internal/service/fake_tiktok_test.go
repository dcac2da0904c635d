package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/transfer"
)

const fakeAccessToken = "act.fake"

// fakeTikTok serves the subset of the Content Posting API the pipeline uses.
type fakeTikTok struct {
	t   *testing.T
	srv *httptest.Server

	mu sync.Mutex

	tokenStatus int
	tokenBody   string
	tokenForms  []url.Values
	revokeForms []url.Values

	privacyOptions []string
	initStatus     int
	initBody       string
	initPaths      []string
	initRequests   []transfer.VideoUploadRequest

	// chunkHandler may take over a PUT after its body has been read. It
	// returns false to fall through to the default success response.
	chunkHandler func(index, attempt int, w http.ResponseWriter, r *http.Request) bool
	chunkAttempts map[int]int
	ranges        []string
	received      []byte

	statusHandler func(call int, w http.ResponseWriter) bool
	statuses      []string
	failReason    string
	statusCalls   int
}

func newFakeTikTok(t *testing.T) *fakeTikTok {
	t.Helper()

	f := &fakeTikTok{
		t:              t,
		tokenStatus:    http.StatusOK,
		tokenBody:      `{"data":{"access_token":"act.fake","expires_in":86400,"open_id":"open-1","refresh_expires_in":31536000,"refresh_token":"rft.fake","scope":"video.upload,video.publish","token_type":"Bearer"}}`,
		privacyOptions: []string{"PUBLIC_TO_EVERYONE", "SELF_ONLY"},
		initStatus:     http.StatusOK,
		chunkAttempts:  map[int]int{},
		statuses:       []string{"PUBLISH_COMPLETE"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/oauth/token/", f.handleToken)
	mux.HandleFunc("POST /v2/oauth/revoke/", f.handleRevoke)
	mux.HandleFunc("POST /v2/post/publish/creator_info/query/", f.handleCreatorInfo)
	mux.HandleFunc("POST /v2/post/publish/video/init/", f.handleInit)
	mux.HandleFunc("POST /v2/post/publish/inbox/video/init/", f.handleInit)
	mux.HandleFunc("PUT /upload/p1", f.handleChunk)
	mux.HandleFunc("POST /v2/post/publish/status/fetch/", f.handleStatus)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTikTok) URL() string { return f.srv.URL }

func (f *fakeTikTok) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+fakeAccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"access_token_invalid","message":"bad token"}}`)
		return false
	}
	return true
}

func (f *fakeTikTok) handleToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	status, body := f.tokenStatus, f.tokenBody
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (f *fakeTikTok) handleRevoke(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.revokeForms = append(f.revokeForms, r.PostForm)
	f.mu.Unlock()
	io.WriteString(w, `{}`)
}

func (f *fakeTikTok) handleCreatorInfo(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	f.mu.Lock()
	opts := f.privacyOptions
	f.mu.Unlock()

	json.NewEncoder(w).Encode(transfer.TikTokCreatorInfoResponse{
		Data:  &transfer.TiktokCreatorInfo{CreatorUsername: "creator", PrivacyLevelOptions: opts},
		Error: &transfer.TiktokError{Code: "ok"},
	})
}

func (f *fakeTikTok) handleInit(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	var req transfer.VideoUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.initPaths = append(f.initPaths, r.URL.Path)
	f.initRequests = append(f.initRequests, req)
	f.received = make([]byte, req.SourceInfo.VideoSize)
	status, body := f.initStatus, f.initBody
	f.mu.Unlock()

	w.WriteHeader(status)
	if body != "" {
		io.WriteString(w, body)
		return
	}
	json.NewEncoder(w).Encode(transfer.TikTokUploadResponse{
		Data:  &transfer.TiktokPublishData{PublishID: "p1", UploadURL: f.srv.URL + "/upload/p1"},
		Error: &transfer.TiktokError{Code: "ok"},
	})
}

func (f *fakeTikTok) handleChunk(w http.ResponseWriter, r *http.Request) {
	start, end, total, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil || r.Header.Get("Content-Type") != "video/mp4" || r.ContentLength != end-start+1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil || int64(len(data)) != end-start+1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	chunkSize := f.initRequests[len(f.initRequests)-1].SourceInfo.ChunkSize
	index := int(start / chunkSize)
	f.chunkAttempts[index]++
	attempt := f.chunkAttempts[index]
	handler := f.chunkHandler
	f.mu.Unlock()

	if handler != nil && handler(index, attempt, w, r) {
		return
	}

	f.mu.Lock()
	f.ranges = append(f.ranges, r.Header.Get("Content-Range"))
	copy(f.received[start:], data)
	f.mu.Unlock()

	if end+1 == total {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusPartialContent)
}

func (f *fakeTikTok) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}

	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	handler := f.statusHandler
	status := f.statuses[min(call, len(f.statuses))-1]
	reason := f.failReason
	f.mu.Unlock()

	if handler != nil && handler(call, w) {
		return
	}

	json.NewEncoder(w).Encode(transfer.TikTokStatusResponse{
		Data:  &transfer.TiktokStatusData{Status: status, FailReason: reason},
		Error: &transfer.TiktokError{Code: "ok"},
	})
}

func (f *fakeTikTok) inits() (paths []string, reqs []transfer.VideoUploadRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.initPaths...), append([]transfer.VideoUploadRequest(nil), f.initRequests...)
}

func (f *fakeTikTok) attempts(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunkAttempts[index]
}

func (f *fakeTikTok) tokenRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenForms...)
}

func (f *fakeTikTok) snapshot() (ranges []string, received []byte, statusCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ranges...), append([]byte(nil), f.received...), f.statusCalls
}

func parseContentRange(v string) (start, end, total int64, err error) {
	body, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("bad content range %q", v)
	}
	span, totalStr, ok := strings.Cut(body, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("bad content range %q", v)
	}
	startStr, endStr, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("bad content range %q", v)
	}
	if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
		return
	}
	if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
		return
	}
	total, err = strconv.ParseInt(totalStr, 10, 64)
	return
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		Tiktok: config.Tiktok{
			ClientKey:    "client-key",
			ClientSecret: "client-secret",
			RedirectURI:  "http://localhost:8000/callback",
			Scopes:       []string{"video.upload", "video.publish"},
			AuthURL:      baseURL + "/v2/auth/authorize/",
			APIBaseURL:   baseURL,
			PostMode:     config.PostModeDirect,
		},
		Upload: config.Upload{
			MaxChunkSize:        4 << 20,
			ChunkConcurrency:    1,
			ChunkMaxAttempts:    4,
			ChunkBackoffInitial: time.Millisecond,
			ChunkBackoffMax:     5 * time.Millisecond,
		},
		Poll: config.Poll{
			Interval:            5 * time.Millisecond,
			Timeout:             2 * time.Second,
			MaxTransportRetries: 3,
		},
		PublishTimeout: 20 * time.Second,
		HTTPTimeout:    10 * time.Second,
	}
}

func testCredential() *models.Credential {
	return &models.Credential{
		AccessToken: fakeAccessToken,
		OpenID:      "open-1",
		ObtainedAt:  time.Now().UTC(),
	}
}

// mp4Header is the start of an ISO base media file with an isom brand.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func videoBytes(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	copy(data, mp4Header)
	return data
}

func writeVideo(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := videoBytes(size)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, data
}
