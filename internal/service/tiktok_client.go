package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/pkg/apperror"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	tiktokTokenPath       = "/v2/oauth/token/"
	tiktokRevokePath      = "/v2/oauth/revoke/"
	tiktokDirectInitPath  = "/v2/post/publish/video/init/"
	tiktokInboxInitPath   = "/v2/post/publish/inbox/video/init/"
	tiktokStatusPath      = "/v2/post/publish/status/fetch/"
	tiktokCreatorInfoPath = "/v2/post/publish/creator_info/query/"

	maxResponseBody = 1 << 20
	maxErrorBody    = 512
)

// TiktokClient is the HTTP plumbing shared by every TikTok call: base URL,
// outbound throttling and envelope decoding.
type TiktokClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewTiktokClient(cfg config.Config, httpClient *http.Client) *TiktokClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.APIRatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.APIRatePerMinute) / 60)
		burst = min(cfg.APIRatePerMinute, 5)
	}

	return &TiktokClient{
		baseURL: strings.TrimRight(cfg.Tiktok.APIBaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// errThrottled means the outbound rate limit would hold a request past the
// caller's deadline.
var errThrottled = errors.New("rate limit wait would exceed the deadline")

func (c *TiktokClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", errThrottled, err)
	}
	return nil
}

func (c *TiktokClient) endpoint(path string) string {
	return c.baseURL + path
}

// postForm sends an url-encoded form without bearer auth. out is decoded
// even on non-2xx responses so callers can read OAuth error fields.
func (c *TiktokClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	return c.do(c.http, req, out)
}

// postJSON sends in as JSON with the credential's bearer token. A nil in
// sends an empty body. As with postForm, out is decoded on every status.
func (c *TiktokClient) postJSON(ctx context.Context, cred *models.Credential, path string, in, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	return c.do(c.bearerClient(ctx, cred), req, out)
}

func (c *TiktokClient) bearerClient(ctx context.Context, cred *models.Credential) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
	}))
}

func (c *TiktokClient) do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var decodeErr error
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		decodeErr = json.Unmarshal(data, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Info("tiktok api returned non-2xx status", "path", req.URL.Path, "status", resp.StatusCode)
		return &apperror.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}

	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, decodeErr)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
