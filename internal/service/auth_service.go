package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/transfer"
	"github.com/maheshrc27/clipflow/pkg/apperror"
	"github.com/maheshrc27/clipflow/pkg/utils"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

type AuthState string

const (
	AuthUnauthenticated AuthState = "UNAUTHENTICATED"
	AuthAwaitingCode    AuthState = "AWAITING_CODE"
	AuthExchanging      AuthState = "EXCHANGING"
	AuthAuthenticated   AuthState = "AUTHENTICATED"
)

const stateTTL = 10 * time.Minute

// ErrStateMismatch marks a state that does not belong to an outstanding
// authorization attempt.
var ErrStateMismatch = errors.New("state does not match a pending authorization")

// AuthorizationGrant is what comes back once the user has approved access.
// Pasted marks a bare code typed at the console, which carries no state;
// every other grant must echo the state of the redirect.
type AuthorizationGrant struct {
	Code   string
	State  string
	Pasted bool
}

// CodeProvider blocks until the user has approved access.
type CodeProvider func(ctx context.Context) (AuthorizationGrant, error)

type AuthService interface {
	State() AuthState
	BuildAuthorizationURL(scopes []string, redirectURI string) (authURL, state string, err error)
	ValidateState(state string) error
	PresentToUser(authURL string)
	ExchangeCode(ctx context.Context, code string) (*models.Credential, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*models.Credential, error)
	Authorize(ctx context.Context) (*models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Credential, error)
	Revoke(ctx context.Context, accessToken string) error
}

// pendingAuthorization is one consent page handed out and not yet redeemed.
type pendingAuthorization struct {
	verifier    string
	redirectURI string
	expiresAt   time.Time
}

type authService struct {
	cfg          config.Config
	client       *TiktokClient
	codeProvider CodeProvider
	openURL      func(string) error
	out          io.Writer

	mu        sync.Mutex
	state     AuthState
	pending   map[string]pendingAuthorization
	validated *pendingAuthorization
}

// NewAuthService never persists credentials; the caller owns the store.
// codeProvider may be nil when codes arrive through the HTTP callback.
func NewAuthService(cfg config.Config, client *TiktokClient, codeProvider CodeProvider) AuthService {
	return &authService{
		cfg:          cfg,
		client:       client,
		codeProvider: codeProvider,
		openURL:      browser.OpenURL,
		out:          os.Stderr,
		state:        AuthUnauthenticated,
		pending:      map[string]pendingAuthorization{},
	}
}

func (s *authService) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *authService) setState(state AuthState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *authService) BuildAuthorizationURL(scopes []string, redirectURI string) (string, string, error) {
	authURL, state, _, err := s.begin(scopes, redirectURI)
	return authURL, state, err
}

// begin registers a new attempt under a fresh nonce. Several attempts may be
// outstanding at once; each is redeemed by its own state.
func (s *authService) begin(scopes []string, redirectURI string) (authURL, state, nonce string, err error) {
	if len(scopes) == 0 {
		scopes = s.cfg.Tiktok.Scopes
	}
	if redirectURI == "" {
		redirectURI = s.cfg.Tiktok.RedirectURI
	}

	nonce, err = utils.GenerateRandomKey(16)
	if err != nil {
		return "", "", "", err
	}

	state, err = utils.GenerateStateToken(s.cfg.Tiktok.ClientSecret, nonce, stateTTL)
	if err != nil {
		return "", "", "", fmt.Errorf("sign state: %w", err)
	}

	u, err := url.Parse(s.cfg.Tiktok.AuthURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse auth url: %w", err)
	}

	verifier := oauth2.GenerateVerifier()

	params := u.Query()
	params.Set("client_key", s.cfg.Tiktok.ClientKey)
	params.Set("scope", strings.Join(scopes, ","))
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	params.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	params.Set("code_challenge_method", "S256")
	u.RawQuery = params.Encode()

	now := time.Now()
	s.mu.Lock()
	for n, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, n)
		}
	}
	s.pending[nonce] = pendingAuthorization{
		verifier:    verifier,
		redirectURI: redirectURI,
		expiresAt:   now.Add(stateTTL),
	}
	s.state = AuthAwaitingCode
	s.mu.Unlock()

	return u.String(), state, nonce, nil
}

// claim checks the signature and expiry of state and removes the attempt it
// names, so every state is accepted at most once.
func (s *authService) claim(state string) (pendingAuthorization, error) {
	claims, err := utils.ValidateStateToken(s.cfg.Tiktok.ClientSecret, state)
	if err != nil {
		return pendingAuthorization{}, &apperror.AuthError{Reason: "invalid state", Err: fmt.Errorf("%w: %w", ErrStateMismatch, err)}
	}
	return s.take(claims.Nonce)
}

func (s *authService) take(nonce string) (pendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[nonce]
	if !ok {
		return pendingAuthorization{}, &apperror.AuthError{Reason: "unknown state", Err: ErrStateMismatch}
	}
	delete(s.pending, nonce)
	return p, nil
}

// ValidateState accepts the state of an outstanding attempt exactly once. The
// next ExchangeCode uses that attempt's PKCE verifier.
func (s *authService) ValidateState(state string) error {
	p, err := s.claim(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.validated = &p
	s.mu.Unlock()
	return nil
}

func (s *authService) PresentToUser(authURL string) {
	if err := s.openURL(authURL); err != nil {
		slog.Info("could not open browser", "error", err)
		fmt.Fprintf(s.out, "Open this URL to authorize TikTok access:\n\n  %s\n\n", authURL)
	}
}

func (s *authService) ExchangeCode(ctx context.Context, code string) (*models.Credential, error) {
	s.mu.Lock()
	var p pendingAuthorization
	if s.validated != nil {
		p = *s.validated
		s.validated = nil
	}
	s.mu.Unlock()

	return s.exchange(ctx, code, p)
}

// CompleteAuthorization redeems the attempt named by state with code. Unlike
// ValidateState followed by ExchangeCode, concurrent callbacks cannot swap
// verifiers.
func (s *authService) CompleteAuthorization(ctx context.Context, code, state string) (*models.Credential, error) {
	p, err := s.claim(state)
	if err != nil {
		s.setState(AuthUnauthenticated)
		return nil, err
	}
	return s.exchange(ctx, code, p)
}

func (s *authService) exchange(ctx context.Context, code string, p pendingAuthorization) (*models.Credential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		s.setState(AuthUnauthenticated)
		return nil, &apperror.AuthError{Reason: "authorization code is empty"}
	}

	s.setState(AuthExchanging)

	redirectURI := p.redirectURI
	if redirectURI == "" {
		redirectURI = s.cfg.Tiktok.RedirectURI
	}

	form := url.Values{}
	form.Set("client_key", s.cfg.Tiktok.ClientKey)
	form.Set("client_secret", s.cfg.Tiktok.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	if p.verifier != "" {
		form.Set("code_verifier", p.verifier)
	}

	cred, err := s.requestToken(ctx, form)
	if err != nil {
		s.setState(AuthUnauthenticated)
		return nil, err
	}

	s.setState(AuthAuthenticated)
	slog.Info("tiktok authorization complete", "open_id", cred.OpenID, "scope", cred.Scope)
	return cred, nil
}

func (s *authService) Authorize(ctx context.Context) (*models.Credential, error) {
	if s.codeProvider == nil {
		return nil, &apperror.AuthError{Reason: "no stored credential and no interactive code provider; authorize via the callback endpoint"}
	}

	authURL, _, nonce, err := s.begin(nil, "")
	if err != nil {
		return nil, &apperror.AuthError{Reason: "build authorization url", Err: err}
	}

	s.PresentToUser(authURL)

	grant, err := s.codeProvider(ctx)
	if err != nil {
		s.forget(nonce)
		s.setState(AuthUnauthenticated)
		return nil, &apperror.AuthError{Reason: "no authorization code received", Err: err}
	}

	switch {
	case grant.State != "":
		return s.CompleteAuthorization(ctx, grant.Code, grant.State)
	case grant.Pasted:
		slog.Info("authorization code pasted without state, redeeming the attempt just presented")
		p, err := s.take(nonce)
		if err != nil {
			s.setState(AuthUnauthenticated)
			return nil, err
		}
		return s.exchange(ctx, grant.Code, p)
	default:
		s.forget(nonce)
		s.setState(AuthUnauthenticated)
		return nil, &apperror.AuthError{Reason: "authorization redirect carried no state", Err: ErrStateMismatch}
	}
}

func (s *authService) forget(nonce string) {
	s.mu.Lock()
	delete(s.pending, nonce)
	s.mu.Unlock()
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	if refreshToken == "" {
		return nil, &apperror.AuthError{Reason: "refresh token is empty"}
	}

	form := url.Values{}
	form.Set("client_key", s.cfg.Tiktok.ClientKey)
	form.Set("client_secret", s.cfg.Tiktok.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	cred, err := s.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}

	s.setState(AuthAuthenticated)
	slog.Info("tiktok token refreshed", "open_id", cred.OpenID)
	return cred, nil
}

func (s *authService) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("client_key", s.cfg.Tiktok.ClientKey)
	form.Set("client_secret", s.cfg.Tiktok.ClientSecret)
	form.Set("token", accessToken)

	var result transfer.TiktokRevokeResponse
	err := s.client.postForm(ctx, tiktokRevokePath, form, &result)
	if result.Error != "" {
		return &apperror.AuthError{Reason: fmt.Sprintf("revoke rejected: %s: %s", result.Error, result.ErrorDescription)}
	}
	if err != nil {
		slog.Info(err.Error())
		return &apperror.AuthError{Reason: "revoke request failed", Err: err}
	}

	s.setState(AuthUnauthenticated)
	return nil
}

func (s *authService) requestToken(ctx context.Context, form url.Values) (*models.Credential, error) {
	var envelope transfer.TiktokTokenEnvelope
	err := s.client.postForm(ctx, tiktokTokenPath, form, &envelope)
	if envelope.Error != "" {
		return nil, &apperror.AuthError{Reason: fmt.Sprintf("token endpoint rejected the request: %s: %s", envelope.Error, envelope.ErrorDescription)}
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, &apperror.AuthError{Reason: "token request failed", Err: err}
	}

	token := envelope.Token()
	if token == nil {
		return nil, &apperror.AuthError{Reason: "token response has no data"}
	}
	if token.OpenID == "" {
		return nil, &apperror.AuthError{Reason: "token response has no open_id"}
	}

	now := time.Now().UTC()
	return &models.Credential{
		AccessToken:      token.AccessToken,
		OpenID:           token.OpenID,
		ObtainedAt:       now,
		RefreshToken:     token.RefreshToken,
		ExpiresAt:        GetExpiresAt(now, token.ExpiresIn),
		RefreshExpiresAt: GetExpiresAt(now, token.RefreshExpiresIn),
		Scope:            token.Scope,
	}, nil
}
