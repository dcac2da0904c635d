package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/pkg/utils"
)

// CredentialStore owns the persisted TikTok credential.
type CredentialStore interface {
	// Load returns the stored credential, or false when none is usable.
	Load() (*models.Credential, bool)
	Save(cred *models.Credential) error
}

type fileCredentialStore struct {
	mu        sync.Mutex
	path      string
	secretKey []byte
}

type credentialRecord struct {
	AccessToken      string    `json:"access_token"`
	OpenID           string    `json:"open_id"`
	ObtainedAt       time.Time `json:"obtained_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Scope            string    `json:"scope,omitempty"`
	Encrypted        bool      `json:"encrypted,omitempty"`
}

// NewFileCredentialStore keeps the credential as JSON at path. When secretKey
// is non-empty the tokens are sealed with AES-GCM before writing.
func NewFileCredentialStore(path, secretKey string) CredentialStore {
	return &fileCredentialStore{path: path, secretKey: []byte(secretKey)}
}

func (s *fileCredentialStore) Load() (*models.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Info("credential file unreadable", "path", s.path, "error", err)
		}
		return nil, false
	}

	var rec credentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Info("credential file malformed", "path", s.path, "error", err)
		return nil, false
	}

	if rec.Encrypted {
		if len(s.secretKey) == 0 {
			slog.Info("credential file is encrypted but no SECRET_KEY is set", "path", s.path)
			return nil, false
		}
		if rec.AccessToken, err = utils.Decrypt(rec.AccessToken, s.secretKey); err != nil {
			slog.Info("credential file could not be decrypted", "path", s.path, "error", err)
			return nil, false
		}
		if rec.RefreshToken != "" {
			if rec.RefreshToken, err = utils.Decrypt(rec.RefreshToken, s.secretKey); err != nil {
				slog.Info("credential file could not be decrypted", "path", s.path, "error", err)
				return nil, false
			}
		}
	}

	cred := &models.Credential{
		AccessToken:      rec.AccessToken,
		OpenID:           rec.OpenID,
		ObtainedAt:       rec.ObtainedAt,
		RefreshToken:     rec.RefreshToken,
		ExpiresAt:        rec.ExpiresAt,
		RefreshExpiresAt: rec.RefreshExpiresAt,
		Scope:            rec.Scope,
	}
	if !cred.Valid() {
		slog.Info("credential file is missing access_token or open_id", "path", s.path)
		return nil, false
	}

	return cred, true
}

func (s *fileCredentialStore) Save(cred *models.Credential) error {
	if !cred.Valid() {
		return errors.New("refusing to persist credential without access_token and open_id")
	}

	rec := credentialRecord{
		AccessToken:      cred.AccessToken,
		OpenID:           cred.OpenID,
		ObtainedAt:       cred.ObtainedAt,
		RefreshToken:     cred.RefreshToken,
		ExpiresAt:        cred.ExpiresAt,
		RefreshExpiresAt: cred.RefreshExpiresAt,
		Scope:            cred.Scope,
	}
	if rec.ObtainedAt.IsZero() {
		rec.ObtainedAt = time.Now().UTC()
	}

	if len(s.secretKey) > 0 {
		var err error
		if rec.AccessToken, err = utils.Encrypt([]byte(rec.AccessToken), s.secretKey); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if rec.RefreshToken != "" {
			if rec.RefreshToken, err = utils.Encrypt([]byte(rec.RefreshToken), s.secretKey); err != nil {
				return fmt.Errorf("encrypt refresh token: %w", err)
			}
		}
		rec.Encrypted = true
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return err
	}

	slog.Info("credential saved", "path", s.path, "open_id", cred.OpenID)
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
