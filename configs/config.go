package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/clipflow/pkg/apperror"
)

const (
	PostModeDirect = "direct"
	PostModeInbox  = "inbox"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// Endpoint overrides the account endpoint, e.g. for a local S3-compatible store.
	Endpoint string
}

type Tiktok struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	APIBaseURL   string
	PostMode     string
}

type Upload struct {
	MaxChunkSize        int64
	ChunkConcurrency    int
	ChunkMaxAttempts    int
	ChunkBackoffInitial time.Duration
	ChunkBackoffMax     time.Duration
}

type Poll struct {
	Interval              time.Duration
	Timeout               time.Duration
	MaxTransportRetries   int
	RefreshSchedule       string
	RefreshBatchSize      int
	CredentialRefreshSpec string
}

type Config struct {
	Tiktok           Tiktok
	Upload           Upload
	Poll             Poll
	GeminiAPIKey     string
	TokenFile        string
	SecretKey        string
	PublishTimeout   time.Duration
	HTTPTimeout      time.Duration
	APIRatePerMinute int
	CredentialMaxAge time.Duration
	PostgresURI      string
	RedisURI         string
	APIKey           string
	Port             string
	R2               R2
}

func LoadConfig() *Config {
	return &Config{
		Tiktok: Tiktok{
			ClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", "http://localhost:8000/callback"),
			Scopes:       getEnvList("TIKTOK_SCOPES", "user.info.basic,video.upload,video.publish"),
			AuthURL:      getEnv("TIKTOK_AUTH_URL", "https://www.tiktok.com/v2/auth/authorize/"),
			APIBaseURL:   strings.TrimRight(getEnv("TIKTOK_API_BASE_URL", "https://open.tiktokapis.com"), "/"),
			PostMode:     strings.ToLower(getEnv("POST_MODE", PostModeDirect)),
		},
		Upload: Upload{
			MaxChunkSize:        getEnvInt64("MAX_CHUNK_SIZE", 10*1024*1024),
			ChunkConcurrency:    getEnvInt("CHUNK_CONCURRENCY", 1),
			ChunkMaxAttempts:    getEnvInt("CHUNK_MAX_ATTEMPTS", 4),
			ChunkBackoffInitial: getEnvDuration("CHUNK_BACKOFF_INITIAL", 500*time.Millisecond),
			ChunkBackoffMax:     getEnvDuration("CHUNK_BACKOFF_MAX", 10*time.Second),
		},
		Poll: Poll{
			Interval:              getEnvDuration("POLL_INTERVAL", 5*time.Second),
			Timeout:               getEnvDuration("POLL_TIMEOUT", 5*time.Minute),
			MaxTransportRetries:   getEnvInt("POLL_MAX_TRANSPORT_RETRIES", 3),
			RefreshSchedule:       getEnv("STATUS_REFRESH_SCHEDULE", "@every 00h10m00s"),
			RefreshBatchSize:      getEnvInt("STATUS_REFRESH_BATCH_SIZE", 20),
			CredentialRefreshSpec: getEnv("CREDENTIAL_REFRESH_SCHEDULE", "@every 01h00m00s"),
		},
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		TokenFile:        getEnv("TOKEN_FILE", "tiktok_tokens.json"),
		SecretKey:        getEnv("SECRET_KEY", ""),
		PublishTimeout:   getEnvDuration("PUBLISH_TIMEOUT", 30*time.Minute),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 2*time.Minute),
		APIRatePerMinute: getEnvInt("API_RATE_PER_MINUTE", 30),
		CredentialMaxAge: getEnvDuration("CREDENTIAL_MAX_AGE", 24*time.Hour),
		PostgresURI:      getEnv("POSTGRES_URI", ""),
		RedisURI:         getEnv("REDIS_URI", ""),
		APIKey:           getEnv("API_KEY", ""),
		Port:             getEnv("PORT", "3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
		},
	}
}

// Validate checks everything that must be present before the first network
// call. All missing keys are reported together.
func (c *Config) Validate() error {
	var missing []string
	if c.Tiktok.ClientKey == "" {
		missing = append(missing, "TIKTOK_CLIENT_KEY")
	}
	if c.Tiktok.ClientSecret == "" {
		missing = append(missing, "TIKTOK_CLIENT_SECRET")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return &apperror.ConfigError{Missing: missing}
	}

	switch {
	case c.Tiktok.PostMode != PostModeDirect && c.Tiktok.PostMode != PostModeInbox:
		return &apperror.ConfigError{Reason: "POST_MODE must be direct or inbox"}
	case c.Upload.MaxChunkSize <= 0:
		return &apperror.ConfigError{Reason: "MAX_CHUNK_SIZE must be positive"}
	case c.Upload.ChunkMaxAttempts <= 0:
		return &apperror.ConfigError{Reason: "CHUNK_MAX_ATTEMPTS must be positive"}
	case c.Poll.Interval <= 0 || c.Poll.Timeout <= 0:
		return &apperror.ConfigError{Reason: "POLL_INTERVAL and POLL_TIMEOUT must be positive"}
	case c.SecretKey != "" && len(c.SecretKey) != 32:
		return &apperror.ConfigError{Reason: "SECRET_KEY must be 32 bytes"}
	}
	return nil
}

// R2Enabled reports whether r2:// video paths can be resolved.
func (c *Config) R2Enabled() bool {
	return (c.R2.AccountID != "" || c.R2.Endpoint != "") && c.R2.AccessKey != "" && c.R2.SecretKey != "" && c.R2.BucketName != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
