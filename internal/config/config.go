package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	PublicBaseURL   string
}

type ChatConfig struct {
	APIKey       string
	URL          string
	ProModel     string
	DefaultModel string
}

type ImageConfig struct {
	APIKey       string
	SubmitURL    string
	StatusURL    string
	PollInterval time.Duration
	MaxWait      time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Config struct {
	DB_URL      string
	Port        string
	JWTSecret   string
	TokenTTL    time.Duration
	Environment string
	FrontendURL string
	// PublicBaseURL prefixes share links returned to clients.
	PublicBaseURL string
	CorsConfig    cors.Options

	StorageBackend string // "fs" or "r2"
	MediaRoot      string
	R2             R2Config

	ChatEncryptionKey string
	UpstreamTimeout   time.Duration
	AIRatePerMinute   int
	Chat              ChatConfig
	Image             ImageConfig
	Google            GoogleConfig
}

// Load reads the optional env file and builds the config from the environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// A missing env file is fine, variables may come from the environment.
	_ = godotenv.Load(envFile)

	frontend := getEnv("FRONTEND_URL", "http://localhost:5173")

	cfg := &Config{
		DB_URL:         getEnv("DB_URL", ""),
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", "not-so-secret-now-is-it?"),
		Environment:    getEnv("ENV", "development"),
		FrontendURL:    frontend,
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CorsConfig:     CorsConfig(frontend),
		StorageBackend: getEnv("STORAGE_BACKEND", "fs"),
		MediaRoot:      getEnv("MEDIA_ROOT", "media"),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Region:          getEnv("R2_REGION", "auto"),
			PublicBaseURL:   getEnv("R2_PUBLIC_BASE_URL", ""),
		},
		ChatEncryptionKey: getEnv("CHAT_ENCRYPTION_KEY", ""),
		Chat: ChatConfig{
			APIKey:       getEnv("GROQ_API_KEY", ""),
			URL:          getEnv("GROQ_CHAT_URL", "https://api.groq.com/openai/v1/chat/completions"),
			ProModel:     getEnv("PRO_CHAT_MODEL", "llama-3.3-70b-versatile"),
			DefaultModel: getEnv("DEFAULT_CHAT_MODEL", "groq/compound-mini"),
		},
		Image: ImageConfig{
			APIKey:    getEnv("HORDE_API_KEY", "0000000000"),
			SubmitURL: getEnv("HORDE_SUBMIT_URL", "https://stablehorde.net/api/v2/generate/async"),
			StatusURL: getEnv("HORDE_STATUS_URL", "https://stablehorde.net/api/v2/generate/status"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		},
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Image.PollInterval, err = getDuration("IMAGE_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Image.MaxWait, err = getDuration("IMAGE_MAX_WAIT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AIRatePerMinute, err = getInt("AI_RATE_PER_MINUTE", 20); err != nil {
		return nil, err
	}

	if cfg.StorageBackend != "fs" && cfg.StorageBackend != "r2" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be fs or r2, got %q", cfg.StorageBackend)
	}
	if cfg.IsProduction() && cfg.ChatEncryptionKey == "" {
		return nil, fmt.Errorf("CHAT_ENCRYPTION_KEY is required in production")
	}
	if cfg.ChatEncryptionKey == "" {
		cfg.ChatEncryptionKey = cfg.JWTSecret
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func CorsConfig(frontendURL string) cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
