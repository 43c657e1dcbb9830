// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// UploadMode はチャンクアップロードのデプロイモードを表す。
type UploadMode string

const (
	// UploadModeRelay はバックエンド経由でバイトを中継するモード。
	// クライアントは同一オリジンのPUTエンドポイントへアップロードする。
	UploadModeRelay UploadMode = "relay"
	// UploadModePresign はストレージの署名付きURLへ直接アップロードするモード。
	UploadModePresign UploadMode = "presign"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	APIAuthToken string

	// Storage
	UploadMode    UploadMode
	S3Bucket      string
	S3Region      string
	S3Endpoint    string // 空の場合はAWS標準エンドポイント。MinIO等ではURLを指定する
	S3AccessKey   string
	S3SecretKey   string
	S3PublicRead  bool
	PresignExpiry time.Duration

	// Relay
	RelayDir     string
	RelayFileTTL time.Duration
	MaxChunkSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitUpload  int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.APIAuthToken = os.Getenv("API_AUTH_TOKEN")
	if cfg.APIAuthToken == "" {
		missing = append(missing, "API_AUTH_TOKEN")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	mode := UploadMode(getEnvString("UPLOAD_MODE", string(UploadModeRelay)))
	if mode != UploadModeRelay && mode != UploadModePresign {
		return nil, fmt.Errorf("invalid UPLOAD_MODE: %q (must be %q or %q)", mode, UploadModeRelay, UploadModePresign)
	}
	cfg.UploadMode = mode

	cfg.S3Bucket = getEnvString("S3_BUCKET", "audio-chunks")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.S3PublicRead = getEnvBool("S3_PUBLIC_READ", true)
	cfg.PresignExpiry = getEnvDuration("PRESIGN_EXPIRY", time.Hour)
	cfg.RelayDir = getEnvString("RELAY_DIR", "./data/audio")
	cfg.RelayFileTTL = getEnvDuration("RELAY_FILE_TTL", 24*time.Hour)
	cfg.MaxChunkSize = getEnvInt64("MAX_CHUNK_SIZE", 52428800)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 600)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
