package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Steam Web API
	SteamAPIKey         string
	SteamAPIBaseURL     string
	SteamRequestTimeout time.Duration

	// Achievements
	AchievementBatchSize  int
	AchievementBatchPause time.Duration
	AchievementLanguage   string

	// Outbound
	OutboundGuard bool

	// Rate Limit
	RateLimitGeneral int
	RateLimitCompare int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	// ServerWriteTimeout はレスポンス書き込みの上限。0は無制限
	ServerWriteTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SteamAPIKey = strings.TrimSpace(os.Getenv("STEAM_API_KEY"))
	if cfg.SteamAPIKey == "" {
		missing = append(missing, "STEAM_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SteamAPIBaseURL = getEnvString("STEAM_API_BASE_URL", "https://api.steampowered.com")
	cfg.SteamRequestTimeout = getEnvDuration("STEAM_REQUEST_TIMEOUT", 15*time.Second)
	cfg.AchievementBatchSize = getEnvInt("ACHIEVEMENT_BATCH_SIZE", 10)
	cfg.AchievementBatchPause = getEnvDuration("ACHIEVEMENT_BATCH_PAUSE", 100*time.Millisecond)
	cfg.AchievementLanguage = getEnvString("ACHIEVEMENT_LANGUAGE", "english")
	cfg.OutboundGuard = getEnvBool("OUTBOUND_GUARD", true)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCompare = getEnvInt("RATE_LIMIT_COMPARE", 20)
	cfg.LogLevel = getEnvLogLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// 0以下の値はデフォルトに戻す
	if cfg.AchievementBatchSize <= 0 {
		cfg.AchievementBatchSize = 10
	}
	if cfg.SteamRequestTimeout <= 0 {
		cfg.SteamRequestTimeout = 15 * time.Second
	}
	if cfg.ServerWriteTimeout < 0 {
		cfg.ServerWriteTimeout = 120 * time.Second
	}

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

func getEnvLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
