package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	MongoURI  string
	MongoDB   string
	DataDir   string
	UploadDir string
	JWTSecret string
	TokenTTL  time.Duration

	MaxUploadBytes int64
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory. An empty MONGO_URI selects the
// file-backed store instead of MongoDB.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "5000")
	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.MongoDB = envOrDefault("MONGO_DB", "sharenotes")
	cfg.DataDir = envOrDefault("DATA_DIR", "data")
	cfg.JWTSecret = envOrDefault("JWT_SECRET", "change-me")

	tokenTTLSeconds, err := parseIntEnv("TOKEN_TTL_SECONDS", 7*24*3600)
	if err != nil {
		return Config{}, fmt.Errorf("parse TOKEN_TTL_SECONDS: %w", err)
	}
	cfg.TokenTTL = time.Duration(tokenTTLSeconds) * time.Second

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 25)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir
	cfg.UploadDir = envOrDefault("UPLOAD_DIR", filepath.Join(cfg.DataDir, "uploads"))

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
