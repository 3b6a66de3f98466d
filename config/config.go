// Package config centralises configuration parsing for the puppylog client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration for talking to the hosted backend.
// BackendURL and AnonKey have no defaults: the client cannot perform any
// network operation without them.
type Config struct {
	BackendURL string
	AnonKey    string

	// Timeouts are empirically tuned, not SLA-derived; they are plain
	// tunables with defaults matching production behaviour.
	SessionInitTimeout  time.Duration
	ProfileFetchTimeout time.Duration
	HTTPTimeout         time.Duration

	PhotoBucket    string
	MaxUploadBytes int64
}

// Load reads environment variables into Config. A missing backend URL or
// API key is a startup-fatal misconfiguration and is returned as an error.
func Load() (Config, error) {
	cfg := Config{
		BackendURL:          os.Getenv("BACKEND_URL"),
		AnonKey:             os.Getenv("BACKEND_ANON_KEY"),
		SessionInitTimeout:  getDurationEnv("SESSION_INIT_TIMEOUT", 8*time.Second),
		ProfileFetchTimeout: getDurationEnv("PROFILE_FETCH_TIMEOUT", 5*time.Second),
		HTTPTimeout:         getDurationEnv("HTTP_TIMEOUT", 10*time.Second),
		PhotoBucket:         getEnv("PHOTO_BUCKET", "puppy-photos"),
		MaxUploadBytes:      getInt64Env("MAX_UPLOAD_BYTES", 5*1024*1024),
	}

	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("BACKEND_URL is required")
	}
	if cfg.AnonKey == "" {
		return Config{}, fmt.Errorf("BACKEND_ANON_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
