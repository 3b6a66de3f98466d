package config

import (
	"testing"
	"time"
)

func TestLoadRequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("BACKEND_ANON_KEY", "anon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing BACKEND_URL")
	}
}

func TestLoadRequiresAnonKey(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_ANON_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing BACKEND_ANON_KEY")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_ANON_KEY", "anon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionInitTimeout != 8*time.Second {
		t.Fatalf("unexpected init timeout %s", cfg.SessionInitTimeout)
	}
	if cfg.ProfileFetchTimeout != 5*time.Second {
		t.Fatalf("unexpected profile timeout %s", cfg.ProfileFetchTimeout)
	}
	if cfg.PhotoBucket != "puppy-photos" {
		t.Fatalf("unexpected bucket %q", cfg.PhotoBucket)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Fatalf("unexpected upload cap %d", cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	t.Setenv("PROFILE_FETCH_TIMEOUT", "250ms")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("PHOTO_BUCKET", "other-bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProfileFetchTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected profile timeout %s", cfg.ProfileFetchTimeout)
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Fatalf("unexpected upload cap %d", cfg.MaxUploadBytes)
	}
	if cfg.PhotoBucket != "other-bucket" {
		t.Fatalf("unexpected bucket %q", cfg.PhotoBucket)
	}
}

func TestLoadIgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	t.Setenv("PROFILE_FETCH_TIMEOUT", "not-a-duration")
	t.Setenv("MAX_UPLOAD_BYTES", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProfileFetchTimeout != 5*time.Second {
		t.Fatalf("malformed duration should fall back, got %s", cfg.ProfileFetchTimeout)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Fatalf("non-positive cap should fall back, got %d", cfg.MaxUploadBytes)
	}
}
