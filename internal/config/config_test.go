package config

import (
	"testing"
	"time"
)

func TestLoadAppliesBackendDefaults(t *testing.T) {
	t.Setenv("LAB_API_BASE_URL", "")
	t.Setenv("LAB_API_ANALYSIS_TIMEOUT", "")
	t.Setenv("LAB_API_OCR_TIMEOUT", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("SESSION_TTL", "")

	cfg := Load()
	if cfg.LabAPIBaseURL != "http://localhost:8000" {
		t.Fatalf("expected default backend url, got %q", cfg.LabAPIBaseURL)
	}
	if cfg.LabAPIAnalysisTimeout != 45*time.Second {
		t.Fatalf("expected 45s analysis timeout, got %v", cfg.LabAPIAnalysisTimeout)
	}
	if cfg.LabAPIOCRTimeout != 3*time.Minute {
		t.Fatalf("expected 3m ocr timeout, got %v", cfg.LabAPIOCRTimeout)
	}
	if cfg.NATSSubject != "intake.saved" {
		t.Fatalf("expected default subject, got %q", cfg.NATSSubject)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %v", cfg.SessionTTL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LAB_API_OCR_TIMEOUT", "5m")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "lab-docs")

	cfg := Load()
	if cfg.LabAPIOCRTimeout != 5*time.Minute {
		t.Fatalf("expected 5m ocr timeout, got %v", cfg.LabAPIOCRTimeout)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("expected 10m session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.StorageBackend != "s3" || cfg.S3Bucket != "lab-docs" {
		t.Fatalf("expected s3 storage config, got %q/%q", cfg.StorageBackend, cfg.S3Bucket)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("API_RATE_LIMIT_BURST", "lots")

	cfg := Load()
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected fallback ttl, got %v", cfg.SessionTTL)
	}
	if cfg.APIRateLimitBurst != 0 {
		t.Fatalf("expected fallback burst, got %d", cfg.APIRateLimitBurst)
	}
}
