package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Assessment.MemoryRecentMessages != 20 {
		t.Errorf("MemoryRecentMessages = %d, want 20", cfg.Assessment.MemoryRecentMessages)
	}
	if cfg.Assessment.MemorySummaryMaxChars != 12000 {
		t.Errorf("MemorySummaryMaxChars = %d, want 12000", cfg.Assessment.MemorySummaryMaxChars)
	}
	if cfg.Assessment.PRCleanupTimeout != 30*time.Second {
		t.Errorf("PRCleanupTimeout = %v, want 30s", cfg.Assessment.PRCleanupTimeout)
	}
	if cfg.Groq.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("Groq.BaseURL = %q", cfg.Groq.BaseURL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("MEMORY_RECENT_MESSAGES", "5")
	t.Setenv("EVALUATION_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gemini.Model != "gemini-test" {
		t.Errorf("Gemini.Model = %q, want gemini-test", cfg.Gemini.Model)
	}
	if cfg.Assessment.MemoryRecentMessages != 5 {
		t.Errorf("MemoryRecentMessages = %d, want 5", cfg.Assessment.MemoryRecentMessages)
	}
	if cfg.Assessment.EvaluationTimeout != 90*time.Second {
		t.Errorf("EvaluationTimeout = %v, want 90s", cfg.Assessment.EvaluationTimeout)
	}
}

func TestReadSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "github_token")
	if err := os.WriteFile(path, []byte("  ghp_secret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN_FILE", path)
	readSecret("GITHUB_TOKEN")

	if got := os.Getenv("GITHUB_TOKEN"); got != "ghp_secret" {
		t.Errorf("GITHUB_TOKEN = %q, want ghp_secret", got)
	}
}

func TestReadSecretKeepsDirectValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	t.Setenv("RESEND_API_KEY", "direct")
	t.Setenv("RESEND_API_KEY_FILE", path)
	readSecret("RESEND_API_KEY")

	if got := os.Getenv("RESEND_API_KEY"); got != "direct" {
		t.Errorf("RESEND_API_KEY = %q, want direct", got)
	}
}
