package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: groq
  name: llama-3.3-70b-versatile
  max_tokens: 1024
  temperature: 0.2
embedding:
  provider: ollama
  model: nomic-embed-text
  cache_size: 500
qdrant:
  host: qdrant.internal
  port: 6334
  collection: docs
chunking:
  size: 1000
  overlap: 200
workflow:
  db_path: /var/lib/rag/workflows.db
  max_retries: 3
  workers: 4
server:
  port: 8000
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_NAME", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBED_CACHE_SIZE",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"CHUNK_SIZE", "CHUNK_OVERLAP",
		"WORKFLOW_DB", "WORKFLOW_MAX_RETRIES", "WORKFLOW_WORKERS",
		"SERVER_PORT", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":       "groq",
		"MODEL_NAME":           "llama-3.3-70b-versatile",
		"MODEL_MAX_TOKENS":     "1024",
		"MODEL_TEMPERATURE":    "0.2",
		"EMBEDDING_PROVIDER":   "ollama",
		"EMBEDDING_MODEL":      "nomic-embed-text",
		"EMBED_CACHE_SIZE":     "500",
		"QDRANT_HOST":          "qdrant.internal",
		"QDRANT_PORT":          "6334",
		"QDRANT_COLLECTION":    "docs",
		"CHUNK_SIZE":           "1000",
		"CHUNK_OVERLAP":        "200",
		"WORKFLOW_DB":          "/var/lib/rag/workflows.db",
		"WORKFLOW_MAX_RETRIES": "3",
		"WORKFLOW_WORKERS":     "4",
		"SERVER_PORT":          "8000",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "groq")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "groq" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "groq", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
