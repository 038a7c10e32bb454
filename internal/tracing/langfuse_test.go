package tracing

import (
	"testing"

	"github.com/SebastianCielma/RAG/internal/logging"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "https://cloud.langfuse.com")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-test")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf-test")

	cfg := ConfigFromEnv()
	if cfg.Host != "https://cloud.langfuse.com" {
		t.Errorf("Host = %q, want %q", cfg.Host, "https://cloud.langfuse.com")
	}
	if cfg.PublicKey != "pk-lf-test" {
		t.Errorf("PublicKey = %q, want %q", cfg.PublicKey, "pk-lf-test")
	}
	if cfg.SecretKey != "sk-lf-test" {
		t.Errorf("SecretKey = %q, want %q", cfg.SecretKey, "sk-lf-test")
	}
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"both keys", Config{PublicKey: "pk", SecretKey: "sk"}, true},
		{"missing secret", Config{PublicKey: "pk"}, false},
		{"missing public", Config{SecretKey: "sk"}, false},
		{"empty", Config{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstall_DisabledReturnsNoopFlush(t *testing.T) {
	t.Parallel()

	flush := Install(Config{}, logging.Discard())
	if flush == nil {
		t.Fatal("Install returned nil flush for disabled config")
	}
	flush() // must not panic
}
