// Package tracing wires optional Langfuse tracing into the eino callback
// system so every chat and embedding call the pipeline makes is recorded as
// a trace. Tracing is opt-in: without credentials the package is inert.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset,
// matching a local docker-compose deployment.
const defaultHost = "http://localhost:3000"

// Config carries the Langfuse connection settings.
type Config struct {
	// Host is the Langfuse API endpoint. Empty means defaultHost.
	Host string
	// PublicKey identifies the project (pk-lf-...).
	PublicKey string
	// SecretKey authenticates the project (sk-lf-...).
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Install registers the Langfuse handler as a global eino callback so model
// and embedding calls everywhere in the process get traced. It returns a
// flush function that must be called before exit to drain buffered traces.
// When tracing is disabled the returned flush is a no-op, so callers can
// defer it unconditionally.
func Install(cfg Config, log *slog.Logger) func() {
	if !cfg.Enabled() {
		log.Info("langfuse tracing disabled",
			slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"),
		)
		return func() {}
	}

	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)

	log.Info("langfuse tracing enabled", slog.String("host", host))
	return flush
}
