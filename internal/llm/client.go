// Package llm constructs the chat model backend and drives answer
// generation: blocking completions for workflow steps and token streaming
// for the chat endpoint. Providers are built on eino chat models so the
// rest of the pipeline never touches provider SDKs directly.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// Client drives answer generation against a constructed chat model.
// Safe to call from multiple goroutines.
type Client struct {
	// model is the eino chat model built by the backend factory.
	model model.ToolCallingChatModel

	// defaultModel is served when a request names no model or names one
	// outside the allowlist.
	defaultModel string
}

// NewClient wraps a constructed chat model. An empty defaultModel falls back
// to DefaultModel.
func NewClient(m model.ToolCallingChatModel, defaultModel string) (*Client, error) {
	if m == nil {
		return nil, fmt.Errorf("llm: chat model must not be nil")
	}
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return &Client{model: m, defaultModel: defaultModel}, nil
}

// NewFromEnv constructs the configured chat model backend and wraps it in a
// Client.
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg := ConfigFromEnv()
	m, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(m, cfg.Model)
}

// DefaultModelName returns the model served when requests name none.
func (c *Client) DefaultModelName() string { return c.defaultModel }

// ResolveModel maps a requested model name onto the serving allowlist:
// allowlisted names pass through, anything else (including the empty
// string) resolves to the client's default. Unknown names are logged, never
// rejected, so a request with a stale model name still gets an answer.
func (c *Client) ResolveModel(ctx context.Context, name string) string {
	if name == "" || name == c.defaultModel {
		return c.defaultModel
	}
	if Allowed(name) {
		return name
	}
	logging.FromContext(ctx).Warn("requested model not in allowlist, using default",
		slog.String("requested", name),
		slog.String("default", c.defaultModel),
	)
	return c.defaultModel
}

// Complete generates a full answer in one blocking call. Workflow steps use
// it so the whole answer is memoized and retried as a unit.
func (c *Client) Complete(ctx context.Context, msgs []*schema.Message, modelName string) (string, error) {
	resolved := c.ResolveModel(ctx, modelName)
	out, err := c.model.Generate(ctx, msgs, model.WithModel(resolved))
	if err != nil {
		return "", ragerr.Wrap(ragerr.KindLLM, fmt.Sprintf("llm: generate with %s failed", resolved), err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ragerr.New(ragerr.KindLLM, "llm: model returned an empty answer")
	}
	return strings.TrimSpace(out.Content), nil
}

// Ping verifies the chat backend accepts requests by generating a single
// token. Each call spends a token, so readiness probes should be spaced out.
func (c *Client) Ping(ctx context.Context) error {
	msgs := []*schema.Message{schema.UserMessage("ping")}
	if _, err := c.model.Generate(ctx, msgs, model.WithModel(c.defaultModel), model.WithMaxTokens(1)); err != nil {
		return ragerr.Wrap(ragerr.KindLLM, "llm: ping failed", err)
	}
	return nil
}
