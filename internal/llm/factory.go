package llm

import (
	"context"
	"os"
	"strconv"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// Backend enumerates the supported chat model providers.
type Backend string

const (
	// BackendGroq selects Groq's OpenAI-compatible API. This is the default:
	// the serving allowlist is Groq's model catalogue.
	BackendGroq Backend = "groq"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// Config holds chat model configuration resolved from environment variables
// or explicit caller-supplied values.
type Config struct {
	// Backend identifies which provider to use.
	Backend Backend

	// Model is the default model name (or Azure deployment ID) served when a
	// request names none.
	Model string

	// APIKey is the credential for the selected provider.
	APIKey string

	// BaseURL overrides the default API endpoint: the Groq or OpenAI
	// endpoint, the Azure resource endpoint, the Ollama host, or the Ark
	// endpoint, depending on Backend.
	BaseURL string

	// AzureAPIVersion is the Azure OpenAI REST API version (azure only).
	AzureAPIVersion string

	// MaxTokens caps the tokens generated per answer.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// ConfigFromEnv resolves chat model configuration from the environment.
//
// Environment variables:
//
//	MODEL_PROVIDER = groq | openai | azure | ollama | gemini | ark (default: groq)
//	MODEL_NAME     = default model (default: llama-3.3-70b-versatile)
//
//	Groq:   GROQ_API_KEY, GROQ_BASE_URL (default: https://api.groq.com/openai/v1)
//	OpenAI: OPENAI_API_KEY, OPENAI_BASE_URL (optional proxy)
//	Azure:  AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT,
//	        AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ollama: OLLAMA_HOST (default: http://localhost:11434)
//	Gemini: GOOGLE_API_KEY
//	Ark:    ARK_API_KEY, ARK_BASE_URL
//
//	Shared: MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.2)
func ConfigFromEnv() *Config {
	cfg := &Config{
		Backend:     Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGroq))),
		Model:       getEnvOrDefault("MODEL_NAME", DefaultModel),
		MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 1024),
		Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.2),
	}

	switch cfg.Backend {
	case BackendGroq:
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
		cfg.BaseURL = getEnvOrDefault("GROQ_BASE_URL", groqBaseURL)
	case BackendOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	case BackendAzure:
		cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		cfg.BaseURL = os.Getenv("AZURE_OPENAI_ENDPOINT")
		cfg.AzureAPIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01")
	case BackendOllama:
		cfg.BaseURL = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
	case BackendGemini:
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	case BackendArk:
		cfg.APIKey = os.Getenv("ARK_API_KEY")
		cfg.BaseURL = os.Getenv("ARK_BASE_URL")
	}

	return cfg
}

// Validate checks that the config names a known backend and carries the
// credentials that backend requires. Called at startup so a missing key
// fails fast instead of on the first question.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGroq:
		if c.APIKey == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: GROQ_API_KEY is required for the groq backend")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: OPENAI_API_KEY is required for the openai backend")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: AZURE_OPENAI_API_KEY is required for the azure backend")
		}
		if c.BaseURL == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: AZURE_OPENAI_ENDPOINT is required for the azure backend")
		}
	case BackendOllama:
		// Local daemon, no credentials.
	case BackendGemini:
		if c.APIKey == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: GOOGLE_API_KEY is required for the gemini backend")
		}
	case BackendArk:
		if c.APIKey == "" {
			return ragerr.New(ragerr.KindConfiguration, "llm: ARK_API_KEY is required for the ark backend")
		}
	default:
		return ragerr.Newf(ragerr.KindConfiguration,
			"llm: unknown backend %q — valid values: groq, openai, azure, ollama, gemini, ark", c.Backend)
	}
	return nil
}

// NewChatModel constructs the eino chat model for the configured backend.
// It validates the config first so callers get a clear error at startup
// rather than on the first request.
func NewChatModel(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendGroq, BackendOpenAI:
		return newOpenAICompatible(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		// Unreachable after Validate, kept for exhaustiveness.
		return nil, ragerr.Newf(ragerr.KindConfiguration, "llm: unknown backend %q", cfg.Backend)
	}
}

// newOpenAICompatible serves both the openai and groq backends: Groq speaks
// the OpenAI wire protocol and differs only in base URL and credential.
func newOpenAICompatible(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.MaxTokens
	temp := cfg.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating openai-compatible chat model", err)
	}
	return m, nil
}

// newAzure constructs a chat model backed by Azure OpenAI Service. The model
// name doubles as the deployment ID.
func newAzure(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.MaxTokens
	temp := cfg.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ByAzure:     true,
		APIVersion:  cfg.AzureAPIVersion,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		// Use the deployment name as-is — the default mapper strips
		// dots/colons, which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating azure chat model", err)
	}
	return m, nil
}

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating ollama chat model", err)
	}
	return m, nil
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating gemini client", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating gemini chat model", err)
	}
	return m, nil
}

// newArk constructs a chat model backed by Volcengine Ark.
func newArk(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.MaxTokens
	temp := cfg.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindConfiguration, "llm: creating ark chat model", err)
	}
	return m, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
