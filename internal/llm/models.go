package llm

import "sort"

// DefaultModel is served when no model is configured or requested.
const DefaultModel = "llama-3.3-70b-versatile"

// allowedModels is the serving allowlist: the Groq production models this
// service exposes to clients. Requests naming anything else fall back to the
// configured default instead of erroring, so a stale client never loses the
// ability to chat.
var allowedModels = map[string]struct{}{
	"llama-3.3-70b-versatile":     {},
	"llama-3.1-8b-instant":        {},
	"openai/gpt-oss-20b":          {},
	"qwen/qwen3-32b":              {},
	"moonshotai/kimi-k2-instruct": {},
}

// Allowed reports whether name is on the serving allowlist.
func Allowed(name string) bool {
	_, ok := allowedModels[name]
	return ok
}

// AllowedModels returns the serving allowlist, sorted.
func AllowedModels() []string {
	names := make([]string, 0, len(allowedModels))
	for name := range allowedModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
