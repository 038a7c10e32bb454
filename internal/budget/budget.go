// Package budget provides token budget estimation and context trimming for
// the RAG pipeline. Because the pipeline supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// chunkOverheadTokens is the estimated cost of the citation header
	// rendered above each retrieved chunk ("[i] Source: ...").
	chunkOverheadTokens = 4

	// DefaultMaxContextTokens is the default retrieved-context budget in
	// tokens. Conservative enough to fit within 8k-context models while
	// leaving room for the question, the system prompt, and the answer.
	// Override via CONTEXT_TOKEN_BUDGET.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateChunk returns the estimated token cost of one retrieved chunk,
// including its citation header.
func EstimateChunk(text, source string) int {
	return chunkOverheadTokens + Estimate(source) + Estimate(text)
}

// TrimContexts drops lowest-ranked chunks from the tail of the parallel
// contexts/sources slices until the estimated total fits within maxTokens.
// The slices arrive in descending relevance order, so the tail is always the
// least valuable. The top-ranked chunk is never dropped, even when it alone
// exceeds the budget: returning nothing here would misreport a successful
// retrieval as empty.
//
// Returns the trimmed slices; alignment between contexts[i] and sources[i]
// is preserved.
func TrimContexts(contexts, sources []string, maxTokens int) ([]string, []string) {
	if len(contexts) == 0 || maxTokens <= 0 {
		return contexts, sources
	}

	total := 0
	keep := 0
	for i := range contexts {
		cost := EstimateChunk(contexts[i], sources[i])
		if keep > 0 && total+cost > maxTokens {
			break
		}
		total += cost
		keep++
	}

	return contexts[:keep], sources[:keep]
}
