// Package chunk splits extracted document text into overlapping,
// embedding-sized spans. Splitting is sentence-aware: whole sentences are
// packed into chunks up to the size budget, and only sentences longer than
// the budget are hard-split at character width. The same input with the
// same parameters always yields the same chunks, which is what makes
// re-ingestion idempotent further down the pipeline.
package chunk

import (
	"regexp"
	"strings"
)

const (
	// DefaultSize is the target chunk width in characters.
	DefaultSize = 1000

	// DefaultOverlap is the number of characters consecutive chunks share.
	DefaultOverlap = 200
)

// Chunk is one bounded span of a document's text, the unit of embedding
// and retrieval. Chunks are immutable; re-ingesting a source produces a
// fresh sequence that supersedes the old one.
type Chunk struct {
	// Text is the chunk content, trimmed, never empty.
	Text string

	// SourceID identifies the ingested document this chunk came from.
	SourceID string

	// Index is the zero-based position of the chunk within its source.
	Index int
}

// sentenceRE matches one sentence up to its terminating punctuation.
var sentenceRE = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Split cuts text into chunks of at most size characters, consecutive
// chunks sharing up to overlap characters of trailing context. Whitespace-only
// input yields nil; no returned chunk is empty after trimming. size <= 0
// and out-of-range overlap fall back to the package defaults.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0 // rune length of cur

	flush := func() {
		if c := strings.TrimSpace(cur.String()); c != "" {
			chunks = append(chunks, c)
		}
		cur.Reset()
		curLen = 0
	}

	// seed starts a fresh chunk with the tail of the previous one so
	// neighbouring chunks keep shared context. The tail is capped by room
	// so the chunk never exceeds the size budget.
	seed := func(room int) {
		if overlap == 0 || len(chunks) == 0 || room <= 0 {
			return
		}
		tail := []rune(chunks[len(chunks)-1])
		if k := min(overlap, room); len(tail) > k {
			tail = tail[len(tail)-k:]
		}
		cur.WriteString(string(tail))
		curLen = len([]rune(cur.String()))
	}

	for _, s := range sentences {
		rs := []rune(s)

		// A sentence wider than the budget cannot be packed; hard-split
		// it at character width with the same overlap stride.
		if len(rs) > size {
			flush()
			step := size - overlap
			for start := 0; start < len(rs); start += step {
				end := min(start+size, len(rs))
				if piece := strings.TrimSpace(string(rs[start:end])); piece != "" {
					chunks = append(chunks, piece)
				}
				if end == len(rs) {
					break
				}
			}
			continue
		}

		if curLen > 0 && curLen+1+len(rs) > size {
			flush()
		}
		if curLen == 0 {
			seed(size - len(rs) - 1)
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += len(rs)
	}
	flush()

	return chunks
}

// Make pairs Split output with its source, assigning sequence indices.
func Make(sourceID string, texts []string) []Chunk {
	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, Chunk{Text: t, SourceID: sourceID, Index: i})
	}
	return chunks
}

// splitSentences returns the trimmed sentences of text, including a final
// unterminated fragment if the text does not end in punctuation.
func splitSentences(text string) []string {
	locs := sentenceRE.FindAllStringIndex(text, -1)

	var out []string
	last := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
